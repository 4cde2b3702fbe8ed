package persistence

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Raaghu/collaboration/modules/accounts/domain/ports"
	"github.com/Raaghu/collaboration/modules/accounts/domain/types"
)

var errReadOnlyTx = errors.New("accounts: write inside read-only transaction")

type memState struct {
	tables map[string]map[int64]types.Row
	nextID map[string]int64
}

func newMemState() memState {
	return memState{
		tables: make(map[string]map[int64]types.Row),
		nextID: make(map[string]int64),
	}
}

func (s memState) clone() memState {
	cloned := newMemState()
	for table, rows := range s.tables {
		dst := make(map[int64]types.Row, len(rows))
		for id, row := range rows {
			cp := make(types.Row, len(row))
			for k, v := range row {
				cp[k] = v
			}
			dst[id] = cp
		}
		cloned.tables[table] = dst
	}
	for table, next := range s.nextID {
		cloned.nextID[table] = next
	}
	return cloned
}

func (s memState) table(name string) map[int64]types.Row {
	rows, ok := s.tables[name]
	if !ok {
		rows = make(map[int64]types.Row)
		s.tables[name] = rows
	}
	return rows
}

type memTxKey struct{}

type memTx struct {
	state    *memState
	readOnly bool
}

// MemoryStore is an in-process EntityStore and TransactionCoordinator. The
// outermost Execute works on a cloned state that replaces the committed
// state only when fn succeeds, so aborted batches leave no trace. Uniqueness
// of account names and membership pairs is enforced at insert.
type MemoryStore struct {
	mu     sync.Mutex
	state  memState
	logger zerolog.Logger
}

type MemoryStoreOption func(*MemoryStore)

func WithMemoryLogger(logger zerolog.Logger) MemoryStoreOption {
	return func(s *MemoryStore) { s.logger = logger }
}

func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{state: newMemState(), logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func txFrom(ctx context.Context) *memTx {
	tx, _ := ctx.Value(memTxKey{}).(*memTx)
	return tx
}

// Execute runs fn in a transaction. A nested call joins the enclosing
// transaction: the inner fn runs against the same working state and only
// the outermost call decides commit or abort.
func (s *MemoryStore) Execute(ctx context.Context, readOnly bool, fn func(ctx context.Context) error) error {
	if txFrom(ctx) != nil {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	trace := uuid.NewString()
	working := s.state.clone()
	tx := &memTx{state: &working, readOnly: readOnly}

	if err := fn(context.WithValue(ctx, memTxKey{}, tx)); err != nil {
		s.logger.Debug().Str("tx", trace).Bool("read_only", readOnly).Err(err).Msg("transaction aborted")
		return err
	}
	if !readOnly {
		s.state = working
	}
	s.logger.Debug().Str("tx", trace).Bool("read_only", readOnly).Msg("transaction committed")
	return nil
}

// stateFor resolves the working state. Inside a transaction the coordinator
// already holds the mutex for the whole unit of work; outside, the caller
// gets a locked view for the single operation.
func (s *MemoryStore) stateFor(ctx context.Context) (*memState, func(), *memTx) {
	if tx := txFrom(ctx); tx != nil {
		return tx.state, func() {}, tx
	}
	s.mu.Lock()
	return &s.state, s.mu.Unlock, nil
}

func (s *MemoryStore) Insert(ctx context.Context, table string, attrs types.Row) (int64, error) {
	state, release, tx := s.stateFor(ctx)
	defer release()
	if tx != nil && tx.readOnly {
		return 0, errReadOnlyTx
	}

	if err := checkUnique(state, table, attrs, 0); err != nil {
		return 0, err
	}

	rows := state.table(table)
	state.nextID[table]++
	id := state.nextID[table]

	row := make(types.Row, len(attrs)+1)
	for k, v := range attrs {
		row[k] = v
	}
	row["id"] = id
	rows[id] = row
	return id, nil
}

func (s *MemoryStore) FindBy(ctx context.Context, table string, filters []types.Condition, sortKeys []types.SortKey, page *types.Page, raw string) ([]types.Row, error) {
	if raw != "" {
		return nil, fmt.Errorf("accounts: memory store does not support raw predicates")
	}
	state, release, _ := s.stateFor(ctx)
	defer release()

	var out []types.Row
	for _, row := range state.table(table) {
		ok, err := matches(row, filters)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		cp := make(types.Row, len(row))
		for k, v := range row {
			cp[k] = v
		}
		out = append(out, cp)
	}

	sortRows(out, sortKeys)
	return paginate(out, page), nil
}

func (s *MemoryStore) Update(ctx context.Context, table string, id int64, attrs types.Row) error {
	state, release, tx := s.stateFor(ctx)
	defer release()
	if tx != nil && tx.readOnly {
		return errReadOnlyTx
	}

	row, ok := state.table(table)[id]
	if !ok {
		return ports.ErrRowNotFound
	}
	merged := make(types.Row, len(row)+len(attrs))
	for k, v := range row {
		merged[k] = v
	}
	for k, v := range attrs {
		merged[k] = v
	}
	if err := checkUnique(state, table, merged, id); err != nil {
		return err
	}
	state.table(table)[id] = merged
	return nil
}

func (s *MemoryStore) DeleteRow(ctx context.Context, table string, id int64) error {
	state, release, tx := s.stateFor(ctx)
	defer release()
	if tx != nil && tx.readOnly {
		return errReadOnlyTx
	}

	rows := state.table(table)
	if _, ok := rows[id]; !ok {
		return ports.ErrRowNotFound
	}
	delete(rows, id)
	return nil
}

func checkUnique(state *memState, table string, candidate types.Row, selfID int64) error {
	switch table {
	case types.TableAccount:
		name, _ := candidate["account_name"].(string)
		for id, row := range state.table(table) {
			if id == selfID {
				continue
			}
			if existing, _ := row["account_name"].(string); existing == name {
				return ports.ErrDuplicateRow
			}
		}
	case types.TableOrganizationPerson:
		for id, row := range state.table(table) {
			if id == selfID {
				continue
			}
			if equalValues(row["organization_id"], candidate["organization_id"]) &&
				equalValues(row["person_id"], candidate["person_id"]) {
				return ports.ErrDuplicateRow
			}
		}
	}
	return nil
}

func matches(row types.Row, filters []types.Condition) (bool, error) {
	for _, cond := range filters {
		value := row[cond.Attribute]
		switch cond.Op {
		case types.OpEqual:
			if !equalValues(value, cond.Value) {
				return false, nil
			}
		case types.OpLike:
			pattern, ok := cond.Value.(string)
			if !ok {
				return false, fmt.Errorf("accounts: like filter on %q needs a string pattern", cond.Attribute)
			}
			text, ok := value.(string)
			if !ok {
				return false, nil
			}
			if !likeMatch(text, pattern) {
				return false, nil
			}
		case types.OpIn:
			values, ok := cond.Value.([]any)
			if !ok {
				return false, fmt.Errorf("accounts: in filter on %q needs a value list", cond.Attribute)
			}
			found := false
			for _, candidate := range values {
				if equalValues(value, candidate) {
					found = true
					break
				}
			}
			if !found {
				return false, nil
			}
		default:
			return false, fmt.Errorf("accounts: unknown filter operator %q", cond.Op)
		}
	}
	return true, nil
}

func equalValues(a any, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if ai, ok := asInt64(a); ok {
		bi, ok := asInt64(b)
		return ok && ai == bi
	}
	return a == b
}

func asInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case int64:
		return t, true
	case int:
		return int64(t), true
	case int32:
		return int64(t), true
	default:
		return 0, false
	}
}

// likeMatch implements SQL LIKE with % wildcards, case-insensitively.
func likeMatch(text string, pattern string) bool {
	text = strings.ToLower(text)
	pattern = strings.ToLower(pattern)

	parts := strings.Split(pattern, "%")
	if len(parts) == 1 {
		return text == pattern
	}
	if !strings.HasPrefix(text, parts[0]) {
		return false
	}
	text = text[len(parts[0]):]
	for _, part := range parts[1 : len(parts)-1] {
		if part == "" {
			continue
		}
		idx := strings.Index(text, part)
		if idx < 0 {
			return false
		}
		text = text[idx+len(part):]
	}
	return strings.HasSuffix(text, parts[len(parts)-1])
}

func sortRows(rows []types.Row, keys []types.SortKey) {
	sort.SliceStable(rows, func(i, j int) bool {
		for _, key := range keys {
			c := compareValues(rows[i][key.Attribute], rows[j][key.Attribute])
			if c == 0 {
				continue
			}
			if key.Desc {
				return c > 0
			}
			return c < 0
		}
		// Stable default order by primary key.
		ai, _ := asInt64(rows[i]["id"])
		bi, _ := asInt64(rows[j]["id"])
		return ai < bi
	})
}

func compareValues(a any, b any) int {
	if ai, ok := asInt64(a); ok {
		if bi, ok := asInt64(b); ok {
			switch {
			case ai < bi:
				return -1
			case ai > bi:
				return 1
			default:
				return 0
			}
		}
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return strings.Compare(as, bs)
	}
	return 0
}

// paginate applies offset and limit. Negative values behave like zero, the
// way OFFSET/LIMIT do in the SQL store.
func paginate(rows []types.Row, page *types.Page) []types.Row {
	if page == nil {
		return rows
	}
	offset := page.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(rows) {
		return nil
	}
	rows = rows[offset:]
	if page.Limit > 0 && page.Limit < len(rows) {
		rows = rows[:page.Limit]
	}
	return rows
}
