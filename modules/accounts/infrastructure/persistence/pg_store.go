package persistence

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"

	"github.com/Raaghu/collaboration/modules/accounts/domain/ports"
	"github.com/Raaghu/collaboration/modules/accounts/domain/types"
)

type pgBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PGStore is the Postgres EntityStore and TransactionCoordinator. The
// transaction handle travels in the context so that nested Execute calls and
// store operations inside a unit of work join the same pgx.Tx.
type PGStore struct {
	pool   pgBeginner
	logger zerolog.Logger
}

type PGStoreOption func(*PGStore)

func WithPGLogger(logger zerolog.Logger) PGStoreOption {
	return func(s *PGStore) { s.logger = logger }
}

func NewPGStore(pool pgBeginner, opts ...PGStoreOption) *PGStore {
	s := &PGStore{pool: pool, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type pgTxKey struct{}

func pgTxFrom(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(pgTxKey{}).(pgx.Tx)
	return tx
}

func (s *PGStore) Execute(ctx context.Context, readOnly bool, fn func(ctx context.Context) error) error {
	if pgTxFrom(ctx) != nil {
		return fn(ctx)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	if readOnly {
		if _, err := tx.Exec(ctx, `SET TRANSACTION READ ONLY`); err != nil {
			return err
		}
	}

	trace := uuid.NewString()
	if err := fn(context.WithValue(ctx, pgTxKey{}, tx)); err != nil {
		s.logger.Debug().Str("tx", trace).Bool("read_only", readOnly).Err(err).Msg("transaction aborted")
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	s.logger.Debug().Str("tx", trace).Bool("read_only", readOnly).Msg("transaction committed")
	return nil
}

// run executes fn against the joined transaction, or a single-operation
// transaction when none is active.
func (s *PGStore) run(ctx context.Context, fn func(tx pgx.Tx) error) error {
	if tx := pgTxFrom(ctx); tx != nil {
		return fn(tx)
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PGStore) Insert(ctx context.Context, table string, attrs types.Row) (int64, error) {
	columns := make([]string, 0, len(attrs))
	for column := range attrs {
		columns = append(columns, column)
	}
	sort.Strings(columns)

	placeholders := make([]string, 0, len(columns))
	args := make([]any, 0, len(columns))
	for i, column := range columns {
		placeholders = append(placeholders, fmt.Sprintf("$%d", i+1))
		args = append(args, attrs[column])
	}

	query := fmt.Sprintf(
		`INSERT INTO %s (%s) VALUES (%s) RETURNING id`,
		pgx.Identifier{table}.Sanitize(),
		strings.Join(sanitizeAll(columns), ", "),
		strings.Join(placeholders, ", "),
	)

	var id int64
	err := s.run(ctx, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, query, args...).Scan(&id)
	})
	if err != nil {
		return 0, mapPGError(err)
	}
	return id, nil
}

func (s *PGStore) FindBy(ctx context.Context, table string, filters []types.Condition, sortKeys []types.SortKey, page *types.Page, raw string) ([]types.Row, error) {
	var sb strings.Builder
	args := make([]any, 0, len(filters))
	fmt.Fprintf(&sb, `SELECT * FROM %s`, pgx.Identifier{table}.Sanitize())

	clauses := make([]string, 0, len(filters)+1)
	for _, cond := range filters {
		column := pgx.Identifier{cond.Attribute}.Sanitize()
		switch cond.Op {
		case types.OpEqual:
			if cond.Value == nil {
				clauses = append(clauses, column+" IS NULL")
				continue
			}
			args = append(args, cond.Value)
			clauses = append(clauses, fmt.Sprintf("%s = $%d", column, len(args)))
		case types.OpLike:
			args = append(args, cond.Value)
			clauses = append(clauses, fmt.Sprintf("%s ILIKE $%d", column, len(args)))
		case types.OpIn:
			values, ok := cond.Value.([]any)
			if !ok {
				return nil, fmt.Errorf("accounts: in filter on %q needs a value list", cond.Attribute)
			}
			args = append(args, values)
			clauses = append(clauses, fmt.Sprintf("%s = ANY($%d)", column, len(args)))
		default:
			return nil, fmt.Errorf("accounts: unknown filter operator %q", cond.Op)
		}
	}
	if raw != "" {
		clauses = append(clauses, "("+raw+")")
	}
	if len(clauses) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(clauses, " AND "))
	}

	if len(sortKeys) > 0 {
		orders := make([]string, 0, len(sortKeys))
		for _, key := range sortKeys {
			direction := "ASC"
			if key.Desc {
				direction = "DESC"
			}
			orders = append(orders, pgx.Identifier{key.Attribute}.Sanitize()+" "+direction)
		}
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(orders, ", "))
	} else {
		sb.WriteString(" ORDER BY id")
	}

	if page != nil {
		if page.Limit > 0 {
			fmt.Fprintf(&sb, " LIMIT %d", page.Limit)
		}
		if page.Offset > 0 {
			fmt.Fprintf(&sb, " OFFSET %d", page.Offset)
		}
	}

	var out []types.Row
	err := s.run(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, sb.String(), args...)
		if err != nil {
			return err
		}
		collected, err := pgx.CollectRows(rows, pgx.RowToMap)
		if err != nil {
			return err
		}
		out = make([]types.Row, 0, len(collected))
		for _, row := range collected {
			out = append(out, types.Row(row))
		}
		return nil
	})
	if err != nil {
		return nil, mapPGError(err)
	}
	return out, nil
}

func (s *PGStore) Update(ctx context.Context, table string, id int64, attrs types.Row) error {
	columns := make([]string, 0, len(attrs))
	for column := range attrs {
		columns = append(columns, column)
	}
	sort.Strings(columns)

	sets := make([]string, 0, len(columns))
	args := make([]any, 0, len(columns)+1)
	for i, column := range columns {
		sets = append(sets, fmt.Sprintf("%s = $%d", pgx.Identifier{column}.Sanitize(), i+1))
		args = append(args, attrs[column])
	}
	args = append(args, id)

	query := fmt.Sprintf(
		`UPDATE %s SET %s WHERE id = $%d`,
		pgx.Identifier{table}.Sanitize(),
		strings.Join(sets, ", "),
		len(args),
	)

	return mapPGError(s.run(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, query, args...)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ports.ErrRowNotFound
		}
		return nil
	}))
}

func (s *PGStore) DeleteRow(ctx context.Context, table string, id int64) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, pgx.Identifier{table}.Sanitize())
	return mapPGError(s.run(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, query, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ports.ErrRowNotFound
		}
		return nil
	}))
}

// mapPGError folds constraint violations into the port sentinels so the
// model layer can classify them without knowing the driver.
func mapPGError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.UniqueViolation:
			return ports.ErrDuplicateRow
		case pgerrcode.ForeignKeyViolation:
			return ports.ErrBadReference
		}
	}
	return err
}

func sanitizeAll(columns []string) []string {
	out := make([]string, 0, len(columns))
	for _, column := range columns {
		out = append(out, pgx.Identifier{column}.Sanitize())
	}
	return out
}
