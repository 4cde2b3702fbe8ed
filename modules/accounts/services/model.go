package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Raaghu/collaboration/modules/accounts/domain/ports"
	"github.com/Raaghu/collaboration/modules/accounts/domain/types"
	"github.com/Raaghu/collaboration/pkg/access"
	"github.com/Raaghu/collaboration/pkg/apperr"
)

// Service bundles the persistence collaborators and the access policy for
// the accounts module. Obtain entity-specific services through
// Organizations and Persons.
type Service struct {
	store  ports.EntityStore
	tx     ports.TransactionCoordinator
	eval   *access.Evaluator
	policy access.Policy
	logger zerolog.Logger
}

type ServiceOption func(*Service)

func WithServiceLogger(logger zerolog.Logger) ServiceOption {
	return func(s *Service) { s.logger = logger }
}

func NewService(store ports.EntityStore, tx ports.TransactionCoordinator, eval *access.Evaluator, policy access.Policy, opts ...ServiceOption) *Service {
	s := &Service{
		store:  store,
		tx:     tx,
		eval:   eval,
		policy: policy,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Organizations() *OrganizationService {
	return &OrganizationService{entityModel: &entityModel{
		svc:    s,
		entity: EntityOrganization,
		spec:   organizationSpec,
		facts:  s.organizationFacts,
	}}
}

func (s *Service) Persons() *PersonService {
	return &PersonService{entityModel: &entityModel{
		svc:    s,
		entity: EntityPerson,
		spec:   personSpec,
		facts:  s.personFacts,
	}}
}

// factsBuilder derives the target fact map the capability expressions
// evaluate against. attrs holds the subtype row merged with accountName.
type factsBuilder func(ctx context.Context, attrs types.Row) (map[string]any, error)

// entityModel carries the per-entity wiring shared by every operation:
// the attribute table, the policy key under which requirements are looked
// up, and the fact builder for capability checks.
type entityModel struct {
	svc    *Service
	entity string
	spec   types.EntitySpec
	facts  factsBuilder
}

// Instance is a loaded entity row. All reads and writes go through the
// access gates; an Instance handed to a caller proves only that the
// construct requirement held at load time.
type Instance struct {
	model       *entityModel
	id          int64
	accountID   int64
	attrs       types.Row
	initialized bool
}

func (in *Instance) ID() int64         { return in.id }
func (in *Instance) AccountID() int64  { return in.accountID }
func (in *Instance) Initialized() bool { return in.initialized }

func (in *Instance) AccountName() string {
	name, _ := in.attrs[AttrAccountName].(string)
	return name
}

// Get returns a single attribute value, honouring the attribute-level get
// requirement when the policy declares one.
func (in *Instance) Get(ctx context.Context, caller access.Caller, attr string) (any, error) {
	if !in.initialized {
		return nil, apperr.NewObjectState(in.model.entity + " is not initialized")
	}
	if attr == AttrAccountName {
		return in.AccountName(), nil
	}
	spec, ok := in.model.spec.Attribute(attr)
	if !ok || !spec.Get {
		return nil, apperr.NewBadInput(fmt.Sprintf("%s has no readable attribute %q", in.model.entity, attr))
	}
	reqs := in.model.svc.policy.Attribute(in.model.entity, attr)
	if reqs.Get != nil {
		target, err := in.model.target(ctx, in.id, in.attrs)
		if err != nil {
			return nil, err
		}
		caller, err = in.model.svc.callerWithFacts(ctx, caller)
		if err != nil {
			return nil, err
		}
		if err := in.model.svc.eval.Evaluate(ctx, caller, target, reqs.Get); err != nil {
			return nil, err
		}
	}
	return in.attrs[attr], nil
}

// SetAttributes applies a batch of attribute writes in one transaction.
// The entity-level update requirement gates the batch; each attribute is
// additionally checked against its own set requirement. A protected or
// unknown attribute fails the whole batch.
func (in *Instance) SetAttributes(ctx context.Context, caller access.Caller, attrs types.Row) error {
	if !in.initialized {
		return apperr.NewObjectState(in.model.entity + " is not initialized")
	}
	if len(attrs) == 0 {
		return nil
	}
	m := in.model
	caller, err := m.svc.callerWithFacts(ctx, caller)
	if err != nil {
		return err
	}
	target, err := m.target(ctx, in.id, in.attrs)
	if err != nil {
		return err
	}
	if err := m.svc.eval.Evaluate(ctx, caller, target, m.svc.policy.Operation(m.entity, access.OpUpdate)); err != nil {
		return err
	}
	for name := range attrs {
		spec, ok := m.spec.Attribute(name)
		if !ok || name == AttrAccountName {
			return apperr.NewBadInput(fmt.Sprintf("%s has no attribute %q", m.entity, name))
		}
		if spec.Protected || !spec.Set {
			return apperr.NewBadInput(fmt.Sprintf("%s attribute %q is not writable", m.entity, name))
		}
		reqs := m.svc.policy.Attribute(m.entity, name)
		if reqs.Set != nil {
			if err := m.svc.eval.Evaluate(ctx, caller, target, reqs.Set); err != nil {
				return err
			}
		}
	}
	err = m.svc.tx.Execute(ctx, false, func(ctx context.Context) error {
		return m.svc.store.Update(ctx, m.spec.Table, in.id, m.spec.Columns(attrs))
	})
	if err != nil {
		return m.mapStoreError(err)
	}
	for name, value := range attrs {
		in.attrs[name] = value
	}
	return nil
}

func (in *Instance) Set(ctx context.Context, caller access.Caller, attr string, value any) error {
	return in.SetAttributes(ctx, caller, types.Row{attr: value})
}

// create inserts the shared account row and the subtype row in one
// transaction, then returns the loaded instance.
func (m *entityModel) create(ctx context.Context, caller access.Caller, attrs types.Row) (*Instance, error) {
	caller, err := m.svc.callerWithFacts(ctx, caller)
	if err != nil {
		return nil, err
	}
	target, err := m.target(ctx, 0, attrs)
	if err != nil {
		return nil, err
	}
	if err := m.svc.eval.Evaluate(ctx, caller, target, m.svc.policy.Operation(m.entity, access.OpCreate)); err != nil {
		return nil, err
	}
	accountName, _ := attrs[AttrAccountName].(string)
	if accountName == "" {
		return nil, apperr.NewBadInput(m.entity + " requires an accountName")
	}
	sub := types.Row{}
	for name, value := range attrs {
		if name == AttrAccountName {
			continue
		}
		spec, ok := m.spec.Attribute(name)
		if !ok {
			return nil, apperr.NewBadInput(fmt.Sprintf("%s has no attribute %q", m.entity, name))
		}
		if spec.Name == AttrID || spec.Name == AttrAccountID {
			return nil, apperr.NewBadInput(fmt.Sprintf("%s attribute %q is assigned by the system", m.entity, name))
		}
		sub[name] = value
	}
	for _, spec := range m.spec.Attributes {
		if spec.Required {
			if v, ok := sub[spec.Name]; !ok || v == nil || v == "" {
				return nil, apperr.NewBadInput(fmt.Sprintf("%s requires attribute %q", m.entity, spec.Name))
			}
		}
	}

	var id, accountID int64
	err = m.svc.tx.Execute(ctx, false, func(ctx context.Context) error {
		accountID, err = m.svc.store.Insert(ctx, accountSpec.Table, accountSpec.Columns(types.Row{AttrAccountName: accountName}))
		if err != nil {
			return err
		}
		cols := m.spec.Columns(sub)
		cols["account_id"] = accountID
		id, err = m.svc.store.Insert(ctx, m.spec.Table, cols)
		return err
	})
	if err != nil {
		return nil, m.mapStoreError(err)
	}
	m.svc.logger.Info().
		Str("entity", m.entity).
		Int64("id", id).
		Int64("actor", caller.AccountID).
		Msg("entity created")

	loaded := types.Row{}
	for k, v := range sub {
		loaded[k] = v
	}
	loaded[AttrID] = id
	loaded[AttrAccountID] = accountID
	loaded[AttrAccountName] = accountName
	return &Instance{model: m, id: id, accountID: accountID, attrs: loaded, initialized: true}, nil
}

// load fetches one row by primary key and gates construction.
func (m *entityModel) load(ctx context.Context, caller access.Caller, id int64) (*Instance, error) {
	return m.loadBy(ctx, caller, types.Eq(m.spec.Primary, id), fmt.Sprintf("%s %d", m.entity, id))
}

// loadByAccountName resolves the shared account row first, then the
// subtype row that references it.
func (m *entityModel) loadByAccountName(ctx context.Context, caller access.Caller, accountName string) (*Instance, error) {
	var in *Instance
	err := m.svc.tx.Execute(ctx, true, func(ctx context.Context) error {
		accounts, err := m.svc.store.FindBy(ctx, accountSpec.Table, []types.Condition{types.Eq("account_name", accountName)}, nil, nil, "")
		if err != nil {
			return err
		}
		if len(accounts) == 0 {
			return apperr.NewBadInput(fmt.Sprintf("no %s with accountName %q", m.entity, accountName))
		}
		in, err = m.loadBy(ctx, caller, types.Eq("account_id", accounts[0]["id"]), fmt.Sprintf("%s with accountName %q", m.entity, accountName))
		return err
	})
	if err != nil {
		return nil, err
	}
	return in, nil
}

func (m *entityModel) loadBy(ctx context.Context, caller access.Caller, cond types.Condition, what string) (*Instance, error) {
	var in *Instance
	err := m.svc.tx.Execute(ctx, true, func(ctx context.Context) error {
		rows, err := m.svc.store.FindBy(ctx, m.spec.Table, []types.Condition{cond}, nil, nil, "")
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return apperr.NewBadInput("no " + what)
		}
		in, err = m.instantiate(ctx, caller, rows[0])
		return err
	})
	if err != nil {
		return nil, m.mapStoreError(err)
	}
	return in, nil
}

// instantiate turns a raw subtype row into a gated Instance. The construct
// requirement is evaluated against the row's facts before the instance is
// handed out.
func (m *entityModel) instantiate(ctx context.Context, caller access.Caller, row types.Row) (*Instance, error) {
	attrs, id, accountID, err := m.hydrate(ctx, row)
	if err != nil {
		return nil, err
	}
	caller, err = m.svc.callerWithFacts(ctx, caller)
	if err != nil {
		return nil, err
	}
	target, err := m.target(ctx, id, attrs)
	if err != nil {
		return nil, err
	}
	if err := m.svc.eval.Evaluate(ctx, caller, target, m.svc.policy.Operation(m.entity, access.OpConstruct)); err != nil {
		return nil, err
	}
	return &Instance{model: m, id: id, accountID: accountID, attrs: attrs, initialized: true}, nil
}

// hydrate maps a subtype row to attribute names and joins in accountName.
func (m *entityModel) hydrate(ctx context.Context, row types.Row) (types.Row, int64, int64, error) {
	attrs := m.spec.AttributesFromColumns(row)
	id, err := asID(attrs[AttrID])
	if err != nil {
		return nil, 0, 0, fmt.Errorf("%s row: %w", m.entity, err)
	}
	accountID, err := asID(attrs[AttrAccountID])
	if err != nil {
		return nil, 0, 0, fmt.Errorf("%s row: %w", m.entity, err)
	}
	accounts, err := m.svc.store.FindBy(ctx, accountSpec.Table, []types.Condition{types.Eq("id", accountID)}, nil, nil, "")
	if err != nil {
		return nil, 0, 0, err
	}
	if len(accounts) == 0 {
		return nil, 0, 0, apperr.NewObjectState(fmt.Sprintf("%s %d has no account row", m.entity, id))
	}
	attrs[AttrAccountName] = accountSpec.AttributesFromColumns(accounts[0])[AttrAccountName]
	return attrs, id, accountID, nil
}

// find runs a filtered query and returns only the rows the caller may see.
// Rows failing the construct gate are dropped silently rather than failing
// the whole query. raw is an optional store-level predicate appended to the
// filters; not every store supports it.
func (m *entityModel) find(ctx context.Context, caller access.Caller, filters []types.Condition, sort []types.SortKey, page *types.Page, raw string) ([]*Instance, error) {
	caller, err := m.svc.callerWithFacts(ctx, caller)
	if err != nil {
		return nil, err
	}
	if err := m.svc.eval.Evaluate(ctx, caller, access.Target{Entity: m.entity}, m.svc.policy.Operation(m.entity, access.OpFind)); err != nil {
		return nil, err
	}
	cols, err := m.columnConditions(filters)
	if err != nil {
		return nil, err
	}
	colSort, err := m.columnSort(sort)
	if err != nil {
		return nil, err
	}
	var out []*Instance
	err = m.svc.tx.Execute(ctx, true, func(ctx context.Context) error {
		rows, err := m.svc.store.FindBy(ctx, m.spec.Table, cols, colSort, page, raw)
		if err != nil {
			return err
		}
		for _, row := range rows {
			in, err := m.visible(ctx, caller, row)
			if err != nil {
				return err
			}
			if in != nil {
				out = append(out, in)
			}
		}
		return nil
	})
	if err != nil {
		return nil, m.mapStoreError(err)
	}
	return out, nil
}

// visible is instantiate with denial downgraded to omission.
func (m *entityModel) visible(ctx context.Context, caller access.Caller, row types.Row) (*Instance, error) {
	in, err := m.instantiate(ctx, caller, row)
	if err != nil {
		if apperr.IsAccessDenied(err) {
			return nil, nil
		}
		return nil, err
	}
	return in, nil
}

// delete removes the subtype row and its account row in one transaction.
// Entity-specific preconditions run inside the same transaction via check.
func (m *entityModel) delete(ctx context.Context, caller access.Caller, in *Instance, check func(ctx context.Context) error) error {
	if !in.initialized {
		return apperr.NewObjectState(m.entity + " is not initialized")
	}
	caller, err := m.svc.callerWithFacts(ctx, caller)
	if err != nil {
		return err
	}
	target, err := m.target(ctx, in.id, in.attrs)
	if err != nil {
		return err
	}
	if err := m.svc.eval.Evaluate(ctx, caller, target, m.svc.policy.Operation(m.entity, access.OpDelete)); err != nil {
		return err
	}
	err = m.svc.tx.Execute(ctx, false, func(ctx context.Context) error {
		if check != nil {
			if err := check(ctx); err != nil {
				return err
			}
		}
		if err := m.svc.store.DeleteRow(ctx, m.spec.Table, in.id); err != nil {
			return err
		}
		return m.svc.store.DeleteRow(ctx, accountSpec.Table, in.accountID)
	})
	if err != nil {
		return m.mapStoreError(err)
	}
	in.initialized = false
	m.svc.logger.Info().
		Str("entity", m.entity).
		Int64("id", in.id).
		Int64("actor", caller.AccountID).
		Msg("entity deleted")
	return nil
}

func (m *entityModel) target(ctx context.Context, id int64, attrs types.Row) (access.Target, error) {
	facts, err := m.facts(ctx, attrs)
	if err != nil {
		return access.Target{}, err
	}
	return access.Target{Entity: m.entity, ID: id, Facts: facts}, nil
}

func (m *entityModel) columnConditions(filters []types.Condition) ([]types.Condition, error) {
	out := make([]types.Condition, 0, len(filters))
	for _, f := range filters {
		spec, ok := m.spec.Attribute(f.Attribute)
		if !ok {
			return nil, apperr.NewBadInput(fmt.Sprintf("%s has no attribute %q", m.entity, f.Attribute))
		}
		f.Attribute = spec.Column
		out = append(out, f)
	}
	return out, nil
}

func (m *entityModel) columnSort(sort []types.SortKey) ([]types.SortKey, error) {
	out := make([]types.SortKey, 0, len(sort))
	for _, k := range sort {
		spec, ok := m.spec.Attribute(k.Attribute)
		if !ok {
			return nil, apperr.NewBadInput(fmt.Sprintf("%s has no attribute %q", m.entity, k.Attribute))
		}
		k.Attribute = spec.Column
		out = append(out, k)
	}
	return out, nil
}

func (m *entityModel) mapStoreError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ports.ErrDuplicateRow):
		return apperr.NewBadInput(m.entity + ": duplicate value for a unique attribute")
	case errors.Is(err, ports.ErrBadReference):
		return apperr.NewBadInput(m.entity + ": references a row that does not exist")
	case errors.Is(err, ports.ErrRowNotFound):
		return apperr.NewObjectState(m.entity + ": row no longer exists")
	default:
		return err
	}
}

// callerWithFacts enriches the caller with the organization memberships of
// the person behind the calling account. Capability expressions read these
// under actor.organization_ids.
func (s *Service) callerWithFacts(ctx context.Context, caller access.Caller) (access.Caller, error) {
	if caller.Facts != nil {
		if _, ok := caller.Facts["organization_ids"]; ok {
			return caller, nil
		}
	}
	orgIDs := []any{}
	err := s.tx.Execute(ctx, true, func(ctx context.Context) error {
		persons, err := s.store.FindBy(ctx, types.TablePerson, []types.Condition{types.Eq("account_id", caller.AccountID)}, nil, nil, "")
		if err != nil {
			return err
		}
		if len(persons) == 0 {
			return nil
		}
		links, err := s.store.FindBy(ctx, types.TableOrganizationPerson, []types.Condition{types.Eq("person_id", persons[0]["id"])}, nil, nil, "")
		if err != nil {
			return err
		}
		for _, link := range links {
			id, err := asID(link["organization_id"])
			if err != nil {
				return err
			}
			orgIDs = append(orgIDs, id)
		}
		return nil
	})
	if err != nil {
		return caller, err
	}
	facts := map[string]any{"organization_ids": orgIDs}
	for k, v := range caller.Facts {
		facts[k] = v
	}
	caller.Facts = facts
	return caller, nil
}

// organizationFacts: which accounts belong to the organization's members.
func (s *Service) organizationFacts(ctx context.Context, attrs types.Row) (map[string]any, error) {
	facts := map[string]any{
		"account_id":         int64(0),
		"member_account_ids": []any{},
		"organization_ids":   []any{},
	}
	if v, ok := attrs[AttrAccountID]; ok {
		id, err := asID(v)
		if err != nil {
			return nil, err
		}
		facts["account_id"] = id
	}
	orgID, err := asID(attrs[AttrID])
	if err != nil {
		// Not yet persisted (create gate): no members to report.
		return facts, nil
	}
	memberIDs := []any{}
	err = s.tx.Execute(ctx, true, func(ctx context.Context) error {
		links, err := s.store.FindBy(ctx, types.TableOrganizationPerson, []types.Condition{types.Eq("organization_id", orgID)}, nil, nil, "")
		if err != nil {
			return err
		}
		personIDs := make([]int64, 0, len(links))
		for _, link := range links {
			pid, err := asID(link["person_id"])
			if err != nil {
				return err
			}
			personIDs = append(personIDs, pid)
		}
		if len(personIDs) == 0 {
			return nil
		}
		persons, err := s.store.FindBy(ctx, types.TablePerson, []types.Condition{types.InInt64("id", personIDs)}, nil, nil, "")
		if err != nil {
			return err
		}
		for _, p := range persons {
			aid, err := asID(p["account_id"])
			if err != nil {
				return err
			}
			memberIDs = append(memberIDs, aid)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	facts["member_account_ids"] = memberIDs
	return facts, nil
}

// personFacts: which organizations the person belongs to.
func (s *Service) personFacts(ctx context.Context, attrs types.Row) (map[string]any, error) {
	facts := map[string]any{
		"account_id":         int64(0),
		"member_account_ids": []any{},
		"organization_ids":   []any{},
	}
	if v, ok := attrs[AttrAccountID]; ok {
		id, err := asID(v)
		if err != nil {
			return nil, err
		}
		facts["account_id"] = id
	}
	personID, err := asID(attrs[AttrID])
	if err != nil {
		return facts, nil
	}
	orgIDs := []any{}
	err = s.tx.Execute(ctx, true, func(ctx context.Context) error {
		links, err := s.store.FindBy(ctx, types.TableOrganizationPerson, []types.Condition{types.Eq("person_id", personID)}, nil, nil, "")
		if err != nil {
			return err
		}
		for _, link := range links {
			oid, err := asID(link["organization_id"])
			if err != nil {
				return err
			}
			orgIDs = append(orgIDs, oid)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	facts["organization_ids"] = orgIDs
	return facts, nil
}

func asID(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case float64:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("value %v is not a row id", v)
	}
}
