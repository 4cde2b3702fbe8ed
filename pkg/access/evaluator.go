package access

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/Raaghu/collaboration/pkg/apperr"
)

// Caller is the explicit execution context for an evaluation. It is a plain
// value derived from session state by the caller of this package; the
// evaluator never reads ambient state.
type Caller struct {
	AccountID int64
	Roles     []string

	// Facts are additional actor attributes made visible to capability
	// expressions, e.g. the ids of organizations the caller belongs to.
	Facts map[string]any
}

func (c Caller) HasRole(name string) bool {
	for _, r := range c.Roles {
		if r == name {
			return true
		}
	}
	return false
}

// Target identifies the object an evaluation is about. Facts is the attribute
// map handed to capability expressions; it is built by the entity services.
type Target struct {
	Entity string
	ID     int64
	Facts  map[string]any
}

// CapabilityResolver decides whether the actor holds a named capability on
// the target. Resolution must be side-effect free.
type CapabilityResolver interface {
	Resolve(ctx context.Context, capability string, actor map[string]any, target map[string]any) (bool, error)
}

// Evaluator decides requirements against a caller and target. Evaluation is
// pure: same caller, target, and requirement always yield the same outcome.
type Evaluator struct {
	capabilities CapabilityResolver
	logger       zerolog.Logger
}

type EvaluatorOption func(*Evaluator)

func WithLogger(logger zerolog.Logger) EvaluatorOption {
	return func(e *Evaluator) { e.logger = logger }
}

func NewEvaluator(capabilities CapabilityResolver, opts ...EvaluatorOption) *Evaluator {
	e := &Evaluator{capabilities: capabilities, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate returns nil when any alternative of the requirement is fully
// satisfied, and an AccessDenied error otherwise. A nil requirement is open.
// Resolver failures propagate unchanged; they are not denials.
func (e *Evaluator) Evaluate(ctx context.Context, caller Caller, target Target, req *Requirement) error {
	if req == nil {
		return nil
	}
	for _, conds := range req.AnyOf {
		ok, err := e.alternativeHolds(ctx, caller, target, conds)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	e.logger.Info().
		Int64("account_id", caller.AccountID).
		Strs("roles", caller.Roles).
		Str("entity", target.Entity).
		Int64("target_id", target.ID).
		Str("requirement", req.String()).
		Msg("access denied")
	return apperr.NewAccessDenied("access denied: requires " + req.String())
}

// Holds reports whether the caller has the named capability on the target.
// Unlike Evaluate it expresses no judgement: a false result is not a denial
// and is not logged. Row-level visibility filtering is built on this.
func (e *Evaluator) Holds(ctx context.Context, caller Caller, target Target, capability string) (bool, error) {
	if e.capabilities == nil {
		return false, nil
	}
	return e.capabilities.Resolve(ctx, capability, actorFacts(caller), target.Facts)
}

func (e *Evaluator) alternativeHolds(ctx context.Context, caller Caller, target Target, conds []Condition) (bool, error) {
	for _, cond := range conds {
		switch cond.Kind {
		case KindRole:
			if !caller.HasRole(cond.Name) {
				return false, nil
			}
		case KindCapability:
			if e.capabilities == nil {
				return false, nil
			}
			held, err := e.capabilities.Resolve(ctx, cond.Name, actorFacts(caller), target.Facts)
			if err != nil {
				return false, err
			}
			if !held {
				return false, nil
			}
		default:
			return false, nil
		}
	}
	return true, nil
}

func actorFacts(caller Caller) map[string]any {
	roles := make([]any, 0, len(caller.Roles))
	for _, r := range caller.Roles {
		roles = append(roles, r)
	}
	// Capability expressions index these keys unconditionally, so every
	// actor map carries them even when the caller supplied no facts.
	facts := map[string]any{
		"account_id":       caller.AccountID,
		"roles":            roles,
		"organization_ids": []any{},
	}
	for k, v := range caller.Facts {
		if k == "account_id" || k == "roles" {
			continue
		}
		facts[k] = v
	}
	return facts
}
