package access

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// CELCapabilities resolves capability names through CEL expressions evaluated
// against the actor and target fact maps. Expressions are compiled on first
// use and cached for the lifetime of the resolver.
type CELCapabilities struct {
	env      *cel.Env
	exprs    map[string]string
	programs sync.Map
}

func newCapabilityEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("actor", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("target", cel.MapType(cel.StringType, cel.DynType)),
	)
}

// NewCELCapabilities validates that every expression compiles and returns a
// resolver over the given capability set.
func NewCELCapabilities(exprs map[string]string) (*CELCapabilities, error) {
	env, err := newCapabilityEnv()
	if err != nil {
		return nil, err
	}
	c := &CELCapabilities{env: env, exprs: make(map[string]string, len(exprs))}
	for name, expr := range exprs {
		if _, err := c.compile(name, expr); err != nil {
			return nil, err
		}
		c.exprs[name] = expr
	}
	return c, nil
}

func (c *CELCapabilities) compile(name string, expr string) (cel.Program, error) {
	ast, issues := c.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("access: capability %q: %w", name, issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("access: capability %q must evaluate to bool, got %s", name, ast.OutputType())
	}
	prg, err := c.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("access: capability %q: %w", name, err)
	}
	c.programs.Store(name, prg)
	return prg, nil
}

// Resolve evaluates the named capability. Unknown capabilities resolve to
// false rather than erroring, so a requirement naming a capability that the
// policy does not define fails closed.
func (c *CELCapabilities) Resolve(ctx context.Context, capability string, actor map[string]any, target map[string]any) (bool, error) {
	cached, ok := c.programs.Load(capability)
	if !ok {
		expr, defined := c.exprs[capability]
		if !defined {
			return false, nil
		}
		prg, err := c.compile(capability, expr)
		if err != nil {
			return false, err
		}
		cached = prg
	}
	prg := cached.(cel.Program)

	if target == nil {
		target = map[string]any{}
	}
	out, _, err := prg.ContextEval(ctx, map[string]any{
		"actor":  actor,
		"target": target,
	})
	if err != nil {
		return false, fmt.Errorf("access: capability %q: %w", capability, err)
	}
	held, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("access: capability %q returned non-bool %v", capability, out.Value())
	}
	return held, nil
}

// DefaultCapabilities is the compiled-in capability set. A caller holds
// canEdit on an organization when they are a member of it; canView extends
// membership with shared-organization visibility for person targets; isSelf
// matches a person target against the caller's own account.
func DefaultCapabilities() map[string]string {
	return map[string]string{
		CapabilityCanEdit: `actor.account_id in target.member_account_ids`,
		CapabilityCanView: `actor.account_id == target.account_id || ` +
			`actor.account_id in target.member_account_ids || ` +
			`target.organization_ids.exists(o, o in actor.organization_ids)`,
		CapabilityIsSelf: `actor.account_id == target.account_id`,
	}
}
