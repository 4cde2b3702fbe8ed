package access

import (
	"context"
	"errors"
	"testing"

	"github.com/Raaghu/collaboration/pkg/apperr"
)

type stubResolver struct {
	resolve func(ctx context.Context, capability string, actor, target map[string]any) (bool, error)
}

func (s *stubResolver) Resolve(ctx context.Context, capability string, actor, target map[string]any) (bool, error) {
	return s.resolve(ctx, capability, actor, target)
}

func grant(names ...string) *stubResolver {
	return &stubResolver{resolve: func(_ context.Context, capability string, _, _ map[string]any) (bool, error) {
		for _, n := range names {
			if n == capability {
				return true, nil
			}
		}
		return false, nil
	}}
}

func TestEvaluate_NilRequirementIsOpen(t *testing.T) {
	e := NewEvaluator(grant())
	if err := e.Evaluate(context.Background(), Caller{}, Target{}, nil); err != nil {
		t.Fatalf("err=%v", err)
	}
}

func TestEvaluate_RoleHeld(t *testing.T) {
	e := NewEvaluator(grant())
	caller := Caller{AccountID: 7, Roles: []string{"authenticated", "systemAdmin"}}
	req := Require(AllOf(Role("systemAdmin")))
	if err := e.Evaluate(context.Background(), caller, Target{}, req); err != nil {
		t.Fatalf("err=%v", err)
	}
}

func TestEvaluate_RoleMissingDenies(t *testing.T) {
	e := NewEvaluator(grant())
	caller := Caller{AccountID: 7, Roles: []string{"authenticated"}}
	req := Require(AllOf(Role("systemAdmin")))
	err := e.Evaluate(context.Background(), caller, Target{}, req)
	if !apperr.IsAccessDenied(err) {
		t.Fatalf("err=%v", err)
	}
}

func TestEvaluate_ConjunctionNeedsEveryCondition(t *testing.T) {
	e := NewEvaluator(grant("canEdit"))
	req := Require(AllOf(Role("orgCreator"), Capability("canEdit")))

	caller := Caller{Roles: []string{"orgCreator"}}
	if err := e.Evaluate(context.Background(), caller, Target{}, req); err != nil {
		t.Fatalf("err=%v", err)
	}

	caller = Caller{Roles: []string{"authenticated"}}
	if err := e.Evaluate(context.Background(), caller, Target{}, req); !apperr.IsAccessDenied(err) {
		t.Fatalf("err=%v", err)
	}
}

func TestEvaluate_AnyAlternativeSuffices(t *testing.T) {
	e := NewEvaluator(grant("canEdit"))
	req := Require(AllOf(Role("systemAdmin")), AllOf(Capability("canEdit")))
	caller := Caller{Roles: []string{"authenticated"}}
	if err := e.Evaluate(context.Background(), caller, Target{}, req); err != nil {
		t.Fatalf("err=%v", err)
	}
}

func TestEvaluate_ResolverErrorPropagates(t *testing.T) {
	boom := errors.New("resolver down")
	e := NewEvaluator(&stubResolver{resolve: func(context.Context, string, map[string]any, map[string]any) (bool, error) {
		return false, boom
	}})
	req := Require(AllOf(Capability("canEdit")))
	err := e.Evaluate(context.Background(), Caller{}, Target{}, req)
	if !errors.Is(err, boom) {
		t.Fatalf("err=%v", err)
	}
	if apperr.IsAccessDenied(err) {
		t.Fatal("resolver failure must not be a denial")
	}
}

func TestEvaluate_DenialNamesRequirement(t *testing.T) {
	e := NewEvaluator(grant())
	req := Require(AllOf(Role("systemAdmin")), AllOf(Capability("canEdit")))
	err := e.Evaluate(context.Background(), Caller{}, Target{}, req)
	if err == nil {
		t.Fatal("expected denial")
	}
	want := "access denied: requires role|systemAdmin, capability|canEdit"
	if err.Error() != want {
		t.Fatalf("msg=%q want=%q", err.Error(), want)
	}
}

func TestEvaluate_NilResolverFailsClosed(t *testing.T) {
	e := NewEvaluator(nil)
	req := Require(AllOf(Capability("canEdit")))
	if err := e.Evaluate(context.Background(), Caller{}, Target{}, req); !apperr.IsAccessDenied(err) {
		t.Fatalf("err=%v", err)
	}
}

func TestHolds_FalseIsNotAnError(t *testing.T) {
	e := NewEvaluator(grant())
	held, err := e.Holds(context.Background(), Caller{}, Target{}, "canView")
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if held {
		t.Fatal("expected capability not held")
	}
}

func TestActorFacts_CarriesFixedKeys(t *testing.T) {
	var seen map[string]any
	e := NewEvaluator(&stubResolver{resolve: func(_ context.Context, _ string, actor, _ map[string]any) (bool, error) {
		seen = actor
		return true, nil
	}})
	caller := Caller{AccountID: 42, Roles: []string{"authenticated"}}
	if _, err := e.Holds(context.Background(), caller, Target{}, "canView"); err != nil {
		t.Fatalf("err=%v", err)
	}
	if seen["account_id"] != int64(42) {
		t.Fatalf("account_id=%v", seen["account_id"])
	}
	if _, ok := seen["roles"]; !ok {
		t.Fatal("missing roles")
	}
	if _, ok := seen["organization_ids"]; !ok {
		t.Fatal("missing organization_ids")
	}
}

func TestActorFacts_CallerCannotOverrideIdentity(t *testing.T) {
	var seen map[string]any
	e := NewEvaluator(&stubResolver{resolve: func(_ context.Context, _ string, actor, _ map[string]any) (bool, error) {
		seen = actor
		return true, nil
	}})
	caller := Caller{
		AccountID: 1,
		Roles:     []string{"authenticated"},
		Facts: map[string]any{
			"account_id":       int64(999),
			"roles":            []any{"systemAdmin"},
			"organization_ids": []any{int64(3)},
		},
	}
	if _, err := e.Holds(context.Background(), caller, Target{}, "canView"); err != nil {
		t.Fatalf("err=%v", err)
	}
	if seen["account_id"] != int64(1) {
		t.Fatalf("account_id=%v", seen["account_id"])
	}
	ids, ok := seen["organization_ids"].([]any)
	if !ok || len(ids) != 1 || ids[0] != int64(3) {
		t.Fatalf("organization_ids=%v", seen["organization_ids"])
	}
}
