package access

import (
	"fmt"
	"strings"
)

type ConditionKind string

const (
	KindRole       ConditionKind = "role"
	KindCapability ConditionKind = "capability"
)

// Condition is a single access predicate: the caller holds a role, or the
// caller holds a capability on the target object.
type Condition struct {
	Kind ConditionKind
	Name string
}

func Role(name string) Condition       { return Condition{Kind: KindRole, Name: name} }
func Capability(name string) Condition { return Condition{Kind: KindCapability, Name: name} }

// Requirement is a disjunction of alternatives; each alternative is a
// conjunction of conditions. A nil *Requirement is open (no check).
type Requirement struct {
	AnyOf [][]Condition
}

func AllOf(conds ...Condition) []Condition { return conds }

func Require(alternatives ...[]Condition) *Requirement {
	return &Requirement{AnyOf: alternatives}
}

// ParseRequirement builds a requirement from its text form. Each entry is one
// alternative; conditions within an alternative are joined with "+":
//
//	role|systemAdmin
//	role|orgCreator+capability|canEdit
//
// An empty slice yields a requirement that no caller satisfies; use a nil
// requirement for open access.
func ParseRequirement(alternatives []string) (*Requirement, error) {
	req := &Requirement{AnyOf: make([][]Condition, 0, len(alternatives))}
	for _, alt := range alternatives {
		parts := strings.Split(alt, "+")
		conds := make([]Condition, 0, len(parts))
		for _, part := range parts {
			cond, err := parseCondition(part)
			if err != nil {
				return nil, err
			}
			conds = append(conds, cond)
		}
		if len(conds) == 0 {
			return nil, fmt.Errorf("access: empty alternative in requirement")
		}
		req.AnyOf = append(req.AnyOf, conds)
	}
	return req, nil
}

func parseCondition(raw string) (Condition, error) {
	kind, name, ok := strings.Cut(strings.TrimSpace(raw), "|")
	if !ok {
		return Condition{}, fmt.Errorf("access: condition %q is not of the form kind|name", raw)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Condition{}, fmt.Errorf("access: condition %q has an empty name", raw)
	}
	switch ConditionKind(strings.TrimSpace(kind)) {
	case KindRole:
		return Role(name), nil
	case KindCapability:
		return Capability(name), nil
	default:
		return Condition{}, fmt.Errorf("access: unknown condition kind in %q", raw)
	}
}

// String renders the requirement back in its text form, alternatives joined
// with ", ". Used in denial messages and audit logs.
func (r *Requirement) String() string {
	if r == nil {
		return "open"
	}
	alts := make([]string, 0, len(r.AnyOf))
	for _, conds := range r.AnyOf {
		parts := make([]string, 0, len(conds))
		for _, cond := range conds {
			parts = append(parts, string(cond.Kind)+"|"+cond.Name)
		}
		alts = append(alts, strings.Join(parts, "+"))
	}
	return strings.Join(alts, ", ")
}
