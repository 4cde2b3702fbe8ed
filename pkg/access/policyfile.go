package access

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Policy is the resolved access-requirement table: capability expressions
// plus per-entity operation and attribute requirements. A missing entry is
// an open requirement.
type Policy struct {
	Capabilities map[string]string
	Entities     map[string]EntityPolicy
}

type EntityPolicy struct {
	Operations map[string]*Requirement
	Attributes map[string]AttributeRequirements
}

type AttributeRequirements struct {
	Get *Requirement
	Set *Requirement
}

func (p Policy) Operation(entity string, op string) *Requirement {
	return p.Entities[entity].Operations[op]
}

func (p Policy) Attribute(entity string, attr string) AttributeRequirements {
	return p.Entities[entity].Attributes[attr]
}

type policyFile struct {
	Version      int                         `yaml:"version"`
	Capabilities map[string]string           `yaml:"capabilities"`
	Entities     map[string]entityPolicyFile `yaml:"entities"`
}

type entityPolicyFile struct {
	Operations map[string][]string          `yaml:"operations"`
	Attributes map[string]attributeReqsFile `yaml:"attributes"`
}

type attributeReqsFile struct {
	Get []string `yaml:"get"`
	Set []string `yaml:"set"`
}

// ParsePolicyYAML parses and resolves a policy document. Requirement syntax
// errors fail the whole parse; a policy never loads partially.
func ParsePolicyYAML(b []byte) (Policy, error) {
	var f policyFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return Policy{}, err
	}
	if f.Version != 1 {
		return Policy{}, errors.New("access: unsupported policy version")
	}

	policy := Policy{
		Capabilities: make(map[string]string, len(f.Capabilities)),
		Entities:     make(map[string]EntityPolicy, len(f.Entities)),
	}
	for name, expr := range f.Capabilities {
		policy.Capabilities[name] = expr
	}
	for entity, ep := range f.Entities {
		resolved := EntityPolicy{
			Operations: make(map[string]*Requirement, len(ep.Operations)),
			Attributes: make(map[string]AttributeRequirements, len(ep.Attributes)),
		}
		for op, alternatives := range ep.Operations {
			req, err := ParseRequirement(alternatives)
			if err != nil {
				return Policy{}, fmt.Errorf("access: entity %q operation %q: %w", entity, op, err)
			}
			resolved.Operations[op] = req
		}
		for attr, reqs := range ep.Attributes {
			var ar AttributeRequirements
			if len(reqs.Get) > 0 {
				req, err := ParseRequirement(reqs.Get)
				if err != nil {
					return Policy{}, fmt.Errorf("access: entity %q attribute %q get: %w", entity, attr, err)
				}
				ar.Get = req
			}
			if len(reqs.Set) > 0 {
				req, err := ParseRequirement(reqs.Set)
				if err != nil {
					return Policy{}, fmt.Errorf("access: entity %q attribute %q set: %w", entity, attr, err)
				}
				ar.Set = req
			}
			resolved.Attributes[attr] = ar
		}
		policy.Entities[entity] = resolved
	}
	return policy, nil
}

func LoadPolicy(path string) (Policy, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, err
	}
	return ParsePolicyYAML(b)
}
