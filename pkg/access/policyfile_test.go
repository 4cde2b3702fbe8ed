package access

import (
	"os"
	"path/filepath"
	"testing"
)

const samplePolicy = `
version: 1
capabilities:
  canEdit: "actor.account_id in target.member_account_ids"
entities:
  organization:
    operations:
      create:
        - role|systemAdmin
        - role|orgCreator
      update:
        - role|systemAdmin
        - capability|canEdit
    attributes:
      type:
        set:
          - role|systemAdmin
`

func TestParsePolicyYAML(t *testing.T) {
	p, err := ParsePolicyYAML([]byte(samplePolicy))
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if p.Capabilities["canEdit"] == "" {
		t.Fatal("missing capability expression")
	}
	create := p.Operation("organization", "create")
	if create == nil || len(create.AnyOf) != 2 {
		t.Fatalf("create=%+v", create)
	}
	if got := p.Attribute("organization", "type"); got.Set == nil || got.Get != nil {
		t.Fatalf("type=%+v", got)
	}
}

func TestParsePolicyYAML_MissingEntryIsOpen(t *testing.T) {
	p, err := ParsePolicyYAML([]byte(samplePolicy))
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if p.Operation("organization", "delete") != nil {
		t.Fatal("missing operation must be open")
	}
	if p.Operation("person", "create") != nil {
		t.Fatal("missing entity must be open")
	}
}

func TestParsePolicyYAML_WrongVersion(t *testing.T) {
	if _, err := ParsePolicyYAML([]byte("version: 2\n")); err == nil {
		t.Fatal("expected version error")
	}
	if _, err := ParsePolicyYAML([]byte("capabilities: {}\n")); err == nil {
		t.Fatal("expected version error")
	}
}

func TestParsePolicyYAML_BadRequirementFailsWhole(t *testing.T) {
	doc := `
version: 1
entities:
  organization:
    operations:
      create:
        - systemAdmin
`
	if _, err := ParsePolicyYAML([]byte(doc)); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadPolicy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte(samplePolicy), 0o644); err != nil {
		t.Fatal(err)
	}
	p, err := LoadPolicy(path)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if p.Operation("organization", "update") == nil {
		t.Fatal("missing update requirement")
	}
}
