package access

import "testing"

func TestParseRequirement_SingleRole(t *testing.T) {
	req, err := ParseRequirement([]string{"role|systemAdmin"})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(req.AnyOf) != 1 || len(req.AnyOf[0]) != 1 {
		t.Fatalf("req=%+v", req)
	}
	if req.AnyOf[0][0] != Role("systemAdmin") {
		t.Fatalf("cond=%+v", req.AnyOf[0][0])
	}
}

func TestParseRequirement_Conjunction(t *testing.T) {
	req, err := ParseRequirement([]string{"role|orgCreator+capability|canEdit"})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(req.AnyOf) != 1 || len(req.AnyOf[0]) != 2 {
		t.Fatalf("req=%+v", req)
	}
	if req.AnyOf[0][0] != Role("orgCreator") || req.AnyOf[0][1] != Capability("canEdit") {
		t.Fatalf("conds=%+v", req.AnyOf[0])
	}
}

func TestParseRequirement_Alternatives(t *testing.T) {
	req, err := ParseRequirement([]string{"role|systemAdmin", "capability|canEdit"})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(req.AnyOf) != 2 {
		t.Fatalf("req=%+v", req)
	}
}

func TestParseRequirement_BadForm(t *testing.T) {
	for _, raw := range []string{"systemAdmin", "role|", "group|admins", ""} {
		if _, err := ParseRequirement([]string{raw}); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestRequirement_String(t *testing.T) {
	var nilReq *Requirement
	if got := nilReq.String(); got != "open" {
		t.Fatalf("got=%q", got)
	}
	req := Require(
		AllOf(Role("systemAdmin")),
		AllOf(Role("orgCreator"), Capability("canEdit")),
	)
	want := "role|systemAdmin, role|orgCreator+capability|canEdit"
	if got := req.String(); got != want {
		t.Fatalf("got=%q want=%q", got, want)
	}
}

func TestRequirement_StringRoundTrip(t *testing.T) {
	req := Require(AllOf(Role("systemAdmin")), AllOf(Capability("isSelf")))
	again, err := ParseRequirement([]string{"role|systemAdmin", "capability|isSelf"})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if req.String() != again.String() {
		t.Fatalf("%q != %q", req.String(), again.String())
	}
}
