package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindsAreDistinct(t *testing.T) {
	denied := NewAccessDenied("no update access")
	bad := NewBadInput("not a child")
	state := NewObjectState("object not initialized")

	if !IsAccessDenied(denied) || IsBadInput(denied) || IsObjectState(denied) {
		t.Fatalf("access denied misclassified")
	}
	if !IsBadInput(bad) || IsAccessDenied(bad) || IsObjectState(bad) {
		t.Fatalf("bad input misclassified")
	}
	if !IsObjectState(state) || IsAccessDenied(state) || IsBadInput(state) {
		t.Fatalf("object state misclassified")
	}
}

func TestKindSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("add children: %w", NewBadInput("already a child of organization 7"))
	if !IsBadInput(err) {
		t.Fatalf("expected wrapped bad input, got %v", err)
	}
	if IsBadInput(errors.New("plain")) {
		t.Fatal("plain error classified as bad input")
	}
}

func TestMessagePreserved(t *testing.T) {
	err := NewBadInput("organization sales is not a child of hq")
	if err.Error() != "organization sales is not a child of hq" {
		t.Fatalf("unexpected message: %q", err.Error())
	}
}
