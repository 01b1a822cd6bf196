package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestCodeOfWalksTheChain(t *testing.T) {
	base := Wrap(ErrStale, CodeConsistency, "tree moved on")
	wrapped := fmt.Errorf("commit: %w", base)
	if got := CodeOf(wrapped); got != CodeConsistency {
		t.Fatalf("CodeOf = %s", got)
	}
	if !errors.Is(wrapped, ErrStale) {
		t.Fatalf("sentinel lost through Wrap")
	}
	if got := CodeOf(errors.New("plain")); got != CodeInternal {
		t.Fatalf("uncoded error should be internal, got %s", got)
	}
	if HasCode(nil, CodeInternal) {
		t.Fatalf("nil error has no code")
	}
}

func TestErrorStrings(t *testing.T) {
	if got := New(CodeNotFound, "person p1").Error(); got != "not_found: person p1" {
		t.Fatalf("unexpected %q", got)
	}
	if got := Newf(CodeValidation, "bad %s", "gender").Error(); got != "validation_error: bad gender" {
		t.Fatalf("unexpected %q", got)
	}
	if got := Wrap(ErrConflict, CodeConflict, "duplicate").Error(); got != "conflict: duplicate: conflict" {
		t.Fatalf("unexpected %q", got)
	}
}
