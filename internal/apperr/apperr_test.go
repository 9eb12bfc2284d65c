package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorsIsMatchesKind(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", NotFound("lifecycle.GetGroup", "group %d not found", 7))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound match")
	}
	if errors.Is(err, ErrConflict) {
		t.Fatalf("did not expect ErrConflict match")
	}
	if KindOf(err) != KindNotFound {
		t.Fatalf("expected KindNotFound, got %v", KindOf(err))
	}
	if MessageOf(err) != "group 7 not found" {
		t.Fatalf("unexpected message %q", MessageOf(err))
	}
}

func TestErrorString(t *testing.T) {
	inner := errors.New("boom")
	err := Wrap(KindInvalidState, "op", inner, "cannot %s", "join")
	if err.Error() != "op: cannot join: boom" {
		t.Fatalf("unexpected error string %q", err.Error())
	}
	if !errors.Is(err, inner) {
		t.Fatalf("expected unwrap to inner")
	}
}

func TestKindOfPlainError(t *testing.T) {
	if KindOf(errors.New("plain")) != KindInternal {
		t.Fatalf("expected internal kind")
	}
	if MessageOf(errors.New("plain")) != "internal server error" {
		t.Fatalf("expected generic message")
	}
}
