package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsMatchesKindSentinels(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", NotFound("incidents.notFound", "incident not found"))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found sentinel to match")
	}
	if errors.Is(err, ErrConflict) {
		t.Fatalf("conflict sentinel must not match not found")
	}
	if !errors.Is(err, NotFound("incidents.notFound", "")) {
		t.Fatalf("expected code match")
	}
	if errors.Is(err, NotFound("auth.userNotFound", "")) {
		t.Fatalf("different code must not match")
	}
}

func TestAsWrapsUntaggedAsStorage(t *testing.T) {
	if As(errors.New("boom")).Kind != KindStorage {
		t.Fatalf("untagged errors should be storage")
	}
	if As(nil) != nil {
		t.Fatalf("nil stays nil")
	}
	if As(Validation("x", "y")).Kind != KindValidation {
		t.Fatalf("expected validation kind")
	}
}

func TestStorageHidesCause(t *testing.T) {
	cause := errors.New("pq: connection refused at 10.0.0.5")
	e := Storage(cause)
	if e.Message != "internal storage error" {
		t.Fatalf("unexpected message %q", e.Message)
	}
	if !errors.Is(e, cause) {
		t.Fatalf("cause should stay reachable through Unwrap")
	}
}
