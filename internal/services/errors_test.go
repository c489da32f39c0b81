package services_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"keepsake/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrEnrichment, "render", "poll", "job failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrEnrichment) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"render", "poll", "job failed", "boom"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestStageOfSurvivesFurtherWrapping(t *testing.T) {
	err := services.Wrap(services.ErrEnrichment, "compare", "call", "", services.ErrTimeout)
	outer := fmt.Errorf("retrieve capsule: %w", err)
	if got := services.StageOf(outer); got != "compare" {
		t.Fatalf("expected compare stage, got %q", got)
	}
	if !errors.Is(outer, services.ErrTimeout) {
		t.Fatalf("expected timeout cause to be retained, got %v", outer)
	}
	if services.StageOf(errors.New("plain")) != "" {
		t.Fatal("expected empty stage for plain error")
	}
}

func TestKindMapping(t *testing.T) {
	cases := map[string]error{
		"validation":        services.Validation("create", "title required"),
		"not_found":         services.NotFound("capsule", "x"),
		"still_locked":      services.Wrap(services.ErrStillLocked, "gate", "", "", nil),
		"already_unlocking": services.Wrap(services.ErrAlreadyUnlocking, "claim", "", "", nil),
		"storage":           services.Wrap(services.ErrStorage, "fetch", "", "", errors.New("io")),
		"enrichment":        services.Wrap(services.ErrEnrichment, "analyze", "", "", services.ErrTimeout),
		"conflict":          services.Wrap(services.ErrConflict, "", "collaboration", "", nil),
		"internal":          errors.New("unclassified"),
	}
	for want, err := range cases {
		if got := services.Kind(err); got != want {
			t.Fatalf("Kind(%v) = %q, want %q", err, got, want)
		}
	}
	if services.Kind(nil) != "" {
		t.Fatal("expected empty kind for nil error")
	}
}
