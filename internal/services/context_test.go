package services_test

import (
	"context"
	"testing"

	"keepsake/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithCapsuleID(ctx, "01HZX")
	ctx = services.WithStage(ctx, "analyze")
	ctx = services.WithRequestID(ctx, "req-123")

	if id, ok := services.CapsuleIDFromContext(ctx); !ok || id != "01HZX" {
		t.Fatalf("unexpected capsule id: %v %v", id, ok)
	}
	if stage, ok := services.StageFromContext(ctx); !ok || stage != "analyze" {
		t.Fatalf("unexpected stage: %v %v", stage, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestStageBlankPreservesContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithStage(ctx, "")
	if _, ok := services.StageFromContext(ctx); ok {
		t.Fatal("expected no stage value")
	}
	ctx = services.WithCapsuleID(ctx, "")
	if _, ok := services.CapsuleIDFromContext(ctx); ok {
		t.Fatal("expected no capsule id value")
	}
}
