package stage

import (
	"context"
	"errors"
	"testing"
	"time"

	"keepsake/internal/services"
)

func TestRunReturnsOutput(t *testing.T) {
	out, err := Run(context.Background(), Analyze, time.Second, services.ErrEnrichment, func(ctx context.Context) (string, error) {
		if name, _ := services.StageFromContext(ctx); name != Analyze {
			t.Errorf("expected stage in context, got %q", name)
		}
		return "A", nil
	})
	if err != nil || out != "A" {
		t.Fatalf("Run = %q, %v", out, err)
	}
}

func TestRunWrapsFailureWithStage(t *testing.T) {
	boom := errors.New("boom")
	_, err := Run(context.Background(), Compare, time.Second, services.ErrEnrichment, func(context.Context) (string, error) {
		return "", boom
	})
	if !errors.Is(err, services.ErrEnrichment) || !errors.Is(err, boom) {
		t.Fatalf("expected enrichment error wrapping cause, got %v", err)
	}
	if services.StageOf(err) != Compare {
		t.Fatalf("expected stage %q, got %q", Compare, services.StageOf(err))
	}
}

func TestRunTimeoutIsFailure(t *testing.T) {
	_, err := Run(context.Background(), Render, 10*time.Millisecond, services.ErrEnrichment, func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	if !errors.Is(err, services.ErrEnrichment) || !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected enrichment timeout, got %v", err)
	}
	if services.StageOf(err) != Render {
		t.Fatalf("expected render stage, got %q", services.StageOf(err))
	}
}

func TestHealthConstructors(t *testing.T) {
	if h := Healthy("llm"); !h.Ready || h.Name != "llm" {
		t.Fatalf("unexpected healthy record %#v", h)
	}
	if h := Unhealthy("render", "down"); h.Ready || h.Detail != "down" {
		t.Fatalf("unexpected unhealthy record %#v", h)
	}
}

func TestProbe(t *testing.T) {
	if h := Probe("render", nil); !h.Ready || h.Detail != "" {
		t.Fatalf("expected ready probe, got %#v", h)
	}
	if h := Probe("render", errors.New("connection refused")); h.Ready || h.Detail != "connection refused" {
		t.Fatalf("expected failed probe, got %#v", h)
	}
}
