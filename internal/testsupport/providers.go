package testsupport

import (
	"context"
	"sync"
	"time"

	"keepsake/internal/enrichment"
	"keepsake/internal/stage"
)

// StaticProviders is a deterministic enrichment fake. Each stage returns a
// fixed output ("A", "B", "C", "V" by default), records its input and call
// count, and can be made to fail or stall.
type StaticProviders struct {
	mu      sync.Mutex
	outputs map[string]string
	errs    map[string]error
	calls   map[string]int
	inputs  map[string]string
	delay   time.Duration
}

// NewStaticProviders returns a fake with the default outputs.
func NewStaticProviders() *StaticProviders {
	return &StaticProviders{
		outputs: map[string]string{
			stage.Analyze: "A",
			stage.Enhance: "B",
			stage.Compare: "C",
			stage.Render:  "V",
		},
		errs:   map[string]error{},
		calls:  map[string]int{},
		inputs: map[string]string{},
	}
}

// Providers exposes the fake as every stage implementation.
func (s *StaticProviders) Providers() enrichment.Providers {
	return enrichment.Providers{Analyzer: s, Enhancer: s, Comparer: s, Renderer: s}
}

// SetOutput overrides the output of a stage.
func (s *StaticProviders) SetOutput(name, out string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outputs[name] = out
}

// FailStage makes a stage return err until cleared.
func (s *StaticProviders) FailStage(name string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[name] = err
}

// ClearFailures removes all injected errors.
func (s *StaticProviders) ClearFailures() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = map[string]error{}
}

// SetDelay makes every stage wait d (or until its context ends) before answering.
func (s *StaticProviders) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// Calls reports how many times a stage ran.
func (s *StaticProviders) Calls(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[name]
}

// Input returns the last input a stage received.
func (s *StaticProviders) Input(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inputs[name]
}

func (s *StaticProviders) run(ctx context.Context, name, in string) (string, error) {
	s.mu.Lock()
	s.calls[name]++
	s.inputs[name] = in
	delay := s.delay
	out := s.outputs[name]
	err := s.errs[name]
	s.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-timer.C:
		}
	}
	if err != nil {
		return "", err
	}
	return out, nil
}

// Analyze implements enrichment.Analyzer.
func (s *StaticProviders) Analyze(ctx context.Context, doc string) (string, error) {
	return s.run(ctx, stage.Analyze, doc)
}

// Enhance implements enrichment.Enhancer.
func (s *StaticProviders) Enhance(ctx context.Context, text string) (string, error) {
	return s.run(ctx, stage.Enhance, text)
}

// Compare implements enrichment.Comparer.
func (s *StaticProviders) Compare(ctx context.Context, text string) (string, error) {
	return s.run(ctx, stage.Compare, text)
}

// Render implements enrichment.Renderer.
func (s *StaticProviders) Render(ctx context.Context, text string) (string, error) {
	return s.run(ctx, stage.Render, text)
}

// HealthCheck implements stage.Checker.
func (s *StaticProviders) HealthCheck(context.Context) stage.Health {
	return stage.Healthy("static providers")
}
