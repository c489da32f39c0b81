package enrichment

import (
	"context"
	"errors"
	"time"

	"keepsake/internal/config"
	"keepsake/internal/services/llm"
	"keepsake/internal/services/render"
	"keepsake/internal/stage"
)

// Analyzer turns a content document into an analysis.
type Analyzer interface {
	Analyze(ctx context.Context, doc string) (string, error)
}

// Enhancer rewrites an analysis into a narrative.
type Enhancer interface {
	Enhance(ctx context.Context, text string) (string, error)
}

// Comparer produces a then-versus-now comparison from a narrative.
type Comparer interface {
	Compare(ctx context.Context, text string) (string, error)
}

// Renderer produces a video from a script and returns its reference.
type Renderer interface {
	Render(ctx context.Context, text string) (string, error)
}

// Providers bundles one implementation of each stage.
type Providers struct {
	Analyzer Analyzer
	Enhancer Enhancer
	Comparer Comparer
	Renderer Renderer
}

// Validate reports a missing provider.
func (p Providers) Validate() error {
	switch {
	case p.Analyzer == nil:
		return errors.New("enrichment: analyzer not configured")
	case p.Enhancer == nil:
		return errors.New("enrichment: enhancer not configured")
	case p.Comparer == nil:
		return errors.New("enrichment: comparer not configured")
	case p.Renderer == nil:
		return errors.New("enrichment: renderer not configured")
	}
	return nil
}

// HealthCheck collects health from every provider that can report it. The
// text provider serves three stages but is reported once.
func (p Providers) HealthCheck(ctx context.Context) []stage.Health {
	var (
		out  []stage.Health
		seen = map[stage.Checker]bool{}
	)
	for _, candidate := range []any{p.Analyzer, p.Enhancer, p.Comparer, p.Renderer} {
		checker, ok := candidate.(stage.Checker)
		if !ok || seen[checker] {
			continue
		}
		seen[checker] = true
		out = append(out, checker.HealthCheck(ctx))
	}
	return out
}

// NewFromConfig builds the production providers.
func NewFromConfig(cfg *config.Config) Providers {
	text := NewTextProvider(llm.NewClient(llm.Config{
		APIKey:         cfg.Enrichment.APIKey,
		BaseURL:        cfg.Enrichment.BaseURL,
		Model:          cfg.Enrichment.Model,
		Referer:        cfg.Enrichment.Referer,
		Title:          cfg.Enrichment.Title,
		Temperature:    0.7,
		TimeoutSeconds: cfg.Enrichment.StageTimeoutSeconds,
	}))
	video := NewRenderProvider(render.NewClient(render.Config{
		BaseURL:         cfg.Enrichment.RenderBaseURL,
		APIKey:          cfg.Enrichment.RenderAPIKey,
		PollInitial:     time.Duration(cfg.Enrichment.RenderPollInitialMS) * time.Millisecond,
		PollMax:         time.Duration(cfg.Enrichment.RenderPollMaxMS) * time.Millisecond,
		MaxWait:         time.Duration(cfg.Enrichment.RenderMaxWaitSeconds) * time.Second,
		DurationSeconds: cfg.Enrichment.VideoDurationSeconds,
		Width:           cfg.Enrichment.VideoWidth,
		Height:          cfg.Enrichment.VideoHeight,
	}))
	return Providers{Analyzer: text, Enhancer: text, Comparer: text, Renderer: video}
}
