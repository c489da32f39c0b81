package enrichment

import (
	"context"
	"errors"
	"strings"

	"keepsake/internal/stage"
)

// Completer is the chat completion call the text stages need.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	HealthCheck(ctx context.Context) error
}

// TextProvider serves analyze, enhance and compare through one chat client.
type TextProvider struct {
	client Completer
}

// NewTextProvider wraps a chat client.
func NewTextProvider(client Completer) *TextProvider {
	return &TextProvider{client: client}
}

// Analyze implements Analyzer.
func (p *TextProvider) Analyze(ctx context.Context, doc string) (string, error) {
	return p.complete(ctx, AnalyzePrompt(doc))
}

// Enhance implements Enhancer.
func (p *TextProvider) Enhance(ctx context.Context, text string) (string, error) {
	return p.complete(ctx, EnhancePrompt(text))
}

// Compare implements Comparer.
func (p *TextProvider) Compare(ctx context.Context, text string) (string, error) {
	return p.complete(ctx, ComparePrompt(text))
}

func (p *TextProvider) complete(ctx context.Context, prompt string) (string, error) {
	out, err := p.client.Complete(ctx, SystemPrompt, prompt)
	if err != nil {
		return "", err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", errors.New("text provider returned empty content")
	}
	return out, nil
}

// HealthCheck implements stage.Checker.
func (p *TextProvider) HealthCheck(ctx context.Context) stage.Health {
	const name = "text provider"
	if p.client == nil {
		return stage.Unhealthy(name, "client not configured")
	}
	return stage.Probe(name, p.client.HealthCheck(ctx))
}
