package enrichment

import (
	"context"

	"keepsake/internal/stage"
)

// VideoClient is the render job call the render stage needs.
type VideoClient interface {
	Render(ctx context.Context, script string) (string, error)
	HealthCheck(ctx context.Context) error
}

// RenderProvider serves the render stage.
type RenderProvider struct {
	client VideoClient
}

// NewRenderProvider wraps a render client.
func NewRenderProvider(client VideoClient) *RenderProvider {
	return &RenderProvider{client: client}
}

// Render implements Renderer.
func (p *RenderProvider) Render(ctx context.Context, text string) (string, error) {
	return p.client.Render(ctx, text)
}

// HealthCheck implements stage.Checker.
func (p *RenderProvider) HealthCheck(ctx context.Context) stage.Health {
	const name = "render service"
	if p.client == nil {
		return stage.Unhealthy(name, "client not configured")
	}
	return stage.Probe(name, p.client.HealthCheck(ctx))
}
