package preflight

import (
	"context"

	"keepsake/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes every preflight check for the given config. The render
// check is skipped when no render endpoint is configured.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckDirectoryAccess("Blob directory", cfg.Storage.BlobDir),
		CheckLLM(ctx, "Text provider", cfg),
	}

	if cfg.Enrichment.RenderBaseURL != "" {
		results = append(results, CheckRender(ctx, cfg.Enrichment.RenderBaseURL, cfg.Enrichment.RenderAPIKey))
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}
