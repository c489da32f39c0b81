package testsupport

import (
	"path/filepath"
	"testing"

	"keepsake/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Timeouts are shortened so failure paths finish quickly.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Storage.BlobDir = filepath.Join(base, "blobs")
	cfgVal.Storage.TimeoutSeconds = 5
	cfgVal.Enrichment.APIKey = "test"
	cfgVal.Enrichment.StageTimeoutSeconds = 5
	cfgVal.Enrichment.RenderBaseURL = "http://127.0.0.1:1"
	cfgVal.Enrichment.RenderPollInitialMS = 1
	cfgVal.Enrichment.RenderPollMaxMS = 5
	cfgVal.Enrichment.RenderMaxWaitSeconds = 5
	cfgVal.Scheduler.SweepIntervalSeconds = 1
	cfgVal.Scheduler.ErrorRetrySeconds = 1

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithBadgerBlobs switches the blob backend to badger.
func WithBadgerBlobs() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Storage.Backend = "badger"
	}
}

// WithLimits overrides the attach limits.
func WithLimits(maxFileBytes int64, maxBatchItems int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Capsule.MaxFileBytes = maxFileBytes
		b.cfg.Capsule.MaxBatchItems = maxBatchItems
	}
}

// WithRenderURL points the render client at a test server.
func WithRenderURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Enrichment.RenderBaseURL = url
	}
}

// WithLLMURL points the text provider at a test server.
func WithLLMURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Enrichment.BaseURL = url
	}
}

// WithAPIToken sets the bearer token required by the HTTP API.
func WithAPIToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.APIToken = token
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
