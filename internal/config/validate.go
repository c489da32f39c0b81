package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateCapsule(); err != nil {
		return err
	}
	if err := c.validateEnrichment(); err != nil {
		return err
	}
	if err := c.validateScheduler(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.DataDir == "" {
		return errors.New("paths.data_dir must be set")
	}
	if c.Paths.LogDir == "" {
		return errors.New("paths.log_dir must be set")
	}
	return nil
}

func (c *Config) validateStorage() error {
	switch c.Storage.Backend {
	case storageBackendFilesystem, storageBackendBadger:
	default:
		return fmt.Errorf("storage.backend: unsupported value %q (expected %q or %q)",
			c.Storage.Backend, storageBackendFilesystem, storageBackendBadger)
	}
	if c.Storage.BlobDir == "" {
		return errors.New("storage.blob_dir must be set")
	}
	return ensurePositiveMap(map[string]int{
		"storage.timeout_seconds":       c.Storage.TimeoutSeconds,
		"notifications.request_timeout": c.Notifications.RequestTimeout,
	})
}

func (c *Config) validateCapsule() error {
	if c.Capsule.MaxFileBytes <= 0 {
		return errors.New("capsule.max_file_bytes must be positive")
	}
	return ensurePositiveMap(map[string]int{
		"capsule.max_batch_items":    c.Capsule.MaxBatchItems,
		"capsule.upload_concurrency": c.Capsule.UploadConcurrency,
	})
}

func (c *Config) validateEnrichment() error {
	if err := ensurePositiveMap(map[string]int{
		"enrichment.stage_timeout_seconds":   c.Enrichment.StageTimeoutSeconds,
		"enrichment.render_poll_initial_ms":  c.Enrichment.RenderPollInitialMS,
		"enrichment.render_poll_max_ms":      c.Enrichment.RenderPollMaxMS,
		"enrichment.render_max_wait_seconds": c.Enrichment.RenderMaxWaitSeconds,
		"enrichment.video_duration_seconds":  c.Enrichment.VideoDurationSeconds,
		"enrichment.video_width":             c.Enrichment.VideoWidth,
		"enrichment.video_height":            c.Enrichment.VideoHeight,
	}); err != nil {
		return err
	}
	if c.Enrichment.RenderPollMaxMS < c.Enrichment.RenderPollInitialMS {
		return errors.New("enrichment.render_poll_max_ms must be >= enrichment.render_poll_initial_ms")
	}
	if base := c.Enrichment.RenderBaseURL; base != "" && !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		return fmt.Errorf("enrichment.render_base_url must be an http(s) URL, got %q", base)
	}
	return nil
}

func (c *Config) validateScheduler() error {
	if err := ensurePositiveMap(map[string]int{
		"scheduler.sweep_interval_seconds": c.Scheduler.SweepIntervalSeconds,
		"scheduler.error_retry_seconds":    c.Scheduler.ErrorRetrySeconds,
		"scheduler.claim_timeout_seconds":  c.Scheduler.ClaimTimeoutSeconds,
	}); err != nil {
		return err
	}
	if c.ClaimTimeout() <= c.PipelineBudget() {
		return fmt.Errorf("scheduler.claim_timeout_seconds must exceed the worst-case retrieval time (%s)", c.PipelineBudget())
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
