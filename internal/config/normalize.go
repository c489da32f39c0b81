package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeStorage(); err != nil {
		return err
	}
	c.normalizeEnrichment()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv(envAPIToken); ok {
			c.Paths.APIToken = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeStorage() error {
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	if c.Storage.Backend == "" {
		c.Storage.Backend = defaultStorageBackend
	}
	var err error
	if c.Storage.BlobDir, err = expandPath(c.Storage.BlobDir); err != nil {
		return fmt.Errorf("storage.blob_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeEnrichment() {
	c.Enrichment.APIKey = strings.TrimSpace(c.Enrichment.APIKey)
	if c.Enrichment.APIKey == "" {
		if value, ok := os.LookupEnv(envEnrichmentAPIKey); ok {
			c.Enrichment.APIKey = strings.TrimSpace(value)
		} else if value, ok := os.LookupEnv(envOpenRouterAPIKey); ok {
			c.Enrichment.APIKey = strings.TrimSpace(value)
		}
	}
	c.Enrichment.RenderAPIKey = strings.TrimSpace(c.Enrichment.RenderAPIKey)
	if c.Enrichment.RenderAPIKey == "" {
		if value, ok := os.LookupEnv(envRenderAPIKey); ok {
			c.Enrichment.RenderAPIKey = strings.TrimSpace(value)
		}
	}
	c.Enrichment.BaseURL = strings.TrimSpace(c.Enrichment.BaseURL)
	if c.Enrichment.BaseURL == "" {
		c.Enrichment.BaseURL = defaultEnrichmentBaseURL
	}
	c.Enrichment.Model = strings.TrimSpace(c.Enrichment.Model)
	if c.Enrichment.Model == "" {
		c.Enrichment.Model = defaultEnrichmentModel
	}
	c.Enrichment.Referer = strings.TrimSpace(c.Enrichment.Referer)
	c.Enrichment.Title = strings.TrimSpace(c.Enrichment.Title)
	c.Enrichment.RenderBaseURL = strings.TrimRight(strings.TrimSpace(c.Enrichment.RenderBaseURL), "/")
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
