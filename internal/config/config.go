package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir  string `toml:"data_dir"`
	LogDir   string `toml:"log_dir"`
	APIBind  string `toml:"api_bind"`
	APIToken string `toml:"api_token"`
}

// Storage selects and configures the blob store backend.
type Storage struct {
	Backend        string `toml:"backend"`
	BlobDir        string `toml:"blob_dir"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Capsule contains limits applied when media is attached to a capsule.
type Capsule struct {
	MaxFileBytes      int64 `toml:"max_file_bytes"`
	MaxBatchItems     int   `toml:"max_batch_items"`
	UploadConcurrency int   `toml:"upload_concurrency"`
}

// Scheduler contains timing for the unlock sweep.
type Scheduler struct {
	SweepIntervalSeconds int `toml:"sweep_interval_seconds"`
	ErrorRetrySeconds    int `toml:"error_retry_seconds"`
	ClaimTimeoutSeconds  int `toml:"claim_timeout_seconds"`
}

// Enrichment contains connection settings for the text and render providers.
type Enrichment struct {
	APIKey               string `toml:"api_key"`
	BaseURL              string `toml:"base_url"`
	Model                string `toml:"model"`
	Referer              string `toml:"referer"`
	Title                string `toml:"title"`
	StageTimeoutSeconds  int    `toml:"stage_timeout_seconds"`
	RenderBaseURL        string `toml:"render_base_url"`
	RenderAPIKey         string `toml:"render_api_key"`
	RenderPollInitialMS  int    `toml:"render_poll_initial_ms"`
	RenderPollMaxMS      int    `toml:"render_poll_max_ms"`
	RenderMaxWaitSeconds int    `toml:"render_max_wait_seconds"`
	VideoDurationSeconds int    `toml:"video_duration_seconds"`
	VideoWidth           int    `toml:"video_width"`
	VideoHeight          int    `toml:"video_height"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for Keepsake.
//
// Configuration sections by subsystem:
//   - Paths: data/log directories and API bind address
//   - Storage: blob store backend and I/O timeout
//   - Capsule: per-file and per-batch attach limits
//   - Scheduler: unlock sweep interval and claim recovery
//   - Enrichment: text provider and render service settings
//   - Notifications: ntfy push notification settings
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Storage       Storage       `toml:"storage"`
	Capsule       Capsule       `toml:"capsule"`
	Scheduler     Scheduler     `toml:"scheduler"`
	Enrichment    Enrichment    `toml:"enrichment"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("keepsake.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir, c.Storage.BlobDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the metadata database location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "keepsake.db")
}

// SweepInterval returns the unlock sweep interval.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Scheduler.SweepIntervalSeconds) * time.Second
}

// ErrorRetryInterval returns the delay applied after a failed sweep.
func (c *Config) ErrorRetryInterval() time.Duration {
	return time.Duration(c.Scheduler.ErrorRetrySeconds) * time.Second
}

// ClaimTimeout returns how long an unlocking claim may stay open before it is reclaimed.
func (c *Config) ClaimTimeout() time.Duration {
	return time.Duration(c.Scheduler.ClaimTimeoutSeconds) * time.Second
}

// StorageTimeout bounds each blob store call.
func (c *Config) StorageTimeout() time.Duration {
	return time.Duration(c.Storage.TimeoutSeconds) * time.Second
}

// StageTimeout bounds each enrichment stage call.
func (c *Config) StageTimeout() time.Duration {
	return time.Duration(c.Enrichment.StageTimeoutSeconds) * time.Second
}

// RenderTimeout bounds the render stage: one submit call plus the polling window.
func (c *Config) RenderTimeout() time.Duration {
	return c.StageTimeout() + time.Duration(c.Enrichment.RenderMaxWaitSeconds)*time.Second
}

// PipelineBudget is the longest a single retrieval run may take with every
// external call hitting its timeout.
func (c *Config) PipelineBudget() time.Duration {
	return c.StorageTimeout() + 3*c.StageTimeout() + c.RenderTimeout()
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
