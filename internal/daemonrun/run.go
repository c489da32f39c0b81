package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"keepsake/internal/config"
	"keepsake/internal/daemon"
	"keepsake/internal/logging"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel string
}

// Run starts the keepsake daemon and blocks until SIGINT, SIGTERM, or cmdCtx ends.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		cfg.Logging.Level = level
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logPath := filepath.Join(cfg.Paths.LogDir, logging.LogFileName)
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays, cfg.Paths.LogDir, "*.log", logPath)
	logConfigSnapshot(logger, cfg)

	pidPath := filepath.Join(cfg.Paths.LogDir, "keepsake.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	rt, err := Open(cfg, logger)
	if err != nil {
		logger.Error("open runtime", logging.Error(err))
		return err
	}
	defer rt.Close()

	d, err := daemon.New(cfg, logger, rt.Scheduler, rt.Service, rt.Push)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	<-signalCtx.Done()
	logger.Info("keepsake daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logConfigSnapshot(logger *slog.Logger, cfg *config.Config) {
	logger.Info("configuration snapshot",
		logging.String(logging.FieldEventType, "config_snapshot"),
		logging.String("database", cfg.DatabasePath()),
		logging.String("blob_backend", cfg.Storage.Backend),
		logging.String("blob_dir", cfg.Storage.BlobDir),
		logging.String("api_bind", cfg.Paths.APIBind),
		logging.Bool("api_token_set", strings.TrimSpace(cfg.Paths.APIToken) != ""),
		logging.Bool("llm_key_present", strings.TrimSpace(cfg.Enrichment.APIKey) != ""),
		logging.String("llm_model", cfg.Enrichment.Model),
		logging.Bool("render_configured", strings.TrimSpace(cfg.Enrichment.RenderBaseURL) != ""),
		logging.Bool("ntfy_enabled", strings.TrimSpace(cfg.Notifications.NtfyTopic) != ""),
		logging.Duration("sweep_interval", cfg.SweepInterval()),
		logging.Duration("claim_timeout", cfg.ClaimTimeout()),
	)
}
