package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/gofrs/flock"

	"keepsake/internal/api"
	"keepsake/internal/config"
	"keepsake/internal/logging"
	"keepsake/internal/notifications"
	"keepsake/internal/workflow"
)

// LockFileName is the single-instance lock kept in the log directory.
const LockFileName = "keepsake.lock"

// Daemon runs the unlock scheduler and the HTTP API and enforces single-instance execution.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	scheduler *workflow.Manager
	service   *api.CapsuleService
	push      notifications.Service
	api       *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	Scheduler    workflow.StatusSummary
	DatabasePath string
	BlobBackend  string
	LockFilePath string
}

// New constructs a daemon around an already wired scheduler and capsule service.
// push may be nil, in which case test notifications report the missing topic.
func New(cfg *config.Config, logger *slog.Logger, scheduler *workflow.Manager, service *api.CapsuleService, push notifications.Service) (*Daemon, error) {
	if cfg == nil || scheduler == nil || service == nil {
		return nil, errors.New("daemon requires config, scheduler, and capsule service")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	lockPath := filepath.Join(cfg.Paths.LogDir, LockFileName)
	d := &Daemon{
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "daemon"),
		scheduler: scheduler,
		service:   service,
		push:      push,
		lockPath:  lockPath,
		lock:      flock.New(lockPath),
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock, then launches the scheduler and the API server.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another keepsake daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.scheduler.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start scheduler: %w", err)
	}
	if err := d.api.start(runCtx); err != nil {
		d.scheduler.Stop()
		cancel()
		_ = d.lock.Unlock()
		return err
	}

	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("keepsake daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.lockPath),
		logging.String("api_bind", d.APIAddress()),
	)
	return nil
}

// Stop stops the API server and the scheduler and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.api.stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.scheduler.Stop()
	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "daemon_lock_release_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove the stale lock file if no daemon is running"),
		)
	}
	d.running.Store(false)
	d.logger.Info("keepsake daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	return nil
}

// APIAddress returns the address the API server listens on, or the configured
// bind before Start.
func (d *Daemon) APIAddress() string {
	if d.api == nil {
		return ""
	}
	return d.api.address()
}

// TestNotification sends a test push using the configured ntfy topic.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" || d.push == nil {
		return false, "ntfy topic not configured", nil
	}
	if err := d.push.TestNotification(ctx); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Scheduler:    d.scheduler.Status(ctx),
		DatabasePath: d.cfg.DatabasePath(),
		BlobBackend:  d.cfg.Storage.Backend,
		LockFilePath: d.lockPath,
	}
}
