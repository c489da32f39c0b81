package daemonrun

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"keepsake/internal/api"
	"keepsake/internal/blob"
	"keepsake/internal/config"
	"keepsake/internal/enrichment"
	"keepsake/internal/lifecycle"
	"keepsake/internal/logging"
	"keepsake/internal/notifications"
	"keepsake/internal/retrieval"
	"keepsake/internal/store"
	"keepsake/internal/workflow"
)

// Runtime bundles the opened stores and every service built on them. The
// daemon and the CLI both construct one.
type Runtime struct {
	Config    *config.Config
	Logger    *slog.Logger
	Store     *store.Store
	Blobs     blob.Store
	Push      notifications.Service
	Notifier  *notifications.Notifier
	Capsules  *lifecycle.Manager
	Pipeline  *retrieval.Pipeline
	Scheduler *workflow.Manager
	Service   *api.CapsuleService
}

type runtimeOptions struct {
	providers *enrichment.Providers
	push      notifications.Service
	now       func() time.Time
}

// RuntimeOption customizes Open.
type RuntimeOption func(*runtimeOptions)

// WithProviders replaces the providers built from configuration.
func WithProviders(p enrichment.Providers) RuntimeOption {
	return func(o *runtimeOptions) { o.providers = &p }
}

// WithPushService replaces the ntfy service built from configuration.
func WithPushService(svc notifications.Service) RuntimeOption {
	return func(o *runtimeOptions) { o.push = svc }
}

// WithClock sets the time source for the store and every service.
func WithClock(now func() time.Time) RuntimeOption {
	return func(o *runtimeOptions) { o.now = now }
}

// Open opens the metadata and blob stores and wires the services. Close
// releases both stores.
func Open(cfg *config.Config, logger *slog.Logger, opts ...RuntimeOption) (*Runtime, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	var o runtimeOptions
	for _, opt := range opts {
		opt(&o)
	}

	st, err := store.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open metadata store: %w", err)
	}
	blobs, err := blob.Open(cfg)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("open blob store: %w", err)
	}
	if o.now != nil {
		st.SetClock(o.now)
	}

	providers := enrichment.NewFromConfig(cfg)
	if o.providers != nil {
		providers = *o.providers
	}
	push := o.push
	if push == nil {
		push = notifications.NewService(cfg)
	}

	notifier := notifications.NewNotifier(st, push, logger)
	capsules := lifecycle.NewManager(cfg, st, blobs, logger, lifecycle.WithClock(o.now))
	pipeline := retrieval.NewPipeline(cfg, st, blobs, providers, notifier, logger, retrieval.WithClock(o.now))
	scheduler := workflow.NewManager(cfg, st, pipeline, logger, workflow.WithClock(o.now))

	return &Runtime{
		Config:    cfg,
		Logger:    logger,
		Store:     st,
		Blobs:     blobs,
		Push:      push,
		Notifier:  notifier,
		Capsules:  capsules,
		Pipeline:  pipeline,
		Scheduler: scheduler,
		Service:   api.NewCapsuleService(st, capsules, pipeline, notifier),
	}, nil
}

// Close stops the scheduler and releases both stores.
func (r *Runtime) Close() error {
	if r == nil {
		return nil
	}
	if r.Scheduler != nil {
		r.Scheduler.Stop()
	}
	return errors.Join(r.Blobs.Close(), r.Store.Close())
}
