package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"keepsake/internal/config"
	"keepsake/internal/logging"
	"keepsake/internal/retrieval"
	"keepsake/internal/stage"
	"keepsake/internal/store"
)

// Pipeline is the retrieval surface the scheduler drives.
type Pipeline interface {
	RetrieveContent(ctx context.Context, capsuleID string) (*store.EnrichmentResult, error)
	Recover(ctx context.Context) (retrieval.RecoveryReport, error)
	HealthCheck(ctx context.Context) []stage.Health
}

// Manager schedules unlock sweeps.
type Manager struct {
	cfg      *config.Config
	store    *store.Store
	pipeline Pipeline
	logger   *slog.Logger
	now      func() time.Time

	mu         sync.RWMutex
	running    bool
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	lastErr    error
	lastSweep  time.Time
	lastReport *SweepReport
}

// ManagerOption configures optional Manager behavior.
type ManagerOption func(*Manager)

// WithClock overrides the time used for the due query.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager constructs a scheduler.
func NewManager(cfg *config.Config, st *store.Store, pipeline Pipeline, logger *slog.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	m := &Manager{
		cfg:      cfg,
		store:    st,
		pipeline: pipeline,
		logger:   logging.NewComponentLogger(logger, "scheduler"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}
