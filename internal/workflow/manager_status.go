package workflow

import (
	"context"
	"time"

	"keepsake/internal/logging"
	"keepsake/internal/stage"
	"keepsake/internal/store"
)

// StatusSummary represents lightweight scheduler diagnostics.
type StatusSummary struct {
	Running        bool
	LastError      string
	LastSweep      time.Time
	LastReport     *SweepReport
	CapsuleStats   map[store.State]int
	ProviderHealth []stage.Health
}

// Status returns the latest scheduler information.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	summary := StatusSummary{
		Running:   m.running,
		LastSweep: m.lastSweep,
	}
	if m.lastErr != nil {
		summary.LastError = m.lastErr.Error()
	}
	if m.lastReport != nil {
		report := *m.lastReport
		summary.LastReport = &report
	}
	m.mu.RUnlock()

	stats, err := m.store.Stats(ctx)
	if err != nil {
		m.logger.Warn("failed to read capsule stats",
			logging.Error(err),
			logging.String(logging.FieldEventType, "capsule_stats_failed"),
		)
	}
	summary.CapsuleStats = stats
	if m.pipeline != nil {
		summary.ProviderHealth = m.pipeline.HealthCheck(ctx)
	}
	return summary
}
