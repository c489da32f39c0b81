package workflow

import (
	"context"
	"errors"
	"time"

	"keepsake/internal/logging"
	"keepsake/internal/services"
	"keepsake/internal/store"
)

// SweepReport counts what one sweep did.
type SweepReport struct {
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Due       int           `json:"due"`
	Unlocked  int           `json:"unlocked"`
	Skipped   int           `json:"skipped"`
	Failed    int           `json:"failed"`
	Recovered int           `json:"recovered"`
}

// Sweep runs recovery, then retrieves every due locked capsule. The returned
// error is set only when the due query fails; per-capsule failures are
// counted and logged.
func (m *Manager) Sweep(ctx context.Context) (SweepReport, error) {
	report := SweepReport{StartedAt: m.now().UTC()}
	started := time.Now()

	recovery, err := m.pipeline.Recover(ctx)
	if err != nil {
		logging.WarnWithContext(m.logger, "recovery failed", "recovery_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "stranded capsules wait for the next sweep"),
		)
	}
	report.Recovered = recovery.Total()

	due, err := m.store.FindDue(ctx, m.now(), store.StateLocked)
	if err != nil {
		err = services.Wrap(services.ErrStorage, "", "sweep", "find due", err)
		m.finish(report, started, err)
		return report, err
	}
	report.Due = len(due)

	for _, capsule := range due {
		if ctx.Err() != nil {
			break
		}
		capsuleCtx := services.WithCapsuleID(ctx, capsule.ID)
		_, err := m.pipeline.RetrieveContent(capsuleCtx, capsule.ID)
		switch {
		case err == nil:
			report.Unlocked++
		case errors.Is(err, services.ErrAlreadyUnlocking), errors.Is(err, services.ErrStillLocked):
			report.Skipped++
		default:
			report.Failed++
			logging.WarnWithContext(logging.WithContext(capsuleCtx, m.logger), "capsule unlock failed", "capsule_unlock_failed",
				logging.Error(err),
				logging.String(logging.FieldStage, services.StageOf(err)),
				logging.String(logging.FieldErrorHint, "inspect with keepsake capsule show and retry with keepsake capsule retry"),
				logging.String(logging.FieldImpact, "capsule stays failed until retried"),
			)
		}
	}

	m.finish(report, started, nil)
	return report, nil
}

func (m *Manager) finish(report SweepReport, started time.Time, err error) {
	report.Duration = time.Since(started)

	m.mu.Lock()
	m.lastErr = err
	m.lastSweep = report.StartedAt
	m.lastReport = &report
	m.mu.Unlock()

	if err != nil {
		return
	}
	level := m.logger.Debug
	if report.Due > 0 || report.Recovered > 0 {
		level = m.logger.Info
	}
	level("sweep completed",
		logging.String(logging.FieldEventType, "sweep_completed"),
		logging.Int("due", report.Due),
		logging.Int("unlocked", report.Unlocked),
		logging.Int("skipped", report.Skipped),
		logging.Int("failed", report.Failed),
		logging.Int("recovered", report.Recovered),
		logging.Duration("duration", report.Duration),
	)
}
