package retrieval

import (
	"context"
	"time"

	"keepsake/internal/logging"
	"keepsake/internal/services"
)

// RecoveryReport counts the repairs made by Recover.
type RecoveryReport struct {
	Completed int
	Reclaimed int
}

// Total returns the number of capsules touched.
func (r RecoveryReport) Total() int {
	return r.Completed + r.Reclaimed
}

// Recover finishes capsules whose result was persisted without the final state
// flip, then moves unlocking claims older than the claim timeout to failed.
func (p *Pipeline) Recover(ctx context.Context) (RecoveryReport, error) {
	var report RecoveryReport

	ids, err := p.store.FindStrandedResults(ctx)
	if err != nil {
		return report, services.Wrap(services.ErrStorage, "", "recover", "find stranded results", err)
	}
	for _, id := range ids {
		capsuleCtx := services.WithCapsuleID(ctx, id)
		logger := logging.WithContext(capsuleCtx, p.logger)
		flipped, err := p.settle(capsuleCtx, id)
		if err != nil {
			logging.WarnWithContext(logger, "stranded result not recovered", "stranded_result_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "capsule will be retried on the next sweep or access"),
			)
			continue
		}
		if flipped {
			report.Completed++
			logger.Info("stranded result recovered",
				logging.String(logging.FieldEventType, "stranded_result_recovered"),
			)
			p.notifyRecovered(capsuleCtx, logger, id)
		}
	}

	cutoff := p.now().Add(-p.cfg.ClaimTimeout())
	reclaimed, err := p.store.ReclaimStaleClaims(ctx, cutoff)
	if err != nil {
		return report, services.Wrap(services.ErrStorage, "", "recover", "reclaim stale claims", err)
	}
	report.Reclaimed = int(reclaimed)
	if reclaimed > 0 {
		logging.WarnWithContext(p.logger, "stale claims reclaimed", "claims_reclaimed",
			logging.Int64("count", reclaimed),
			logging.Time("cutoff", cutoff.UTC().Truncate(time.Second)),
			logging.String(logging.FieldErrorHint, "a previous run stopped mid-pipeline; retry the capsules"),
			logging.String(logging.FieldImpact, "capsules moved to failed"),
		)
	}
	return report, nil
}
