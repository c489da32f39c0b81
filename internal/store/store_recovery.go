package store

import (
	"context"
	"fmt"
	"time"
)

// ClaimExpiredStage is recorded as the failed stage of a reclaimed capsule.
const ClaimExpiredStage = "claim"

// FindStrandedResults returns capsules that hold an enrichment result but never
// reached the unlocked state.
func (s *Store) FindStrandedResults(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.id FROM capsules c
         JOIN enrichment_results r ON r.capsule_id = c.id
         WHERE c.state != ?
         ORDER BY c.id`, string(StateUnlocked))
	if err != nil {
		return nil, fmt.Errorf("find stranded results: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ReclaimStaleClaims moves capsules whose unlocking claim started before cutoff
// to failed so they become eligible for retry.
func (s *Store) ReclaimStaleClaims(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE capsules
         SET state = ?, last_error = 'claim expired before the pipeline finished', failed_stage = ?,
             claimed_at = NULL, updated_at = ?
         WHERE state = ? AND claimed_at IS NOT NULL AND claimed_at < ?
           AND id NOT IN (SELECT capsule_id FROM enrichment_results)`,
		string(StateFailed),
		ClaimExpiredStage,
		s.timestamp(),
		string(StateUnlocking),
		formatTime(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale claims: %w", err)
	}
	return res.RowsAffected()
}
