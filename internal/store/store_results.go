package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"keepsake/internal/services"
)

// AttachResult stores the enrichment result for a capsule. A capsule holds at
// most one result; a second write returns an error matching services.ErrConflict.
func (s *Store) AttachResult(ctx context.Context, capsuleID string, result EnrichmentResult) error {
	if result.CompletedAt.IsZero() {
		result.CompletedAt = s.now()
	}
	res, err := s.execWithRetry(ctx,
		`INSERT INTO enrichment_results (capsule_id, analysis, narrative, comparison, video_ref, completed_at)
         VALUES (?, ?, ?, ?, ?, ?)
         ON CONFLICT(capsule_id) DO NOTHING`,
		capsuleID,
		result.Analysis,
		result.Narrative,
		result.Comparison,
		result.VideoRef,
		formatTime(result.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("attach result: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("attach result rows: %w", err)
	}
	if affected == 0 {
		return services.Wrap(services.ErrConflict, "", "attach result", capsuleID, nil)
	}
	return nil
}

// GetResult returns the stored result for a capsule, or nil when none exists.
func (s *Store) GetResult(ctx context.Context, capsuleID string) (*EnrichmentResult, error) {
	var (
		result       EnrichmentResult
		completedRaw string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT analysis, narrative, comparison, video_ref, completed_at
         FROM enrichment_results WHERE capsule_id = ?`, capsuleID,
	).Scan(&result.Analysis, &result.Narrative, &result.Comparison, &result.VideoRef, &completedRaw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get result: %w", err)
	}
	if completed, err := parseTimeString(completedRaw); err == nil {
		result.CompletedAt = completed
	}
	return &result, nil
}
