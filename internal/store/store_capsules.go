package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// CreateCapsule persists a new capsule in the draft state and assigns its identifier.
func (s *Store) CreateCapsule(ctx context.Context, capsule *Capsule) error {
	if capsule == nil {
		return errors.New("capsule is nil")
	}
	if strings.TrimSpace(capsule.OwnerID) == "" {
		return errors.New("capsule owner is required")
	}
	now := s.now().UTC()
	capsule.ID = newID()
	capsule.State = StateDraft
	capsule.CreatedAt = now
	capsule.UpdatedAt = now
	capsule.Media = nil
	capsule.Result = nil

	_, err := s.execWithRetry(ctx,
		`INSERT INTO capsules (id, owner_id, title, description, unlock_at, state, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		capsule.ID,
		capsule.OwnerID,
		capsule.Title,
		nullableString(capsule.Description),
		formatTime(capsule.UnlockAt),
		string(capsule.State),
		formatTime(now),
		formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("insert capsule: %w", err)
	}
	return nil
}

// GetCapsule fetches a capsule with its media bundle and enrichment result.
// It returns nil without error when the capsule does not exist.
func (s *Store) GetCapsule(ctx context.Context, id string) (*Capsule, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+capsuleColumns+` FROM capsules c WHERE c.id = ?`, id)
	capsule, err := scanCapsule(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get capsule: %w", err)
	}

	items, err := s.listMedia(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(items) > 0 {
		capsule.Media = NewMediaBundle(items)
	}

	result, err := s.GetResult(ctx, id)
	if err != nil {
		return nil, err
	}
	capsule.Result = result
	return capsule, nil
}

// ListCapsules returns capsules matching the filter ordered by unlock time.
// Media and results are not loaded.
func (s *Store) ListCapsules(ctx context.Context, filter CapsuleFilter) ([]*Capsule, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.OwnerID != "" {
		clauses = append(clauses, "c.owner_id = ?")
		args = append(args, filter.OwnerID)
	}
	if len(filter.States) > 0 {
		clauses = append(clauses, "c.state IN ("+makePlaceholders(len(filter.States))+")")
		args = append(args, stateArgs(filter.States)...)
	}
	query := `SELECT ` + capsuleColumns + ` FROM capsules c`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY c.unlock_at, c.id"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	return s.queryCapsules(ctx, query, args...)
}

// FindDue returns capsules in one of the given states whose unlock time is at
// or before now, oldest first.
func (s *Store) FindDue(ctx context.Context, now time.Time, states ...State) ([]*Capsule, error) {
	if len(states) == 0 {
		states = []State{StateLocked}
	}
	args := append(stateArgs(states), formatTime(now))
	query := `SELECT ` + capsuleColumns + ` FROM capsules c
        WHERE c.state IN (` + makePlaceholders(len(states)) + `) AND c.unlock_at <= ?
        ORDER BY c.unlock_at, c.id`
	return s.queryCapsules(ctx, query, args...)
}

func (s *Store) queryCapsules(ctx context.Context, query string, args ...any) ([]*Capsule, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query capsules: %w", err)
	}
	defer rows.Close()

	var out []*Capsule
	for rows.Next() {
		capsule, err := scanCapsule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan capsule: %w", err)
		}
		out = append(out, capsule)
	}
	return out, rows.Err()
}

// ConditionalUpdate writes update to the capsule only if its current state is
// one of expected. It reports whether the row changed; false means another
// writer got there first or the capsule does not exist.
func (s *Store) ConditionalUpdate(ctx context.Context, id string, expected []State, update CapsuleUpdate) (bool, error) {
	if len(expected) == 0 {
		return false, errors.New("conditional update requires expected states")
	}
	if update.State == "" {
		return false, errors.New("conditional update requires a target state")
	}
	now := s.timestamp()
	var claimedAt any
	if update.Claim {
		claimedAt = now
	}
	args := []any{
		string(update.State),
		nullableString(update.LastError),
		nullableString(update.FailedStage),
		claimedAt,
		now,
		id,
	}
	args = append(args, stateArgs(expected)...)
	res, err := s.execWithRetry(ctx,
		`UPDATE capsules
         SET state = ?, last_error = ?, failed_stage = ?, claimed_at = ?, updated_at = ?
         WHERE id = ? AND state IN (`+makePlaceholders(len(expected))+`)`,
		args...,
	)
	if err != nil {
		return false, fmt.Errorf("conditional update: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("conditional update rows: %w", err)
	}
	return affected == 1, nil
}
