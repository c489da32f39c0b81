package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var (
	// ErrStateChanged reports that a capsule left the states a write required.
	ErrStateChanged = errors.New("capsule state changed")
	// ErrNotFound reports that a referenced row does not exist.
	ErrNotFound = errors.New("record not found")
)

func (s *Store) listMedia(ctx context.Context, capsuleID string) ([]MediaItem, error) {
	return queryMedia(ctx, s.db, capsuleID)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryMedia(ctx context.Context, q querier, capsuleID string) ([]MediaItem, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+mediaColumns+` FROM media_items WHERE capsule_id = ? ORDER BY position`, capsuleID)
	if err != nil {
		return nil, fmt.Errorf("list media: %w", err)
	}
	defer rows.Close()

	var items []MediaItem
	for rows.Next() {
		item, err := scanMediaItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan media: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// AppendMedia adds items to the end of a capsule's bundle in one transaction and
// returns the resulting bundle. The capsule must currently be in one of allowed;
// otherwise ErrStateChanged is returned and nothing is written.
func (s *Store) AppendMedia(ctx context.Context, capsuleID string, items []MediaItem, allowed ...State) (*MediaBundle, error) {
	var bundle *MediaBundle
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var state string
		if err := tx.QueryRowContext(ctx, `SELECT state FROM capsules WHERE id = ?`, capsuleID).Scan(&state); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("capsule %s: %w", capsuleID, ErrNotFound)
			}
			return fmt.Errorf("read capsule state: %w", err)
		}
		if len(allowed) > 0 && !stateIn(State(state), allowed) {
			return fmt.Errorf("%w: capsule %s is %s", ErrStateChanged, capsuleID, state)
		}

		var next int
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(position), -1) + 1 FROM media_items WHERE capsule_id = ?`, capsuleID,
		).Scan(&next); err != nil {
			return fmt.Errorf("next media position: %w", err)
		}

		now := s.now().UTC()
		for i := range items {
			item := &items[i]
			if item.ID == "" {
				item.ID = newID()
			}
			item.Position = next + i
			if item.UploadedAt.IsZero() {
				item.UploadedAt = now
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO media_items (id, capsule_id, position, name, blob_key, size_bytes, category, content_type, checksum, uploaded_at)
                 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				item.ID,
				capsuleID,
				item.Position,
				item.Name,
				item.Key,
				item.Size,
				string(item.Category),
				nullableString(item.ContentType),
				nullableString(item.Checksum),
				formatTime(item.UploadedAt),
			); err != nil {
				return fmt.Errorf("insert media item: %w", err)
			}
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE capsules SET updated_at = ? WHERE id = ?`, formatTime(now), capsuleID,
		); err != nil {
			return fmt.Errorf("touch capsule: %w", err)
		}

		all, err := queryMedia(ctx, tx, capsuleID)
		if err != nil {
			return err
		}
		var total int64
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(SUM(size_bytes), 0) FROM media_items WHERE capsule_id = ?`, capsuleID,
		).Scan(&total); err != nil {
			return fmt.Errorf("media total: %w", err)
		}
		bundle = &MediaBundle{Items: all, TotalSize: total}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return bundle, nil
}

// RemoveMedia deletes the given items from a capsule's bundle. It undoes an
// AppendMedia whose follow-up work failed; positions of the remaining items
// are left as they were.
func (s *Store) RemoveMedia(ctx context.Context, capsuleID string, itemIDs []string) error {
	if len(itemIDs) == 0 {
		return nil
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, id := range itemIDs {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM media_items WHERE id = ? AND capsule_id = ?`, id, capsuleID,
			); err != nil {
				return fmt.Errorf("delete media item %s: %w", id, err)
			}
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE capsules SET updated_at = ? WHERE id = ?`, s.timestamp(), capsuleID,
		); err != nil {
			return fmt.Errorf("touch capsule: %w", err)
		}
		return nil
	})
}

func stateIn(state State, states []State) bool {
	for _, candidate := range states {
		if candidate == state {
			return true
		}
	}
	return false
}
