package store

import (
	"context"
	"errors"
	"fmt"

	"keepsake/internal/services"
)

// AddCollaboration grants a user access to a capsule. A duplicate pair leaves
// the existing row untouched and returns an error matching services.ErrConflict.
func (s *Store) AddCollaboration(ctx context.Context, c *Collaboration) error {
	if c == nil || c.CapsuleID == "" || c.UserID == "" {
		return errors.New("collaboration requires capsule and user")
	}
	if c.Role == "" {
		c.Role = RoleViewer
	}
	c.CreatedAt = s.now().UTC()
	res, err := s.execWithRetry(ctx,
		`INSERT INTO collaborations (capsule_id, user_id, role, created_at)
         VALUES (?, ?, ?, ?)
         ON CONFLICT(capsule_id, user_id) DO NOTHING`,
		c.CapsuleID, c.UserID, string(c.Role), formatTime(c.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert collaboration: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("collaboration rows: %w", err)
	}
	if affected == 0 {
		return services.Wrap(services.ErrConflict, "", "add collaboration", c.CapsuleID+"/"+c.UserID, nil)
	}
	return nil
}

// ListCollaborations returns the collaborators of a capsule in invitation order.
func (s *Store) ListCollaborations(ctx context.Context, capsuleID string) ([]Collaboration, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT capsule_id, user_id, role, created_at FROM collaborations
         WHERE capsule_id = ? ORDER BY created_at, user_id`, capsuleID)
	if err != nil {
		return nil, fmt.Errorf("list collaborations: %w", err)
	}
	defer rows.Close()

	var out []Collaboration
	for rows.Next() {
		var (
			c          Collaboration
			role       string
			createdRaw string
		)
		if err := rows.Scan(&c.CapsuleID, &c.UserID, &role, &createdRaw); err != nil {
			return nil, fmt.Errorf("scan collaboration: %w", err)
		}
		c.Role = Role(role)
		if created, err := parseTimeString(createdRaw); err == nil {
			c.CreatedAt = created
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
