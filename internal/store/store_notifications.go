package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// CreateNotification inserts an unread notification for a user.
func (s *Store) CreateNotification(ctx context.Context, userID string, kind NotificationKind, payload NotificationPayload) (*Notification, error) {
	if userID == "" {
		return nil, errors.New("notification user is required")
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode notification payload: %w", err)
	}
	n := &Notification{
		ID:        newID(),
		UserID:    userID,
		Kind:      kind,
		Payload:   payload,
		CreatedAt: s.now().UTC(),
	}
	if _, err := s.execWithRetry(ctx,
		`INSERT INTO notifications (id, user_id, kind, payload_json, read, created_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		n.ID, n.UserID, string(n.Kind), string(encoded), boolToInt(n.Read), formatTime(n.CreatedAt),
	); err != nil {
		return nil, fmt.Errorf("insert notification: %w", err)
	}
	return n, nil
}

// ListNotifications returns a user's notifications, newest first.
func (s *Store) ListNotifications(ctx context.Context, userID string, unreadOnly bool) ([]*Notification, error) {
	query := `SELECT id, user_id, kind, payload_json, read, created_at FROM notifications WHERE user_id = ?`
	if unreadOnly {
		query += " AND read = 0"
	}
	query += " ORDER BY created_at DESC, id DESC"
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var out []*Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// CountNotifications returns how many notifications of kind reference capsuleID.
func (s *Store) CountNotifications(ctx context.Context, capsuleID string, kind NotificationKind) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM notifications WHERE kind = ? AND json_extract(payload_json, '$.capsule_id') = ?`,
		string(kind), capsuleID,
	).Scan(&count); err != nil {
		return 0, fmt.Errorf("count notifications: %w", err)
	}
	return count, nil
}

// MarkNotificationRead flags a notification as read. It reports false when no
// notification has the id.
func (s *Store) MarkNotificationRead(ctx context.Context, id string) (bool, error) {
	res, err := s.execWithRetry(ctx, `UPDATE notifications SET read = 1 WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("mark notification read: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark notification rows: %w", err)
	}
	return affected > 0, nil
}
