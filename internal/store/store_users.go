package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// CreateUser registers a user.
func (s *Store) CreateUser(ctx context.Context, name string) (*User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("user name is required")
	}
	user := &User{ID: newID(), Name: name, CreatedAt: s.now().UTC()}
	if _, err := s.execWithRetry(ctx,
		`INSERT INTO users (id, name, created_at) VALUES (?, ?, ?)`,
		user.ID, user.Name, formatTime(user.CreatedAt),
	); err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

// GetUser returns a user or nil when absent.
func (s *Store) GetUser(ctx context.Context, id string) (*User, error) {
	var (
		user       User
		createdRaw string
	)
	err := s.db.QueryRowContext(ctx, `SELECT id, name, created_at FROM users WHERE id = ?`, id).
		Scan(&user.ID, &user.Name, &createdRaw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		user.CreatedAt = created
	}
	return &user, nil
}

// ListUsers returns every registered user in creation order.
func (s *Store) ListUsers(ctx context.Context) ([]*User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, created_at FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var out []*User
	for rows.Next() {
		var (
			user       User
			createdRaw string
		)
		if err := rows.Scan(&user.ID, &user.Name, &createdRaw); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		if created, err := parseTimeString(createdRaw); err == nil {
			user.CreatedAt = created
		}
		out = append(out, &user)
	}
	return out, rows.Err()
}
