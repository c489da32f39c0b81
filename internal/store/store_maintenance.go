package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// DatabaseHealth describes the metadata database for diagnostics.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    int
	MissingTables    []string
	IntegrityCheck   bool
	TotalCapsules    int
	Error            string
}

// Summary aggregates capsule counts per state.
type Summary struct {
	Total     int
	Draft     int
	Locked    int
	Unlocking int
	Unlocked  int
	Failed    int
}

var requiredTables = []string{"users", "capsules", "media_items", "enrichment_results", "collaborations", "notifications"}

// Stats returns a count of capsules grouped by state.
func (s *Store) Stats(ctx context.Context) (map[State]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT state, COUNT(1) FROM capsules GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("capsule stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[State]int)
	for rows.Next() {
		var state State
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return nil, err
		}
		stats[state] = count
	}
	return stats, rows.Err()
}

// Summarize folds Stats into a fixed-shape summary.
func (s *Store) Summarize(ctx context.Context) (Summary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return Summary{}, err
	}
	summary := Summary{}
	for state, count := range stats {
		summary.Total += count
		switch state {
		case StateDraft:
			summary.Draft += count
		case StateLocked:
			summary.Locked += count
		case StateUnlocking:
			summary.Unlocking += count
		case StateUnlocked:
			summary.Unlocked += count
		case StateFailed:
			summary.Failed += count
		}
	}
	return summary, nil
}

// CheckHealth returns diagnostic information about the metadata database.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	health := DatabaseHealth{DBPath: s.path}
	if s.path == "" {
		return health, errors.New("database path is unknown")
	}

	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return health, nil
		}
		return health, fmt.Errorf("stat database: %w", err)
	}
	if info.IsDir() {
		return health, fmt.Errorf("database path %q is a directory", s.path)
	}
	health.DatabaseExists = true

	connCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(connCtx); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("ping database: %w", err)
	}
	health.DatabaseReadable = true

	version, err := s.userVersion(connCtx)
	if err != nil {
		health.Error = err.Error()
		return health, err
	}
	health.SchemaVersion = version

	for _, table := range requiredTables {
		var name string
		err := s.db.QueryRowContext(connCtx,
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&name)
		if errors.Is(err, sql.ErrNoRows) {
			health.MissingTables = append(health.MissingTables, table)
			continue
		}
		if err != nil {
			health.Error = err.Error()
			return health, fmt.Errorf("query table %s: %w", table, err)
		}
	}

	if err := s.db.QueryRowContext(connCtx, "SELECT COUNT(*) FROM capsules").Scan(&health.TotalCapsules); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("count capsules: %w", err)
	}

	var integrity string
	if err := s.db.QueryRowContext(connCtx, "PRAGMA integrity_check").Scan(&integrity); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("integrity check: %w", err)
	}
	health.IntegrityCheck = strings.EqualFold(integrity, "ok")
	return health, nil
}
