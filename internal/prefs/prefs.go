// Package prefs persists user preferences (relative level, sense interval)
// in the SQLite preferences table.
package prefs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrEmptyKey is returned for an empty preference key.
var ErrEmptyKey = errors.New("prefs: key is required")

// SQLiteStore implements control.Preferences on SQLite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore creates a preference store on an open, migrated database.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db, now: time.Now}
}

// Load returns the stored value for key, or def when it was never saved.
func (s *SQLiteStore) Load(ctx context.Context, key string, def int) (int, error) {
	if key == "" {
		return def, ErrEmptyKey
	}

	var value int
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM preferences WHERE key = ?", key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return def, nil
	}
	if err != nil {
		return def, fmt.Errorf("loading preference %s: %w", key, err)
	}
	return value, nil
}

// Save stores value under key, replacing any previous value.
func (s *SQLiteStore) Save(ctx context.Context, key string, value int) error {
	if key == "" {
		return ErrEmptyKey
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO preferences (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key,
		value,
		s.now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("saving preference %s: %w", key, err)
	}
	return nil
}

// All returns every stored preference.
func (s *SQLiteStore) All(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key, value FROM preferences ORDER BY key")
	if err != nil {
		return nil, fmt.Errorf("querying preferences: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var (
			key   string
			value int
		)
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scanning preference: %w", err)
		}
		out[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating preferences: %w", err)
	}
	return out, nil
}
