package history

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"
)

const (
	defaultLimit = 50
	maxLimit     = 200
)

// timeLayout is fixed-width so that text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

// SQLiteRepository implements Repository on the brightness_history table.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRepository creates a repository on an open, migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

// Record inserts a history entry.
func (r *SQLiteRepository) Record(ctx context.Context, e Entry) error {
	if e.Key == "" {
		return fmt.Errorf("history key is required")
	}
	at := e.RecordedAt
	if at.IsZero() {
		at = r.now()
	}

	// SQLite REAL cannot hold the unknown-lux sentinel meaningfully; store NULL.
	var lux any
	if !math.IsNaN(e.Lux) && !math.IsInf(e.Lux, 0) && e.Lux >= 0 {
		lux = e.Lux
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO brightness_history
		 (recorded_at, key, old_value, new_value, level, lux, brightness)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		at.UTC().Format(timeLayout),
		e.Key,
		e.OldValue,
		e.NewValue,
		e.Level,
		lux,
		e.Brightness,
	)
	if err != nil {
		return fmt.Errorf("inserting brightness history: %w", err)
	}
	return nil
}

// Recent returns history entries ordered newest first. limit defaults to
// 50 and is capped at 200.
func (r *SQLiteRepository) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, recorded_at, key, old_value, new_value, level, lux, brightness
		 FROM brightness_history
		 ORDER BY recorded_at DESC, id DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying brightness history: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var (
			e          Entry
			recordedAt string
			lux        sql.NullFloat64
		)
		if err := rows.Scan(&e.ID, &recordedAt, &e.Key, &e.OldValue, &e.NewValue, &e.Level, &lux, &e.Brightness); err != nil {
			return nil, fmt.Errorf("scanning brightness history: %w", err)
		}
		if lux.Valid {
			e.Lux = lux.Float64
		} else {
			e.Lux = -1
		}

		ts, err := parseTimestamp(recordedAt)
		if err != nil {
			return nil, err
		}
		e.RecordedAt = ts

		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating brightness history: %w", err)
	}

	return entries, nil
}

// Prune deletes entries recorded before cutoff.
func (r *SQLiteRepository) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM brightness_history WHERE recorded_at < ?",
		cutoff.UTC().Format(timeLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("pruning brightness history: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting pruned history rows: %w", err)
	}
	return n, nil
}

// parseTimestamp accepts the fixed layout and falls back to RFC 3339 and
// SQLite's datetime() format for rows written by hand.
func parseTimestamp(value string) (time.Time, error) {
	for _, layout := range []string{timeLayout, time.RFC3339Nano, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("parsing history timestamp %q", value)
}
