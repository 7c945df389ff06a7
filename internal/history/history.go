// Package history keeps a local record of brightness-relevant state changes
// in SQLite, so recent behaviour can be inspected without a time-series
// database.
package history

import (
	"context"
	"time"
)

// Entry is one recorded state change together with the state it produced.
type Entry struct {
	// ID is the auto-incremented primary key for the history row.
	ID int64 `json:"id"`

	// RecordedAt is when the change was observed (UTC).
	RecordedAt time.Time `json:"recorded_at"`

	// Key names the state field that changed (brightness, relative_level,
	// lux, mode, service_enabled, sense_interval).
	Key string `json:"key"`

	OldValue string `json:"old_value"`
	NewValue string `json:"new_value"`

	// Snapshot values after the change.
	Level      int     `json:"level"`
	Lux        float64 `json:"lux"`
	Brightness int     `json:"brightness"`
}

// Repository stores and retrieves brightness history.
//
// Implementations must be thread-safe and use UTC timestamps.
type Repository interface {
	// Record persists one entry. A zero RecordedAt is stamped with the
	// current time.
	Record(ctx context.Context, e Entry) error

	// Recent returns up to limit entries, newest first.
	Recent(ctx context.Context, limit int) ([]Entry, error)

	// Prune deletes entries recorded before cutoff and returns how many
	// were removed.
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}
