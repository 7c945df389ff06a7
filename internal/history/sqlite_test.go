package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/sgnexus/autobright/internal/infrastructure/config"
	"github.com/sgnexus/autobright/internal/infrastructure/database"
	_ "github.com/sgnexus/autobright/migrations"
)

var _ Repository = (*SQLiteRepository)(nil)

func openTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	db, err := database.Open(config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "history.db"), WALMode: true, BusyTimeout: 5})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewSQLiteRepository(db.DB)
}

func insertEntry(t *testing.T, r *SQLiteRepository, at time.Time, key string, brightness int) {
	t.Helper()
	err := r.Record(context.Background(), Entry{
		RecordedAt: at,
		Key:        key,
		OldValue:   "0",
		NewValue:   "1",
		Level:      50,
		Lux:        300,
		Brightness: brightness,
	})
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
}

func TestSQLiteRepository_RecordAndRecent(t *testing.T) {
	r := openTestRepo(t)
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	insertEntry(t, r, base, "brightness", 10)
	insertEntry(t, r, base.Add(500*time.Millisecond), "brightness", 20)
	insertEntry(t, r, base.Add(2*time.Second), "relative_level", 30)

	got, err := r.Recent(context.Background(), 0)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Recent() returned %d entries, want 3", len(got))
	}
	if got[0].Brightness != 30 || got[1].Brightness != 20 || got[2].Brightness != 10 {
		t.Errorf("Recent() order = %d,%d,%d; want 30,20,10", got[0].Brightness, got[1].Brightness, got[2].Brightness)
	}
	if !got[1].RecordedAt.Equal(base.Add(500 * time.Millisecond)) {
		t.Errorf("RecordedAt = %v, want %v", got[1].RecordedAt, base.Add(500*time.Millisecond))
	}
	if got[0].Key != "relative_level" || got[0].Lux != 300 || got[0].Level != 50 {
		t.Errorf("entry = %+v", got[0])
	}
}

func TestSQLiteRepository_RecentLimit(t *testing.T) {
	r := openTestRepo(t)
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		insertEntry(t, r, base.Add(time.Duration(i)*time.Second), "brightness", i)
	}

	got, err := r.Recent(context.Background(), 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Brightness != 4 {
		t.Errorf("Recent(2) = %+v", got)
	}
}

func TestSQLiteRepository_UnknownLuxStoredAsNull(t *testing.T) {
	r := openTestRepo(t)
	err := r.Record(context.Background(), Entry{Key: "lux", Lux: -1, Brightness: 5})
	if err != nil {
		t.Fatal(err)
	}

	got, err := r.Recent(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Lux != -1 {
		t.Errorf("Recent() = %+v, want lux -1", got)
	}
	if got[0].RecordedAt.IsZero() {
		t.Error("RecordedAt not stamped")
	}
}

func TestSQLiteRepository_RecordRequiresKey(t *testing.T) {
	r := openTestRepo(t)
	if err := r.Record(context.Background(), Entry{}); err == nil {
		t.Error("Record() without key error = nil")
	}
}

func TestSQLiteRepository_Prune(t *testing.T) {
	r := openTestRepo(t)
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	insertEntry(t, r, base.Add(-48*time.Hour), "brightness", 1)
	insertEntry(t, r, base.Add(-25*time.Hour), "brightness", 2)
	insertEntry(t, r, base, "brightness", 3)

	n, err := r.Prune(context.Background(), base.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Prune() removed %d rows, want 2", n)
	}

	got, _ := r.Recent(context.Background(), 10)
	if len(got) != 1 || got[0].Brightness != 3 {
		t.Errorf("remaining = %+v", got)
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
	}{
		{in: "2024-03-01T09:00:00.000000Z"},
		{in: "2024-03-01T09:00:00Z"},
		{in: "2024-03-01 09:00:00"},
		{in: "yesterday", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			_, err := parseTimestamp(tt.in)
			if (err != nil) != tt.wantErr {
				t.Errorf("parseTimestamp(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
		})
	}
}
