package display

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// setupStateHistoryTestDB creates an in-memory SQLite database with the state_history table.
func setupStateHistoryTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	schema := `
		CREATE TABLE state_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			display_id TEXT NOT NULL,
			feature TEXT NOT NULL,
			code TEXT NOT NULL,
			old_value INTEGER,
			new_value INTEGER NOT NULL,
			source TEXT NOT NULL DEFAULT 'mqtt',
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		) STRICT;
		CREATE INDEX idx_state_history_display ON state_history(display_id, created_at DESC);
		CREATE INDEX idx_state_history_time ON state_history(created_at DESC);
	`

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		t.Fatalf("failed to create test schema: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

// insertHistoryRow inserts a history row with a specific timestamp.
func insertHistoryRow(t *testing.T, db *sql.DB, displayID, feature, code string, newValue int, source string, createdAt time.Time) {
	t.Helper()

	_, err := db.Exec(
		"INSERT INTO state_history (display_id, feature, code, new_value, source, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		displayID,
		feature,
		code,
		newValue,
		source,
		createdAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		t.Fatalf("failed to insert history row: %v", err)
	}
}

// TestRecordChange verifies history writes and retrieval.
func TestRecordChange(t *testing.T) {
	db := setupStateHistoryTestDB(t)
	repo := NewSQLiteStateHistoryRepository(db)
	ctx := context.Background()

	oldValue := 30
	change := FeatureChange{
		Feature:  "brightness",
		Code:     "10",
		OldValue: &oldValue,
		NewValue: 85,
		Source:   HistorySourceAPI,
	}
	if err := repo.RecordChange(ctx, "disp-1", change); err != nil {
		t.Fatalf("RecordChange() error = %v", err)
	}

	entries, err := repo.GetHistory(ctx, "disp-1", 10)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries length = %d, want 1", len(entries))
	}

	entry := entries[0]
	if entry.DisplayID != "disp-1" {
		t.Errorf("DisplayID = %q, want %q", entry.DisplayID, "disp-1")
	}
	if entry.Feature != "brightness" {
		t.Errorf("Feature = %q, want %q", entry.Feature, "brightness")
	}
	if entry.Code != "10" {
		t.Errorf("Code = %q, want %q", entry.Code, "10")
	}
	if entry.OldValue == nil || *entry.OldValue != 30 {
		t.Errorf("OldValue = %v, want 30", entry.OldValue)
	}
	if entry.NewValue != 85 {
		t.Errorf("NewValue = %d, want 85", entry.NewValue)
	}
	if entry.Source != HistorySourceAPI {
		t.Errorf("Source = %q, want %q", entry.Source, HistorySourceAPI)
	}
	if entry.CreatedAt.IsZero() {
		t.Error("CreatedAt is zero, want non-zero")
	}

	t.Run("normalises code and defaults source", func(t *testing.T) {
		if err := repo.RecordChange(ctx, "disp-norm", FeatureChange{
			Feature:  "colour_gain",
			Code:     " 1a ",
			NewValue: 50,
		}); err != nil {
			t.Fatalf("RecordChange() error = %v", err)
		}

		entries, err := repo.GetHistory(ctx, "disp-norm", 10)
		if err != nil {
			t.Fatalf("GetHistory() error = %v", err)
		}
		if len(entries) != 1 {
			t.Fatalf("entries length = %d, want 1", len(entries))
		}
		if entries[0].Code != "1A" {
			t.Errorf("Code = %q, want %q", entries[0].Code, "1A")
		}
		if entries[0].Source != HistorySourceMQTT {
			t.Errorf("Source = %q, want %q", entries[0].Source, HistorySourceMQTT)
		}
		if entries[0].OldValue != nil {
			t.Errorf("OldValue = %v, want nil", entries[0].OldValue)
		}
	})

	t.Run("rejects empty display id", func(t *testing.T) {
		err := repo.RecordChange(ctx, "", FeatureChange{Code: "10", NewValue: 1})
		if err == nil {
			t.Error("RecordChange() error = nil, want error")
		}
	})

	t.Run("rejects empty code", func(t *testing.T) {
		err := repo.RecordChange(ctx, "disp-1", FeatureChange{NewValue: 1})
		if err == nil {
			t.Error("RecordChange() error = nil, want error")
		}
	})
}

// TestGetHistory verifies ordering and limit enforcement.
func TestGetHistory(t *testing.T) {
	db := setupStateHistoryTestDB(t)
	repo := NewSQLiteStateHistoryRepository(db)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	insertHistoryRow(t, db, "disp-1", "brightness", "10", 20, HistorySourcePoll, now.Add(-2*time.Hour))
	insertHistoryRow(t, db, "disp-1", "brightness", "10", 50, HistorySourceAPI, now.Add(-1*time.Hour))
	insertHistoryRow(t, db, "disp-1", "contrast", "12", 70, HistorySourceMQTT, now)
	insertHistoryRow(t, db, "disp-2", "brightness", "10", 90, HistorySourceMQTT, now)

	entries, err := repo.GetHistory(ctx, "disp-1", 2)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries length = %d, want 2", len(entries))
	}

	if !entries[0].CreatedAt.Equal(now) {
		t.Errorf("entry[0] CreatedAt = %s, want %s", entries[0].CreatedAt, now)
	}
	if !entries[1].CreatedAt.Equal(now.Add(-1 * time.Hour)) {
		t.Errorf("entry[1] CreatedAt = %s, want %s", entries[1].CreatedAt, now.Add(-1*time.Hour))
	}
}

// TestGetHistorySameSecondOrdering verifies id breaks timestamp ties.
func TestGetHistorySameSecondOrdering(t *testing.T) {
	db := setupStateHistoryTestDB(t)
	repo := NewSQLiteStateHistoryRepository(db)
	ctx := context.Background()

	// Simulate a fade: several writes within the same second
	now := time.Now().UTC().Truncate(time.Second)
	for _, v := range []int{10, 20, 30} {
		insertHistoryRow(t, db, "disp-fade", "brightness", "10", v, HistorySourceMQTT, now)
	}

	entries, err := repo.GetHistory(ctx, "disp-fade", 10)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("entries length = %d, want 3", len(entries))
	}

	// Latest insert first
	if entries[0].NewValue != 30 || entries[2].NewValue != 10 {
		t.Errorf("order = [%d %d %d], want [30 20 10]",
			entries[0].NewValue, entries[1].NewValue, entries[2].NewValue)
	}
}

// TestGetFeatureHistory verifies filtering to a single feature code.
func TestGetFeatureHistory(t *testing.T) {
	db := setupStateHistoryTestDB(t)
	repo := NewSQLiteStateHistoryRepository(db)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	insertHistoryRow(t, db, "disp-1", "brightness", "10", 40, HistorySourceMQTT, now.Add(-time.Hour))
	insertHistoryRow(t, db, "disp-1", "contrast", "12", 70, HistorySourceMQTT, now.Add(-30*time.Minute))
	insertHistoryRow(t, db, "disp-1", "brightness", "10", 60, HistorySourceAPI, now)

	t.Run("returns only matching code", func(t *testing.T) {
		entries, err := repo.GetFeatureHistory(ctx, "disp-1", "10", 10)
		if err != nil {
			t.Fatalf("GetFeatureHistory() error = %v", err)
		}
		if len(entries) != 2 {
			t.Fatalf("entries length = %d, want 2", len(entries))
		}
		for _, e := range entries {
			if e.Code != "10" {
				t.Errorf("Code = %q, want %q", e.Code, "10")
			}
		}
		if entries[0].NewValue != 60 {
			t.Errorf("entry[0] NewValue = %d, want 60", entries[0].NewValue)
		}
	})

	t.Run("query code is case-insensitive", func(t *testing.T) {
		insertHistoryRow(t, db, "disp-1", "colour_gain", "1A", 45, HistorySourceMQTT, now)

		entries, err := repo.GetFeatureHistory(ctx, "disp-1", "1a", 10)
		if err != nil {
			t.Fatalf("GetFeatureHistory() error = %v", err)
		}
		if len(entries) != 1 {
			t.Fatalf("entries length = %d, want 1", len(entries))
		}
	})
}

// TestPruneStateHistory verifies old entries are removed.
func TestPruneStateHistory(t *testing.T) {
	db := setupStateHistoryTestDB(t)
	repo := NewSQLiteStateHistoryRepository(db)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	insertHistoryRow(t, db, "disp-1", "brightness", "10", 20, HistorySourceMQTT, now.Add(-40*24*time.Hour))
	insertHistoryRow(t, db, "disp-1", "brightness", "10", 80, HistorySourceMQTT, now.Add(-12*time.Hour))

	deleted, err := repo.Prune(ctx, 30*24*time.Hour)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if deleted != 1 {
		t.Fatalf("deleted = %d, want 1", deleted)
	}

	entries, err := repo.GetHistory(ctx, "disp-1", 10)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries length = %d, want 1", len(entries))
	}
	if !entries[0].CreatedAt.Equal(now.Add(-12 * time.Hour)) {
		t.Errorf("remaining CreatedAt = %s, want %s", entries[0].CreatedAt, now.Add(-12*time.Hour))
	}

	t.Run("rejects non-positive retention", func(t *testing.T) {
		if _, err := repo.Prune(ctx, 0); err == nil {
			t.Error("Prune(0) error = nil, want error")
		}
	})
}
