package display

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// SQLiteStateHistoryRepository implements StateHistoryRepository using SQLite.
//
// It stores one row per feature change in the state_history table. Rapid
// write bursts (brightness fades step every few hundred milliseconds) make
// same-second timestamps routine, so reads order by id as a tiebreaker.
type SQLiteStateHistoryRepository struct {
	db *sql.DB
}

// NewSQLiteStateHistoryRepository creates a new SQLite state history repository.
//
// Parameters:
//   - db: Open SQLite connection used for queries
//
// Returns:
//   - *SQLiteStateHistoryRepository: Repository instance ready for use
func NewSQLiteStateHistoryRepository(db *sql.DB) *SQLiteStateHistoryRepository {
	return &SQLiteStateHistoryRepository{db: db}
}

// RecordChange inserts a new feature change entry for a display.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - displayID: Unique display identifier
//   - change: Change to persist; Code is normalised to upper case
//
// Returns:
//   - error: nil on success, otherwise the underlying database error
func (r *SQLiteStateHistoryRepository) RecordChange(ctx context.Context, displayID string, change FeatureChange) error {
	if displayID == "" {
		return fmt.Errorf("display id is required")
	}
	if change.Source == "" {
		change.Source = HistorySourceMQTT
	}

	code := strings.ToUpper(strings.TrimSpace(change.Code))
	if code == "" {
		return fmt.Errorf("feature code is required")
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO state_history (display_id, feature, code, old_value, new_value, source)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		displayID,
		change.Feature,
		code,
		change.OldValue,
		change.NewValue,
		change.Source,
	)
	if err != nil {
		return fmt.Errorf("inserting state history: %w", err)
	}

	return nil
}

// GetHistory returns recent change entries for a display, ordered newest first.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - displayID: Unique display identifier
//   - limit: Maximum entries to return (default 50, max 200)
//
// Returns:
//   - []StateHistoryEntry: Entries ordered by created_at DESC, id DESC
//   - error: nil on success, otherwise the underlying query error
func (r *SQLiteStateHistoryRepository) GetHistory(ctx context.Context, displayID string, limit int) ([]StateHistoryEntry, error) {
	if displayID == "" {
		return nil, fmt.Errorf("display id is required")
	}

	return r.queryHistory(ctx,
		`SELECT id, display_id, feature, code, old_value, new_value, source, created_at
		 FROM state_history
		 WHERE display_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		displayID,
		clampLimit(limit),
	)
}

// GetFeatureHistory returns recent change entries for one feature of a display,
// ordered newest first.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - displayID: Unique display identifier
//   - code: Feature code hex, case-insensitive
//   - limit: Maximum entries to return (default 50, max 200)
//
// Returns:
//   - []StateHistoryEntry: Entries ordered by created_at DESC, id DESC
//   - error: nil on success, otherwise the underlying query error
func (r *SQLiteStateHistoryRepository) GetFeatureHistory(ctx context.Context, displayID, code string, limit int) ([]StateHistoryEntry, error) {
	if displayID == "" {
		return nil, fmt.Errorf("display id is required")
	}

	normalised := strings.ToUpper(strings.TrimSpace(code))
	if normalised == "" {
		return nil, fmt.Errorf("feature code is required")
	}

	return r.queryHistory(ctx,
		`SELECT id, display_id, feature, code, old_value, new_value, source, created_at
		 FROM state_history
		 WHERE display_id = ? AND code = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		displayID,
		normalised,
		clampLimit(limit),
	)
}

// Prune deletes history entries older than the given duration.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - olderThan: Duration to retain (entries older than now-olderThan are deleted)
//
// Returns:
//   - int64: Number of rows deleted
//   - error: nil on success, otherwise the underlying database error
func (r *SQLiteStateHistoryRepository) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}

	cutoff := time.Now().UTC().Add(-olderThan).Format(time.RFC3339)
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM state_history WHERE created_at < ?",
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("deleting state history: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}

	return rowsAffected, nil
}

// queryHistory runs a history query and scans the resulting rows.
func (r *SQLiteStateHistoryRepository) queryHistory(ctx context.Context, query string, args ...any) ([]StateHistoryEntry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying state history: %w", err)
	}
	defer rows.Close()

	var entries []StateHistoryEntry
	for rows.Next() {
		var entry StateHistoryEntry
		var oldValue sql.NullInt64
		var createdAt string

		if err := rows.Scan(
			&entry.ID,
			&entry.DisplayID,
			&entry.Feature,
			&entry.Code,
			&oldValue,
			&entry.NewValue,
			&entry.Source,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("scanning state history: %w", err)
		}

		if oldValue.Valid {
			v := int(oldValue.Int64)
			entry.OldValue = &v
		}

		timestamp, err := parseHistoryTimestamp(createdAt)
		if err != nil {
			return nil, err
		}
		entry.CreatedAt = timestamp

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating state history: %w", err)
	}

	return entries, nil
}

// clampLimit applies the default and maximum history query limits.
func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		return maxHistoryLimit
	}
	return limit
}

// parseHistoryTimestamp parses a timestamp stored in SQLite.
func parseHistoryTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("created_at is empty")
	}

	timestamp, err := time.Parse(time.RFC3339, value)
	if err == nil {
		return timestamp, nil
	}

	fallback, fallbackErr := time.Parse("2006-01-02 15:04:05", value)
	if fallbackErr == nil {
		return fallback.UTC(), nil
	}

	return time.Time{}, fmt.Errorf("parsing created_at: %w", err)
}
