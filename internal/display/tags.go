package display

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
)

// TagRepository manages the free-form tags attached to displays.
// Tags group displays across rooms and bridges ("studio", "colour-critical")
// and back the tag filters exposed by the REST API.
type TagRepository interface {
	// SetTags replaces the full tag set for a display.
	SetTags(ctx context.Context, displayID string, tags []string) error

	// GetTags returns the tags for a display, sorted alphabetically.
	GetTags(ctx context.Context, displayID string) ([]string, error)

	// AddTag attaches a single tag to a display. Adding an existing
	// tag is a no-op.
	AddTag(ctx context.Context, displayID, tag string) error

	// RemoveTag detaches a single tag from a display.
	RemoveTag(ctx context.Context, displayID, tag string) error

	// ListDisplaysByTag returns the IDs of all displays carrying the tag.
	ListDisplaysByTag(ctx context.Context, tag string) ([]string, error)

	// ListAllTags returns every distinct tag in use, sorted alphabetically.
	ListAllTags(ctx context.Context) ([]string, error)

	// GetTagsForDisplays bulk-loads tags for many displays in one query.
	// The result maps display ID to its sorted tag list; displays with
	// no tags are absent from the map.
	GetTagsForDisplays(ctx context.Context, displayIDs []string) (map[string][]string, error)
}

// normaliseTag lowercases and trims a tag. Returns "" for unusable input.
func normaliseTag(tag string) string {
	return strings.ToLower(strings.TrimSpace(tag))
}

// normaliseTags normalises, deduplicates and sorts a tag list.
// Empty tags are dropped. A nil or empty input yields nil.
func normaliseTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		t := normaliseTag(tag)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	if len(out) == 0 {
		return nil
	}
	sort.Strings(out)
	return out
}

// SQLiteTagRepository implements TagRepository using SQLite.
// Rows live in display_tags(display_id, tag) with a composite primary
// key and an ON DELETE CASCADE foreign key to displays.
type SQLiteTagRepository struct {
	db *sql.DB
}

// NewSQLiteTagRepository creates a new SQLite-backed tag repository.
func NewSQLiteTagRepository(db *sql.DB) *SQLiteTagRepository {
	return &SQLiteTagRepository{db: db}
}

// SetTags replaces the full tag set for a display inside a transaction.
func (r *SQLiteTagRepository) SetTags(ctx context.Context, displayID string, tags []string) error {
	normalised := normaliseTags(tags)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM display_tags WHERE display_id = ?`, displayID); err != nil {
		return fmt.Errorf("clearing tags: %w", err)
	}

	for _, tag := range normalised {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO display_tags (display_id, tag) VALUES (?, ?)`,
			displayID, tag,
		); err != nil {
			return fmt.Errorf("inserting tag %q: %w", tag, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing tags: %w", err)
	}
	return nil
}

// GetTags returns the tags for a display, sorted alphabetically.
func (r *SQLiteTagRepository) GetTags(ctx context.Context, displayID string) ([]string, error) {
	return r.queryStringList(ctx,
		`SELECT tag FROM display_tags WHERE display_id = ? ORDER BY tag`,
		displayID,
	)
}

// AddTag attaches a single tag to a display.
func (r *SQLiteTagRepository) AddTag(ctx context.Context, displayID, tag string) error {
	t := normaliseTag(tag)
	if t == "" {
		return nil
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO display_tags (display_id, tag) VALUES (?, ?)`,
		displayID, t,
	)
	if err != nil {
		return fmt.Errorf("adding tag: %w", err)
	}
	return nil
}

// RemoveTag detaches a single tag from a display.
func (r *SQLiteTagRepository) RemoveTag(ctx context.Context, displayID, tag string) error {
	t := normaliseTag(tag)
	if t == "" {
		return nil
	}

	_, err := r.db.ExecContext(ctx,
		`DELETE FROM display_tags WHERE display_id = ? AND tag = ?`,
		displayID, t,
	)
	if err != nil {
		return fmt.Errorf("removing tag: %w", err)
	}
	return nil
}

// ListDisplaysByTag returns the IDs of all displays carrying the tag.
func (r *SQLiteTagRepository) ListDisplaysByTag(ctx context.Context, tag string) ([]string, error) {
	t := normaliseTag(tag)
	if t == "" {
		return nil, nil
	}

	return r.queryStringList(ctx,
		`SELECT display_id FROM display_tags WHERE tag = ? ORDER BY display_id`,
		t,
	)
}

// ListAllTags returns every distinct tag in use, sorted alphabetically.
func (r *SQLiteTagRepository) ListAllTags(ctx context.Context) ([]string, error) {
	return r.queryStringList(ctx,
		`SELECT DISTINCT tag FROM display_tags ORDER BY tag`,
	)
}

// GetTagsForDisplays bulk-loads tags for many displays in one query.
func (r *SQLiteTagRepository) GetTagsForDisplays(ctx context.Context, displayIDs []string) (map[string][]string, error) {
	if len(displayIDs) == 0 {
		return map[string][]string{}, nil
	}

	placeholders := make([]string, len(displayIDs))
	args := make([]any, len(displayIDs))
	for i, id := range displayIDs {
		placeholders[i] = "?"
		args[i] = id
	}

	query := fmt.Sprintf(
		`SELECT display_id, tag FROM display_tags WHERE display_id IN (%s) ORDER BY display_id, tag`,
		strings.Join(placeholders, ", "),
	)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying tags: %w", err)
	}
	defer rows.Close()

	result := make(map[string][]string)
	for rows.Next() {
		var displayID, tag string
		if err := rows.Scan(&displayID, &tag); err != nil {
			return nil, fmt.Errorf("scanning tag row: %w", err)
		}
		result[displayID] = append(result[displayID], tag)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tag rows: %w", err)
	}
	return result, nil
}

// queryStringList runs a single-column query and collects the values.
func (r *SQLiteTagRepository) queryStringList(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying: %w", err)
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	return values, nil
}
