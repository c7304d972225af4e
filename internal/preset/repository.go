package preset

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines the interface for preset persistence.
// This abstraction allows different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// Preset CRUD
	GetByID(ctx context.Context, id string) (*Preset, error)
	GetBySlug(ctx context.Context, slug string) (*Preset, error)
	List(ctx context.Context) ([]Preset, error)
	ListByDisplay(ctx context.Context, displayID string) ([]Preset, error)
	Create(ctx context.Context, p *Preset) error
	Update(ctx context.Context, p *Preset) error
	Delete(ctx context.Context, id string) error

	// Application logging
	CreateApplication(ctx context.Context, app *Application) error
	UpdateApplication(ctx context.Context, app *Application) error
	GetApplication(ctx context.Context, id string) (*Application, error)
	ListApplications(ctx context.Context, presetID string, limit int) ([]Application, error)
}

// presetColumns is the SELECT column list for preset queries.
const presetColumns = `id, name, slug, description, display_id, enabled,
			steps, sort_order, created_at, updated_at`

// applicationColumns is the SELECT column list for application queries.
const applicationColumns = `id, preset_id, display_id, triggered_at, started_at, completed_at,
			actor, source, status,
			steps_total, steps_applied, steps_failed, steps_skipped,
			results, duration_ms`

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// GetByID retrieves a preset by its unique identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Preset, error) {
	query := `SELECT ` + presetColumns + ` FROM presets WHERE id = ?`

	row := r.db.QueryRowContext(ctx, query, id)
	p, err := scanPresetRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPresetNotFound
		}
		return nil, fmt.Errorf("querying preset by id: %w", err)
	}
	return p, nil
}

// GetBySlug retrieves a preset by its slug.
func (r *SQLiteRepository) GetBySlug(ctx context.Context, slug string) (*Preset, error) {
	query := `SELECT ` + presetColumns + ` FROM presets WHERE slug = ?`

	row := r.db.QueryRowContext(ctx, query, slug)
	p, err := scanPresetRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPresetNotFound
		}
		return nil, fmt.Errorf("querying preset by slug: %w", err)
	}
	return p, nil
}

// List retrieves all presets ordered by sort_order then name.
func (r *SQLiteRepository) List(ctx context.Context) ([]Preset, error) {
	query := `SELECT ` + presetColumns + ` FROM presets ORDER BY sort_order, name`
	return r.queryPresets(ctx, query)
}

// ListByDisplay retrieves all presets bound to a specific display.
func (r *SQLiteRepository) ListByDisplay(ctx context.Context, displayID string) ([]Preset, error) {
	query := `SELECT ` + presetColumns + ` FROM presets WHERE display_id = ? ORDER BY sort_order, name`
	return r.queryPresets(ctx, query, displayID)
}

// Create inserts a new preset.
func (r *SQLiteRepository) Create(ctx context.Context, p *Preset) error {
	stepsJSON, err := json.Marshal(p.Steps)
	if err != nil {
		return fmt.Errorf("marshalling steps: %w", err)
	}

	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	query := `
		INSERT INTO presets (
			id, name, slug, description, display_id, enabled,
			steps, sort_order, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, query,
		p.ID,
		p.Name,
		p.Slug,
		nullableString(p.Description),
		nullableString(p.DisplayID),
		boolToInt(p.Enabled),
		string(stepsJSON),
		p.SortOrder,
		p.CreatedAt.Format(time.RFC3339),
		p.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrPresetExists
		}
		return fmt.Errorf("inserting preset: %w", err)
	}
	return nil
}

// Update modifies an existing preset.
func (r *SQLiteRepository) Update(ctx context.Context, p *Preset) error {
	stepsJSON, err := json.Marshal(p.Steps)
	if err != nil {
		return fmt.Errorf("marshalling steps: %w", err)
	}

	p.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE presets SET
			name = ?, slug = ?, description = ?, display_id = ?,
			enabled = ?, steps = ?, sort_order = ?, updated_at = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		p.Name,
		p.Slug,
		nullableString(p.Description),
		nullableString(p.DisplayID),
		boolToInt(p.Enabled),
		string(stepsJSON),
		p.SortOrder,
		p.UpdatedAt.Format(time.RFC3339),
		p.ID,
	)
	if err != nil {
		return fmt.Errorf("updating preset: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrPresetNotFound
	}
	return nil
}

// Delete removes a preset by ID.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM presets WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting preset: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrPresetNotFound
	}
	return nil
}

// CreateApplication inserts a new application record.
func (r *SQLiteRepository) CreateApplication(ctx context.Context, app *Application) error {
	resultsJSON, err := marshalResults(app.Results)
	if err != nil {
		return fmt.Errorf("marshalling results: %w", err)
	}

	query := `
		INSERT INTO preset_applications (
			id, preset_id, display_id, triggered_at, started_at, completed_at,
			actor, source, status,
			steps_total, steps_applied, steps_failed, steps_skipped,
			results, duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, query,
		app.ID,
		app.PresetID,
		app.DisplayID,
		app.TriggeredAt.Format(time.RFC3339),
		nullableTime(app.StartedAt),
		nullableTime(app.CompletedAt),
		nullableString(app.Actor),
		app.Source,
		string(app.Status),
		app.StepsTotal,
		app.StepsApplied,
		app.StepsFailed,
		app.StepsSkipped,
		resultsJSON,
		app.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("inserting application: %w", err)
	}
	return nil
}

// UpdateApplication updates an existing application record.
func (r *SQLiteRepository) UpdateApplication(ctx context.Context, app *Application) error {
	resultsJSON, err := marshalResults(app.Results)
	if err != nil {
		return fmt.Errorf("marshalling results: %w", err)
	}

	query := `
		UPDATE preset_applications SET
			started_at = ?, completed_at = ?, status = ?,
			steps_total = ?, steps_applied = ?, steps_failed = ?, steps_skipped = ?,
			results = ?, duration_ms = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		nullableTime(app.StartedAt),
		nullableTime(app.CompletedAt),
		string(app.Status),
		app.StepsTotal,
		app.StepsApplied,
		app.StepsFailed,
		app.StepsSkipped,
		resultsJSON,
		app.DurationMS,
		app.ID,
	)
	if err != nil {
		return fmt.Errorf("updating application: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrApplicationNotFound
	}
	return nil
}

// GetApplication retrieves an application by ID.
func (r *SQLiteRepository) GetApplication(ctx context.Context, id string) (*Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM preset_applications WHERE id = ?`

	row := r.db.QueryRowContext(ctx, query, id)
	app, err := scanApplicationRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrApplicationNotFound
		}
		return nil, fmt.Errorf("querying application: %w", err)
	}
	return app, nil
}

// ListApplications retrieves recent applications for a preset.
func (r *SQLiteRepository) ListApplications(ctx context.Context, presetID string, limit int) ([]Application, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}

	query := `SELECT ` + applicationColumns + ` FROM preset_applications
		WHERE preset_id = ?
		ORDER BY triggered_at DESC
		LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, presetID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying applications: %w", err)
	}
	defer rows.Close()

	var apps []Application
	for rows.Next() {
		app, scanErr := scanApplicationRow(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scanning application: %w", scanErr)
		}
		apps = append(apps, *app)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating applications: %w", err)
	}
	return apps, nil
}

// queryPresets executes a query and returns a slice of presets.
func (r *SQLiteRepository) queryPresets(ctx context.Context, query string, args ...any) ([]Preset, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying presets: %w", err)
	}
	defer rows.Close()

	var presets []Preset
	for rows.Next() {
		p, scanErr := scanPresetRow(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scanning preset: %w", scanErr)
		}
		presets = append(presets, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating presets: %w", err)
	}
	return presets, nil
}

// ─── Row Scanning Helpers ───────────────────────────────────────────────────

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanPresetRow(scanner rowScanner) (*Preset, error) {
	var p Preset
	var description, displayID sql.NullString
	var stepsJSON string
	var enabled int
	var createdAt, updatedAt string

	err := scanner.Scan(
		&p.ID,
		&p.Name,
		&p.Slug,
		&description,
		&displayID,
		&enabled,
		&stepsJSON,
		&p.SortOrder,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if description.Valid {
		p.Description = &description.String
	}
	if displayID.Valid {
		p.DisplayID = &displayID.String
	}

	p.Enabled = enabled != 0

	// Parse timestamps (stored as RFC3339)
	if t, parseErr := time.Parse(time.RFC3339, createdAt); parseErr == nil {
		p.CreatedAt = t
	}
	if t, parseErr := time.Parse(time.RFC3339, updatedAt); parseErr == nil {
		p.UpdatedAt = t
	}

	// Unmarshal steps JSON
	if stepsJSON != "" && stepsJSON != "[]" {
		if jsonErr := json.Unmarshal([]byte(stepsJSON), &p.Steps); jsonErr != nil {
			return nil, fmt.Errorf("unmarshalling steps: %w", jsonErr)
		}
	}
	if p.Steps == nil {
		p.Steps = []PresetStep{}
	}

	return &p, nil
}

func scanApplicationRow(scanner rowScanner) (*Application, error) {
	var a Application
	var triggeredAt string
	var startedAt, completedAt, actor, resultsJSON sql.NullString
	var durationMS sql.NullInt64
	var status string

	err := scanner.Scan(
		&a.ID,
		&a.PresetID,
		&a.DisplayID,
		&triggeredAt,
		&startedAt,
		&completedAt,
		&actor,
		&a.Source,
		&status,
		&a.StepsTotal,
		&a.StepsApplied,
		&a.StepsFailed,
		&a.StepsSkipped,
		&resultsJSON,
		&durationMS,
	)
	if err != nil {
		return nil, err
	}

	a.Status = ApplicationStatus(status)
	if t, parseErr := time.Parse(time.RFC3339, triggeredAt); parseErr == nil {
		a.TriggeredAt = t
	}

	if startedAt.Valid {
		if t, parseErr := time.Parse(time.RFC3339, startedAt.String); parseErr == nil {
			a.StartedAt = &t
		}
	}
	if completedAt.Valid {
		if t, parseErr := time.Parse(time.RFC3339, completedAt.String); parseErr == nil {
			a.CompletedAt = &t
		}
	}
	if actor.Valid {
		a.Actor = &actor.String
	}
	if durationMS.Valid {
		d := int(durationMS.Int64)
		a.DurationMS = &d
	}

	// Unmarshal results JSON
	if resultsJSON.Valid && resultsJSON.String != "" && resultsJSON.String != "null" {
		if jsonErr := json.Unmarshal([]byte(resultsJSON.String), &a.Results); jsonErr != nil {
			return nil, fmt.Errorf("unmarshalling results: %w", jsonErr)
		}
	}

	return &a, nil
}

// ─── SQL Helpers ────────────────────────────────────────────────────────────

func nullableString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(time.RFC3339), Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func marshalResults(results []StepResult) (sql.NullString, error) {
	if len(results) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(results)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint failed") ||
		strings.Contains(msg, "unique constraint")
}
