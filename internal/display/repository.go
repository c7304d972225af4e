package display

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines the interface for display persistence operations.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// GetByID retrieves a display by its unique identifier.
	// Returns ErrDisplayNotFound if the display does not exist.
	GetByID(ctx context.Context, id string) (*Display, error)

	// GetByBus retrieves the display whose address names the given bus.
	// Returns ErrDisplayNotFound if no display matches.
	GetByBus(ctx context.Context, bus string) (*Display, error)

	// List retrieves all displays.
	List(ctx context.Context) ([]Display, error)

	// ListByProtocol retrieves all displays using a specific protocol.
	ListByProtocol(ctx context.Context, protocol Protocol) ([]Display, error)

	// ListByBridge retrieves all displays managed by a specific bridge.
	ListByBridge(ctx context.Context, bridgeID string) ([]Display, error)

	// Create inserts a new display.
	// Returns ErrDisplayExists if a display with the same ID already exists.
	Create(ctx context.Context, display *Display) error

	// Update modifies an existing display.
	// Returns ErrDisplayNotFound if the display does not exist.
	Update(ctx context.Context, display *Display) error

	// Delete removes a display by ID.
	// Returns ErrDisplayNotFound if the display does not exist.
	Delete(ctx context.Context, id string) error

	// UpdateState merges the given feature values into the display's state.
	// This is optimised for frequent state changes from the DDC bridge.
	UpdateState(ctx context.Context, id string, state State) error

	// UpdateHealth updates the health status and last seen timestamp.
	UpdateHealth(ctx context.Context, id string, status HealthStatus, lastSeen time.Time) error
}

// displayColumns is the column list shared by every SELECT.
const displayColumns = `id, name, slug, type, protocol, address, bridge_id,
		capabilities, raw_capabilities, mccs_version, config,
		state, state_updated_at, health_status, health_last_seen,
		manufacturer, model, serial, created_at, updated_at`

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// GetByID retrieves a display by its unique identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Display, error) {
	query := `SELECT ` + displayColumns + ` FROM displays WHERE id = ?`

	row := r.db.QueryRowContext(ctx, query, id)
	display, err := scanDisplayRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDisplayNotFound
		}
		return nil, fmt.Errorf("querying display by id: %w", err)
	}
	return display, nil
}

// GetByBus retrieves the display whose address bus matches.
// The bus lives inside the address JSON, so this uses json_extract.
func (r *SQLiteRepository) GetByBus(ctx context.Context, bus string) (*Display, error) {
	query := `SELECT ` + displayColumns + ` FROM displays WHERE json_extract(address, '$.bus') = ?`

	row := r.db.QueryRowContext(ctx, query, bus)
	display, err := scanDisplayRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDisplayNotFound
		}
		return nil, fmt.Errorf("querying display by bus: %w", err)
	}
	return display, nil
}

// List retrieves all displays.
func (r *SQLiteRepository) List(ctx context.Context) ([]Display, error) {
	query := `SELECT ` + displayColumns + ` FROM displays ORDER BY name`
	return r.queryDisplays(ctx, query)
}

// ListByProtocol retrieves all displays using a specific protocol.
func (r *SQLiteRepository) ListByProtocol(ctx context.Context, protocol Protocol) ([]Display, error) {
	query := `SELECT ` + displayColumns + ` FROM displays WHERE protocol = ? ORDER BY name`
	return r.queryDisplays(ctx, query, string(protocol))
}

// ListByBridge retrieves all displays managed by a specific bridge.
func (r *SQLiteRepository) ListByBridge(ctx context.Context, bridgeID string) ([]Display, error) {
	query := `SELECT ` + displayColumns + ` FROM displays WHERE bridge_id = ? ORDER BY name`
	return r.queryDisplays(ctx, query, bridgeID)
}

// Create inserts a new display.
func (r *SQLiteRepository) Create(ctx context.Context, display *Display) error {
	addressJSON, capsJSON, configJSON, stateJSON, err := marshalDisplayJSON(display)
	if err != nil {
		return err
	}

	// Set timestamps if not set
	now := time.Now().UTC()
	if display.CreatedAt.IsZero() {
		display.CreatedAt = now
	}
	display.UpdatedAt = now

	query := `
		INSERT INTO displays (
			id, name, slug, type, protocol, address, bridge_id,
			capabilities, raw_capabilities, mccs_version, config,
			state, state_updated_at, health_status, health_last_seen,
			manufacturer, model, serial, created_at, updated_at
		) VALUES (
			?, ?, ?, ?, ?, ?, ?,
			?, ?, ?, ?,
			?, ?, ?, ?,
			?, ?, ?, ?, ?
		)`

	_, err = r.db.ExecContext(ctx, query,
		display.ID,
		display.Name,
		display.Slug,
		string(display.Type),
		string(display.Protocol),
		addressJSON,
		nullableString(display.BridgeID),
		capsJSON,
		display.RawCapabilities,
		nullableString(display.MCCSVersion),
		configJSON,
		stateJSON,
		nullableTime(display.StateUpdatedAt),
		string(display.HealthStatus),
		nullableTime(display.HealthLastSeen),
		nullableString(display.Manufacturer),
		nullableString(display.Model),
		nullableString(display.Serial),
		display.CreatedAt.Format(time.RFC3339),
		display.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDisplayExists
		}
		return fmt.Errorf("inserting display: %w", err)
	}

	return nil
}

// Update modifies an existing display.
func (r *SQLiteRepository) Update(ctx context.Context, display *Display) error {
	// First check the display exists
	exists, err := r.exists(ctx, display.ID)
	if err != nil {
		return err
	}
	if !exists {
		return ErrDisplayNotFound
	}

	addressJSON, capsJSON, configJSON, stateJSON, err := marshalDisplayJSON(display)
	if err != nil {
		return err
	}

	display.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE displays SET
			name = ?, slug = ?, type = ?, protocol = ?, address = ?,
			bridge_id = ?, capabilities = ?, raw_capabilities = ?,
			mccs_version = ?, config = ?, state = ?, state_updated_at = ?,
			health_status = ?, health_last_seen = ?,
			manufacturer = ?, model = ?, serial = ?, updated_at = ?
		WHERE id = ?`

	_, err = r.db.ExecContext(ctx, query,
		display.Name,
		display.Slug,
		string(display.Type),
		string(display.Protocol),
		addressJSON,
		nullableString(display.BridgeID),
		capsJSON,
		display.RawCapabilities,
		nullableString(display.MCCSVersion),
		configJSON,
		stateJSON,
		nullableTime(display.StateUpdatedAt),
		string(display.HealthStatus),
		nullableTime(display.HealthLastSeen),
		nullableString(display.Manufacturer),
		nullableString(display.Model),
		nullableString(display.Serial),
		display.UpdatedAt.Format(time.RFC3339),
		display.ID,
	)
	if err != nil {
		return fmt.Errorf("updating display: %w", err)
	}

	return nil
}

// Delete removes a display by ID.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM displays WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting display: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrDisplayNotFound
	}

	return nil
}

// UpdateState merges the given feature values into the display's existing state.
// This allows partial updates (e.g., updating "brightness" without losing "power").
func (r *SQLiteRepository) UpdateState(ctx context.Context, id string, state State) error {
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshalling state: %w", err)
	}

	now := time.Now().UTC()
	// Use json_patch to merge new state into existing state.
	// json_patch(target, patch) applies patch keys to target, preserving
	// existing keys not present in patch.
	query := `
		UPDATE displays
		SET state = json_patch(COALESCE(state, '{}'), ?),
		    state_updated_at = ?,
		    updated_at = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		string(stateJSON),
		now.Format(time.RFC3339),
		now.Format(time.RFC3339),
		id,
	)
	if err != nil {
		return fmt.Errorf("updating display state: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrDisplayNotFound
	}

	return nil
}

// UpdateHealth updates the health status and last seen timestamp.
func (r *SQLiteRepository) UpdateHealth(ctx context.Context, id string, status HealthStatus, lastSeen time.Time) error {
	now := time.Now().UTC()
	query := `
		UPDATE displays
		SET health_status = ?, health_last_seen = ?, updated_at = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		string(status),
		lastSeen.UTC().Format(time.RFC3339),
		now.Format(time.RFC3339),
		id,
	)
	if err != nil {
		return fmt.Errorf("updating display health: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrDisplayNotFound
	}

	return nil
}

// queryDisplays executes a query and returns a slice of displays.
func (r *SQLiteRepository) queryDisplays(ctx context.Context, query string, args ...any) ([]Display, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying displays: %w", err)
	}
	defer rows.Close()

	var displays []Display
	for rows.Next() {
		display, err := scanDisplayRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning display: %w", err)
		}
		displays = append(displays, *display)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating displays: %w", err)
	}

	return displays, nil
}

// exists checks if a display with the given ID exists.
func (r *SQLiteRepository) exists(ctx context.Context, id string) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM displays WHERE id = ?", id).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking display exists: %w", err)
	}
	return count > 0, nil
}

// marshalDisplayJSON marshals the JSON-mapped fields for INSERT/UPDATE.
func marshalDisplayJSON(display *Display) (address, caps, config, state string, err error) {
	addressJSON, err := json.Marshal(display.Address)
	if err != nil {
		return "", "", "", "", fmt.Errorf("marshalling address: %w", err)
	}
	capsJSON, err := json.Marshal(display.Capabilities)
	if err != nil {
		return "", "", "", "", fmt.Errorf("marshalling capabilities: %w", err)
	}
	configJSON, err := json.Marshal(display.Config)
	if err != nil {
		return "", "", "", "", fmt.Errorf("marshalling config: %w", err)
	}
	stateJSON, err := json.Marshal(display.State)
	if err != nil {
		return "", "", "", "", fmt.Errorf("marshalling state: %w", err)
	}
	return string(addressJSON), string(capsJSON), string(configJSON), string(stateJSON), nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanDisplayRow scans a row or rows result into a Display.
func scanDisplayRow(scanner rowScanner) (*Display, error) {
	var d Display
	var bridgeID, mccsVersion sql.NullString
	var stateUpdatedAt, healthLastSeen sql.NullString
	var manufacturer, model, serial sql.NullString
	var addressJSON, capsJSON, configJSON, stateJSON string
	var createdAt, updatedAt string
	var displayType, protocol, healthStatus string

	err := scanner.Scan(
		&d.ID,
		&d.Name,
		&d.Slug,
		&displayType,
		&protocol,
		&addressJSON,
		&bridgeID,
		&capsJSON,
		&d.RawCapabilities,
		&mccsVersion,
		&configJSON,
		&stateJSON,
		&stateUpdatedAt,
		&healthStatus,
		&healthLastSeen,
		&manufacturer,
		&model,
		&serial,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	// Set type fields
	d.Type = DisplayType(displayType)
	d.Protocol = Protocol(protocol)
	d.HealthStatus = HealthStatus(healthStatus)

	// Set nullable strings
	if bridgeID.Valid {
		d.BridgeID = &bridgeID.String
	}
	if mccsVersion.Valid {
		d.MCCSVersion = &mccsVersion.String
	}
	if manufacturer.Valid {
		d.Manufacturer = &manufacturer.String
	}
	if model.Valid {
		d.Model = &model.String
	}
	if serial.Valid {
		d.Serial = &serial.String
	}

	// Parse timestamps
	if stateUpdatedAt.Valid {
		t, err := time.Parse(time.RFC3339, stateUpdatedAt.String)
		if err == nil {
			d.StateUpdatedAt = &t
		}
	}
	if healthLastSeen.Valid {
		t, err := time.Parse(time.RFC3339, healthLastSeen.String)
		if err == nil {
			d.HealthLastSeen = &t
		}
	}

	var parseErr error
	d.CreatedAt, parseErr = time.Parse(time.RFC3339, createdAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing created_at: %w", parseErr)
	}
	d.UpdatedAt, parseErr = time.Parse(time.RFC3339, updatedAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", parseErr)
	}

	// Unmarshal JSON fields
	if err := json.Unmarshal([]byte(addressJSON), &d.Address); err != nil {
		return nil, fmt.Errorf("unmarshalling address: %w", err)
	}

	if err := json.Unmarshal([]byte(capsJSON), &d.Capabilities); err != nil {
		return nil, fmt.Errorf("unmarshalling capabilities: %w", err)
	}

	if err := json.Unmarshal([]byte(configJSON), &d.Config); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := json.Unmarshal([]byte(stateJSON), &d.State); err != nil {
		return nil, fmt.Errorf("unmarshalling state: %w", err)
	}

	return &d, nil
}

// nullableString returns a sql.NullString for optional string pointers.
func nullableString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// nullableTime returns a sql.NullString for optional time pointers (as RFC3339 strings).
func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

// isUniqueConstraintError checks if an error is a SQLite unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "unique constraint")
}
