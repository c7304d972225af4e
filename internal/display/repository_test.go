package display

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// setupTestDB creates an in-memory SQLite database with the displays table.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	// Create displays table matching the schema
	schema := `
		CREATE TABLE displays (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			slug TEXT NOT NULL,
			type TEXT NOT NULL DEFAULT 'unknown',
			protocol TEXT NOT NULL,
			address TEXT NOT NULL,
			bridge_id TEXT,
			capabilities TEXT NOT NULL DEFAULT '[]',
			raw_capabilities TEXT NOT NULL DEFAULT '',
			mccs_version TEXT,
			config TEXT NOT NULL DEFAULT '{}',
			state TEXT NOT NULL DEFAULT '{}',
			state_updated_at TEXT,
			health_status TEXT NOT NULL DEFAULT 'unknown',
			health_last_seen TEXT,
			manufacturer TEXT,
			model TEXT,
			serial TEXT,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		) STRICT;
		CREATE INDEX idx_displays_protocol ON displays(protocol);
		CREATE INDEX idx_displays_bridge_id ON displays(bridge_id);
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

// testDisplay creates a display for testing.
func testDisplay(id, name string) *Display {
	return &Display{
		ID:           id,
		Name:         name,
		Slug:         GenerateSlug(name),
		Type:         DisplayTypeLCD,
		Protocol:     ProtocolDDC,
		Address:      Address{"bus": "i2c-" + id},
		Capabilities: []Capability{CapBrightness, CapContrast},
		Config:       Config{},
		State:        State{},
		HealthStatus: HealthStatusUnknown,
	}
}

func TestSQLiteRepository_Create(t *testing.T) { //nolint:gocognit // comprehensive table-driven test
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	t.Run("creates display successfully", func(t *testing.T) {
		display := testDisplay("disp-001", "Studio Main Monitor")

		err := repo.Create(ctx, display)
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}

		// Verify it was created
		got, err := repo.GetByID(ctx, "disp-001")
		if err != nil {
			t.Fatalf("GetByID() error = %v", err)
		}
		if got.Name != "Studio Main Monitor" {
			t.Errorf("Name = %q, want %q", got.Name, "Studio Main Monitor")
		}
		if got.Protocol != ProtocolDDC {
			t.Errorf("Protocol = %q, want %q", got.Protocol, ProtocolDDC)
		}
	})

	t.Run("returns error for duplicate ID", func(t *testing.T) {
		display := testDisplay("disp-duplicate", "First Display")
		if err := repo.Create(ctx, display); err != nil {
			t.Fatalf("first Create() error = %v", err)
		}

		display2 := testDisplay("disp-duplicate", "Second Display")
		err := repo.Create(ctx, display2)
		if !errors.Is(err, ErrDisplayExists) {
			t.Errorf("Create() error = %v, want ErrDisplayExists", err)
		}
	})

	t.Run("stores all fields correctly", func(t *testing.T) {
		bridgeID := "bridge-001"
		mccsVersion := "2.2"
		manufacturer := "DEL"
		model := "U2723QE"
		serial := "SN-4421"
		stateTime := time.Now().UTC().Truncate(time.Second)
		healthTime := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)

		display := &Display{
			ID:              "disp-full",
			Name:            "Full Display",
			Slug:            "full-display",
			Type:            DisplayTypeOLED,
			Protocol:        ProtocolDDC,
			Address:         Address{"bus": "i2c-7", "edid_hash": "a1b2c3"},
			BridgeID:        &bridgeID,
			Capabilities:    []Capability{CapBrightness, CapContrast, CapInputSelect},
			RawCapabilities: "(prot(monitor)type(lcd)vcp(10 12 60))",
			MCCSVersion:     &mccsVersion,
			Config:          Config{"poll_interval_seconds": 30},
			State:           State{"brightness": 80, "input": 17},
			StateUpdatedAt:  &stateTime,
			HealthStatus:    HealthStatusOnline,
			HealthLastSeen:  &healthTime,
			Manufacturer:    &manufacturer,
			Model:           &model,
			Serial:          &serial,
		}

		if err := repo.Create(ctx, display); err != nil {
			t.Fatalf("Create() error = %v", err)
		}

		got, err := repo.GetByID(ctx, "disp-full")
		if err != nil {
			t.Fatalf("GetByID() error = %v", err)
		}

		// Verify all fields
		if got.BridgeID == nil || *got.BridgeID != bridgeID {
			t.Errorf("BridgeID = %v, want %q", got.BridgeID, bridgeID)
		}
		if got.Type != DisplayTypeOLED {
			t.Errorf("Type = %q, want %q", got.Type, DisplayTypeOLED)
		}
		if got.RawCapabilities != display.RawCapabilities {
			t.Errorf("RawCapabilities = %q, want %q", got.RawCapabilities, display.RawCapabilities)
		}
		if got.MCCSVersion == nil || *got.MCCSVersion != mccsVersion {
			t.Errorf("MCCSVersion = %v, want %q", got.MCCSVersion, mccsVersion)
		}
		if len(got.Capabilities) != 3 {
			t.Errorf("Capabilities count = %d, want 3", len(got.Capabilities))
		}
		if got.HealthStatus != HealthStatusOnline {
			t.Errorf("HealthStatus = %q, want %q", got.HealthStatus, HealthStatusOnline)
		}
		if got.Manufacturer == nil || *got.Manufacturer != manufacturer {
			t.Errorf("Manufacturer = %v, want %q", got.Manufacturer, manufacturer)
		}
		if got.Serial == nil || *got.Serial != serial {
			t.Errorf("Serial = %v, want %q", got.Serial, serial)
		}

		// Check address was stored
		if bus, ok := got.Address["bus"]; !ok || bus != "i2c-7" {
			t.Errorf("Address[bus] = %v, want %q", bus, "i2c-7")
		}

		// Check state was stored (JSON numbers come back as float64)
		if b, ok := got.State["brightness"].(float64); !ok || b != 80 {
			t.Errorf("State[brightness] = %v, want 80", got.State["brightness"])
		}
	})
}

func TestSQLiteRepository_GetByID(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	// Create a test display
	display := testDisplay("disp-get", "Test Display")
	if err := repo.Create(ctx, display); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	t.Run("returns display when found", func(t *testing.T) {
		got, err := repo.GetByID(ctx, "disp-get")
		if err != nil {
			t.Fatalf("GetByID() error = %v", err)
		}
		if got.ID != "disp-get" {
			t.Errorf("ID = %q, want %q", got.ID, "disp-get")
		}
	})

	t.Run("returns ErrDisplayNotFound when not found", func(t *testing.T) {
		_, err := repo.GetByID(ctx, "nonexistent")
		if !errors.Is(err, ErrDisplayNotFound) {
			t.Errorf("GetByID() error = %v, want ErrDisplayNotFound", err)
		}
	})
}

func TestSQLiteRepository_GetByBus(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	display := testDisplay("disp-bus", "Bus Display")
	display.Address = Address{"bus": "i2c-4"}
	if err := repo.Create(ctx, display); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	t.Run("returns display matching bus", func(t *testing.T) {
		got, err := repo.GetByBus(ctx, "i2c-4")
		if err != nil {
			t.Fatalf("GetByBus() error = %v", err)
		}
		if got.ID != "disp-bus" {
			t.Errorf("ID = %q, want %q", got.ID, "disp-bus")
		}
	})

	t.Run("returns ErrDisplayNotFound for unknown bus", func(t *testing.T) {
		_, err := repo.GetByBus(ctx, "i2c-99")
		if !errors.Is(err, ErrDisplayNotFound) {
			t.Errorf("GetByBus() error = %v, want ErrDisplayNotFound", err)
		}
	})
}

func TestSQLiteRepository_List(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	t.Run("returns empty list when no displays", func(t *testing.T) {
		displays, err := repo.List(ctx)
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(displays) != 0 {
			t.Errorf("List() returned %d displays, want 0", len(displays))
		}
	})

	// Create test displays
	for i := 1; i <= 3; i++ {
		display := testDisplay(
			GenerateID(),
			[]string{"Alpha Monitor", "Beta Monitor", "Gamma Monitor"}[i-1],
		)
		if err := repo.Create(ctx, display); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	t.Run("returns all displays ordered by name", func(t *testing.T) {
		displays, err := repo.List(ctx)
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(displays) != 3 {
			t.Fatalf("List() returned %d displays, want 3", len(displays))
		}
		// Should be alphabetically sorted
		if displays[0].Name != "Alpha Monitor" {
			t.Errorf("First display = %q, want %q", displays[0].Name, "Alpha Monitor")
		}
		if displays[1].Name != "Beta Monitor" {
			t.Errorf("Second display = %q, want %q", displays[1].Name, "Beta Monitor")
		}
		if displays[2].Name != "Gamma Monitor" {
			t.Errorf("Third display = %q, want %q", displays[2].Name, "Gamma Monitor")
		}
	})
}

func TestSQLiteRepository_ListByProtocol(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	// Create displays with different protocols
	ddcDisplay := testDisplay("disp-ddc", "DDC Display")
	ddcDisplay.Protocol = ProtocolDDC

	usbDisplay := testDisplay("disp-usb", "USB Display")
	usbDisplay.Protocol = ProtocolUSB
	usbDisplay.Address = Address{"device": "/dev/hidraw2"}

	for _, d := range []*Display{ddcDisplay, usbDisplay} {
		if err := repo.Create(ctx, d); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	t.Run("returns displays by protocol", func(t *testing.T) {
		displays, err := repo.ListByProtocol(ctx, ProtocolUSB)
		if err != nil {
			t.Fatalf("ListByProtocol() error = %v", err)
		}
		if len(displays) != 1 {
			t.Fatalf("ListByProtocol() returned %d displays, want 1", len(displays))
		}
		if displays[0].Protocol != ProtocolUSB {
			t.Errorf("Protocol = %q, want %q", displays[0].Protocol, ProtocolUSB)
		}
	})
}

func TestSQLiteRepository_ListByBridge(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	bridgeID1 := "bridge-001"
	bridgeID2 := "bridge-002"

	// Create displays on different bridges
	disp1 := testDisplay("disp-b1-1", "Bridge 1 Display A")
	disp1.BridgeID = &bridgeID1
	disp2 := testDisplay("disp-b1-2", "Bridge 1 Display B")
	disp2.BridgeID = &bridgeID1
	disp3 := testDisplay("disp-b2-1", "Bridge 2 Display")
	disp3.BridgeID = &bridgeID2

	for _, d := range []*Display{disp1, disp2, disp3} {
		if err := repo.Create(ctx, d); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	t.Run("returns displays on bridge", func(t *testing.T) {
		displays, err := repo.ListByBridge(ctx, bridgeID1)
		if err != nil {
			t.Fatalf("ListByBridge() error = %v", err)
		}
		if len(displays) != 2 {
			t.Errorf("ListByBridge() returned %d displays, want 2", len(displays))
		}
	})

	t.Run("returns empty for nonexistent bridge", func(t *testing.T) {
		displays, err := repo.ListByBridge(ctx, "nonexistent")
		if err != nil {
			t.Fatalf("ListByBridge() error = %v", err)
		}
		if len(displays) != 0 {
			t.Errorf("ListByBridge() returned %d displays, want 0", len(displays))
		}
	})
}

func TestSQLiteRepository_Update(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	// Create a display
	display := testDisplay("disp-update", "Original Name")
	if err := repo.Create(ctx, display); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	t.Run("updates display successfully", func(t *testing.T) {
		display.Name = "Updated Name"
		display.HealthStatus = HealthStatusOnline
		display.State = State{"brightness": 50}

		if err := repo.Update(ctx, display); err != nil {
			t.Fatalf("Update() error = %v", err)
		}

		got, err := repo.GetByID(ctx, "disp-update")
		if err != nil {
			t.Fatalf("GetByID() error = %v", err)
		}
		if got.Name != "Updated Name" {
			t.Errorf("Name = %q, want %q", got.Name, "Updated Name")
		}
		if got.HealthStatus != HealthStatusOnline {
			t.Errorf("HealthStatus = %q, want %q", got.HealthStatus, HealthStatusOnline)
		}
		if b, ok := got.State["brightness"].(float64); !ok || b != 50 {
			t.Errorf("State[brightness] = %v, want 50", got.State["brightness"])
		}
	})

	t.Run("returns ErrDisplayNotFound for nonexistent display", func(t *testing.T) {
		nonexistent := testDisplay("nonexistent", "Ghost")
		err := repo.Update(ctx, nonexistent)
		if !errors.Is(err, ErrDisplayNotFound) {
			t.Errorf("Update() error = %v, want ErrDisplayNotFound", err)
		}
	})
}

func TestSQLiteRepository_Delete(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	// Create a display
	display := testDisplay("disp-delete", "To Delete")
	if err := repo.Create(ctx, display); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	t.Run("deletes display successfully", func(t *testing.T) {
		if err := repo.Delete(ctx, "disp-delete"); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}

		_, err := repo.GetByID(ctx, "disp-delete")
		if !errors.Is(err, ErrDisplayNotFound) {
			t.Errorf("GetByID() after delete error = %v, want ErrDisplayNotFound", err)
		}
	})

	t.Run("returns ErrDisplayNotFound for nonexistent display", func(t *testing.T) {
		err := repo.Delete(ctx, "nonexistent")
		if !errors.Is(err, ErrDisplayNotFound) {
			t.Errorf("Delete() error = %v, want ErrDisplayNotFound", err)
		}
	})
}

func TestSQLiteRepository_UpdateState(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	// Create a display
	display := testDisplay("disp-state", "Stateful Display")
	display.State = State{"brightness": 30, "contrast": 70}
	if err := repo.Create(ctx, display); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	t.Run("merges partial state", func(t *testing.T) {
		newState := State{"brightness": 85}
		if err := repo.UpdateState(ctx, "disp-state", newState); err != nil {
			t.Fatalf("UpdateState() error = %v", err)
		}

		got, err := repo.GetByID(ctx, "disp-state")
		if err != nil {
			t.Fatalf("GetByID() error = %v", err)
		}
		if b, ok := got.State["brightness"].(float64); !ok || b != 85 {
			t.Errorf("State[brightness] = %v, want 85", got.State["brightness"])
		}
		// json_patch keeps keys absent from the update
		if c, ok := got.State["contrast"].(float64); !ok || c != 70 {
			t.Errorf("State[contrast] = %v, want 70", got.State["contrast"])
		}
		if got.StateUpdatedAt == nil {
			t.Error("StateUpdatedAt = nil, want non-nil")
		}
	})

	t.Run("returns ErrDisplayNotFound for nonexistent display", func(t *testing.T) {
		err := repo.UpdateState(ctx, "nonexistent", State{})
		if !errors.Is(err, ErrDisplayNotFound) {
			t.Errorf("UpdateState() error = %v, want ErrDisplayNotFound", err)
		}
	})
}

func TestSQLiteRepository_UpdateHealth(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	// Create a display
	display := testDisplay("disp-health", "Health Display")
	display.HealthStatus = HealthStatusUnknown
	if err := repo.Create(ctx, display); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	t.Run("updates health successfully", func(t *testing.T) {
		lastSeen := time.Now().UTC().Truncate(time.Second)
		if err := repo.UpdateHealth(ctx, "disp-health", HealthStatusOnline, lastSeen); err != nil {
			t.Fatalf("UpdateHealth() error = %v", err)
		}

		got, err := repo.GetByID(ctx, "disp-health")
		if err != nil {
			t.Fatalf("GetByID() error = %v", err)
		}
		if got.HealthStatus != HealthStatusOnline {
			t.Errorf("HealthStatus = %q, want %q", got.HealthStatus, HealthStatusOnline)
		}
		if got.HealthLastSeen == nil {
			t.Error("HealthLastSeen = nil, want non-nil")
		}
	})

	t.Run("returns ErrDisplayNotFound for nonexistent display", func(t *testing.T) {
		err := repo.UpdateHealth(ctx, "nonexistent", HealthStatusOnline, time.Now())
		if !errors.Is(err, ErrDisplayNotFound) {
			t.Errorf("UpdateHealth() error = %v, want ErrDisplayNotFound", err)
		}
	})
}
