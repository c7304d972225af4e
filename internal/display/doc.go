// Package display provides the Display Registry for DDC Core.
//
// The Display Registry is the central catalogue of every monitor the
// service knows about. It manages display lifecycle, current feature
// state, and provides query operations for the REST API and the DDC
// bridge's discovery sync.
//
// # Architecture
//
//	┌─────────────────────────────────────────────────────────────────────────┐
//	│                          Display Registry                                │
//	│                                                                          │
//	│  ┌──────────────────┐    ┌──────────────────┐    ┌──────────────────┐   │
//	│  │     Registry     │    │    Repository    │    │    Validation    │   │
//	│  │   (registry.go)  │───▶│  (repository.go) │    │ (validation.go)  │   │
//	│  │                  │    │                  │    │                  │   │
//	│  │ • CRUD ops       │    │ • SQLite queries │    │ • Display checks │   │
//	│  │ • In-memory cache│    │ • JSON marshal   │    │ • Address valid. │   │
//	│  │ • Thread safety  │    │ • Transactions   │    │ • Slug generation│   │
//	│  └──────────────────┘    └──────────────────┘    └──────────────────┘   │
//	│           │                       │                                      │
//	└───────────│───────────────────────│──────────────────────────────────────┘
//	            │                       │
//	            ▼                       ▼
//	┌──────────────────────┐   ┌──────────────────────┐
//	│       REST API       │   │   SQLite Database    │
//	│  • GET /displays     │   │   (displays table)   │
//	│  • POST /displays    │   └──────────────────────┘
//	│  • WebSocket state   │
//	└──────────────────────┘
//
// # Key Types
//
//   - Display: The core entity representing a DDC/CI-controllable monitor
//   - DisplayType: Panel technology reported by the capabilities string
//   - Protocol: How the monitor is reached (ddc over I2C, usb HID)
//   - Capability: What a display can do (brightness, input_select, etc.),
//     derived from the VCP codes in its capabilities report
//
// # Usage
//
//	// Create repository and registry
//	repo := display.NewSQLiteRepository(db)
//	registry := display.NewRegistry(repo)
//	registry.SetLogger(log)
//
//	// Load displays into cache on startup
//	if err := registry.RefreshCache(ctx); err != nil {
//	    return err
//	}
//
//	// Register a monitor found by the bridge
//	d := &display.Display{
//	    Name:         "Dell U2723QE",
//	    Type:         display.DisplayTypeLCD,
//	    Protocol:     display.ProtocolDDC,
//	    Address:      display.Address{"bus": "i2c-4"},
//	    Capabilities: display.CapabilitiesForCodes([]string{"10", "12", "60", "D6"}),
//	}
//	if err := registry.CreateDisplay(ctx, d); err != nil {
//	    return err
//	}
//
//	// Query displays
//	displays, _ := registry.ListDisplays(ctx)
//	d, _ = registry.GetDisplayByBus(ctx, "i2c-4")
//
//	// Update state (from the DDC bridge's poll loop)
//	registry.SetDisplayState(ctx, id, display.State{"brightness": 70})
//
// # Thread Safety
//
// The Registry is safe for concurrent use. All operations are protected by
// a read-write mutex. The Repository implementation must also be thread-safe.
//
// # Related Documentation
//
//   - migrations/20260810_090000_initial_schema.up.sql — Database schema
package display
