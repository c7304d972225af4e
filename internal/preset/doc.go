// Package preset provides named feature value sets for DDC Core.
//
// A preset is an ordered list of VCP feature writes that configures a
// display for a task: "movie" might set brightness (10), pick a colour
// preset (14), and switch input (60). Applying a preset walks the steps
// through the display's protocol bridge over MQTT.
//
// Architecture:
//
//	┌───────────────────────────────────────────────────────┐
//	│                  Engine (engine.go)                    │
//	│  Applies presets step by step over the serial bus      │
//	│  ┌──────────────┐    ┌──────────────┐                  │
//	│  │   Registry   │───▶│  Repository  │                  │
//	│  │(registry.go) │    │(repository.go)│                 │
//	│  └──────────────┘    └──────────────┘                  │
//	│        │                                               │
//	│        ▼                                               │
//	│  ┌──────────────────────────────────────────────┐      │
//	│  │  Apply Pipeline                              │      │
//	│  │  1. Load preset (cached)                     │      │
//	│  │  2. Resolve the target display               │      │
//	│  │  3. Walk steps in order, skipping codes the  │      │
//	│  │     capability report does not carry         │      │
//	│  │  4. Publish MQTT commands to the bridge      │      │
//	│  │  5. Record the per-step outcome              │      │
//	│  │  6. Broadcast WebSocket event                │      │
//	│  └──────────────────────────────────────────────┘      │
//	└───────────────────────────────────────────────────────┘
//
// # Key Types
//
//   - Preset: Named ordered list of {VCP code, value} steps
//   - PresetStep: Individual feature write (code, value, settle delay)
//   - Application: Record of one apply with per-step results
//   - Engine: Orchestrator that applies presets via MQTT
//   - Registry: Thread-safe in-memory cache wrapping Repository
//
// # Thread Safety
//
// Registry and Engine are safe for concurrent use from multiple goroutines.
// Steps within a single apply always run sequentially; DDC/CI is a serial
// bus and a display processes one command at a time.
//
// # Usage
//
//	repo := preset.NewSQLiteRepository(db)
//	registry := preset.NewRegistry(repo)
//	registry.SetLogger(log)
//
//	if err := registry.RefreshCache(ctx); err != nil {
//	    return err
//	}
//
//	engine := preset.NewEngine(registry, displays, mqtt, hub, repo, auditRepo, log)
//	applicationID, err := engine.Apply(ctx, "movie", "disp-4f21", "alice", "api")
package preset
