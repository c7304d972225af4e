// DDC Core - Display Control Platform
//
// This is the main entry point for the DDC Core daemon. DDC Core manages
// fleets of DDC/CI-capable monitors:
//   - Capability discovery via parsed VCP capability reports
//   - Feature control routed over MQTT to protocol bridges
//   - REST and WebSocket API for operators and dashboards
//   - State history, presets and a full audit trail
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/openddc/ddc-core/migrations"

	"github.com/openddc/ddc-core/internal/api"
	"github.com/openddc/ddc-core/internal/audit"
	"github.com/openddc/ddc-core/internal/auth"
	"github.com/openddc/ddc-core/internal/bridges/ddc"
	"github.com/openddc/ddc-core/internal/display"
	"github.com/openddc/ddc-core/internal/infrastructure/config"
	"github.com/openddc/ddc-core/internal/infrastructure/database"
	"github.com/openddc/ddc-core/internal/infrastructure/influxdb"
	"github.com/openddc/ddc-core/internal/infrastructure/logging"
	"github.com/openddc/ddc-core/internal/infrastructure/mqtt"
	"github.com/openddc/ddc-core/internal/preset"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// maintenanceInterval is how often expired refresh tokens and old state
// history rows are swept.
const maintenanceInterval = time.Hour

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	// This is the Go pattern for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Run the application
	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting DDC Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Initialise display registry
	displayRepo := display.NewSQLiteRepository(db.DB)
	registry := display.NewRegistry(displayRepo)
	registry.SetLogger(log)
	registry.SetTagRepository(display.NewSQLiteTagRepository(db.DB))

	if refreshErr := registry.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading display registry: %w", refreshErr)
	}
	log.Info("display registry initialised", "displays", registry.GetDisplayCount())

	// State history records every feature-value change for the API
	stateHistory := display.NewSQLiteStateHistoryRepository(db.DB)

	// Initialise auth repositories and seed the first admin account
	userRepo := auth.NewUserRepository(db.DB)
	tokenRepo := auth.NewTokenRepository(db.DB)
	if _, seedErr := auth.SeedAdmin(ctx, userRepo, log.Logger); seedErr != nil {
		return fmt.Errorf("seeding admin account: %w", seedErr)
	}

	// Audit trail for every accepted control action
	auditRepo := audit.NewSQLiteRepository(db.DB)

	// Initialise preset registry
	presetRepo := preset.NewSQLiteRepository(db.DB)
	presetRegistry := preset.NewRegistry(presetRepo)
	presetRegistry.SetLogger(log)

	if refreshErr := presetRegistry.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading preset registry: %w", refreshErr)
	}
	log.Info("preset registry initialised", "presets", presetRegistry.GetPresetCount())

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Set up MQTT logging callbacks
	mqttClient.SetLogger(log)
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		// Set up InfluxDB error callback
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// Start the in-process DDC bridge (if enabled)
	var ddcBridge *ddc.Bridge
	if cfg.DDC.Enabled {
		bridge, transport, bridgeErr := startDDCBridge(ctx, cfg, mqttClient, log)
		if bridgeErr != nil {
			return fmt.Errorf("starting DDC bridge: %w", bridgeErr)
		}
		ddcBridge = bridge
		defer func() {
			log.Info("stopping DDC bridge")
			ddcBridge.Stop()
			if closeErr := transport.Close(); closeErr != nil {
				log.Error("error closing transport", "error", closeErr)
			}
		}()
	} else {
		log.Info("DDC bridge disabled, commands served by external bridges")
	}

	// Create the API server
	apiDeps := api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Security: cfg.Security,

		Logger:   log,
		Registry: registry,
		MQTT:     mqttClient,

		PresetRegistry: presetRegistry,
		PresetRepo:     presetRepo,

		UserRepo:  userRepo,
		TokenRepo: tokenRepo,
		AuditRepo: auditRepo,

		StateHistory: stateHistory,
		Influx:       influxClient,
		DB:           db,

		Version: version,
	}
	if ddcBridge != nil {
		apiDeps.Bridge = ddcBridge
	}

	srv, err := api.New(apiDeps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	// The preset engine broadcasts through the server's WebSocket hub,
	// so it is wired between New and Start.
	engine := preset.NewEngine(
		presetRegistry,
		&displayProvider{registry: registry},
		mqttClient,
		srv.Hub(),
		presetRepo,
		auditRepo,
		log,
	)
	srv.SetPresetEngine(engine)

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := srv.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started", "host", cfg.API.Host, "port", cfg.API.Port)

	// Background sweeps for expired tokens and old state history
	go maintenanceLoop(ctx, stateHistory, tokenRepo, cfg.Database.HistoryRetentionDays, log)

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls will run in reverse order:
	// 1. API server
	// 2. DDC bridge and transport (if enabled)
	// 3. InfluxDB (if enabled)
	// 4. MQTT
	// 5. Database

	log.Info("DDC Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses DDCCORE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("DDCCORE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	// Check database
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	// Check MQTT
	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	// Check InfluxDB (if enabled)
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	// DDC bridge health is verified during Start() - it probes the
	// transport's displays and sets up MQTT subscriptions before
	// returning successfully.

	return nil
}

// startDDCBridge initialises and starts the in-process DDC/CI bridge.
//
// Parameters:
//   - ctx: Context for startup/cancellation
//   - cfg: Application configuration
//   - mqttClient: MQTT client for publishing/subscribing
//   - log: Logger instance
//
// Returns:
//   - *ddc.Bridge: Running bridge
//   - ddc.Transport: The transport the caller must close after Stop()
//   - error: If the transport or bridge fails to start
func startDDCBridge(ctx context.Context, cfg *config.Config, mqttClient *mqtt.Client, log *logging.Logger) (*ddc.Bridge, ddc.Transport, error) {
	// Convert config types
	seeds := make([]ddc.SimDisplayConfig, 0, len(cfg.DDC.Displays))
	for _, d := range cfg.DDC.Displays {
		seeds = append(seeds, ddc.SimDisplayConfig{
			Address:      d.Address,
			Manufacturer: d.Manufacturer,
			Model:        d.Model,
			Serial:       d.Serial,
			Capabilities: d.Capabilities,
		})
	}
	bridgeCfg := &ddc.Config{
		Bridge: ddc.BridgeConfig{
			ID:             cfg.DDC.BridgeID,
			HealthInterval: cfg.DDC.HealthInterval,
		},
		Transport: ddc.TransportSettings{
			Driver:         cfg.DDC.Transport.Driver,
			ProbeTimeout:   cfg.DDC.Transport.ProbeTimeout,
			RequestTimeout: cfg.DDC.Transport.RequestTimeout,
		},
		Poll: ddc.PollSettings{
			Interval: cfg.DDC.Poll.Interval,
			Codes:    cfg.DDC.Poll.Codes,
		},
		Displays: seeds,
	}

	if bridgeCfg.Transport.Driver != ddc.TransportDriverSim {
		return nil, nil, fmt.Errorf("unsupported transport driver %q", bridgeCfg.Transport.Driver)
	}
	transport, err := ddc.NewSimTransport(bridgeCfg.Displays...)
	if err != nil {
		return nil, nil, fmt.Errorf("creating sim transport: %w", err)
	}

	// Create MQTT adapter to satisfy the bridge interface
	mqttAdapter := &mqttBridgeAdapter{client: mqttClient}

	// Create the bridge
	bridge, err := ddc.NewBridge(ddc.BridgeOptions{
		Config:     bridgeCfg,
		MQTTClient: mqttAdapter,
		Transport:  transport,
		Logger:     log,
	})
	if err != nil {
		_ = transport.Close()
		return nil, nil, fmt.Errorf("creating DDC bridge: %w", err)
	}

	log.Info("starting DDC bridge",
		"bridge_id", bridgeCfg.Bridge.ID,
		"driver", bridgeCfg.Transport.Driver,
		"displays", len(bridgeCfg.Displays),
	)

	// Start the bridge
	if err := bridge.Start(ctx); err != nil {
		_ = transport.Close()
		return nil, nil, fmt.Errorf("starting DDC bridge: %w", err)
	}
	log.Info("DDC bridge started")

	return bridge, transport, nil
}

// maintenanceLoop periodically removes expired refresh tokens and prunes
// state history rows older than the configured retention.
//
// Parameters:
//   - ctx: Context; the loop exits when it is cancelled
//   - history: State history repository to prune
//   - tokens: Token repository to sweep
//   - retentionDays: History retention in days; 0 keeps rows forever
//   - log: Logger instance
func maintenanceLoop(ctx context.Context, history *display.SQLiteStateHistoryRepository, tokens auth.TokenRepository, retentionDays int, log *logging.Logger) {
	ticker := time.NewTicker(maintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := tokens.DeleteExpired(ctx); err != nil {
				log.Error("expired token sweep failed", "error", err)
			} else if n > 0 {
				log.Debug("expired tokens removed", "count", n)
			}

			if retentionDays > 0 {
				olderThan := time.Duration(retentionDays) * 24 * time.Hour
				if n, err := history.Prune(ctx, olderThan); err != nil {
					log.Error("state history prune failed", "error", err)
				} else if n > 0 {
					log.Info("state history pruned", "rows", n, "retention_days", retentionDays)
				}
			}
		}
	}
}

// mqttBridgeAdapter adapts the infrastructure MQTT client to the DDC bridge's
// MQTTClient interface. The primary difference is the Subscribe handler signature:
// - Infrastructure mqtt: func(topic, payload []byte) error
// - DDC bridge expects: func(topic, payload []byte)
type mqttBridgeAdapter struct {
	client *mqtt.Client
}

// Publish implements ddc.MQTTClient.
func (a *mqttBridgeAdapter) Publish(topic string, payload []byte, qos byte, retained bool) error {
	return a.client.Publish(topic, payload, qos, retained)
}

// Subscribe implements ddc.MQTTClient.
func (a *mqttBridgeAdapter) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	// Wrap the void handler to return nil error (bridge handlers don't return errors)
	return a.client.Subscribe(topic, qos, func(t string, p []byte) error {
		handler(t, p)
		return nil
	})
}

// IsConnected implements ddc.MQTTClient.
func (a *mqttBridgeAdapter) IsConnected() bool {
	return a.client.IsConnected()
}

// Disconnect implements ddc.MQTTClient.
// Note: When wired into main.go, the MQTT client is managed by the Core,
// so this is a no-op. The actual disconnect happens via the defer chain.
func (a *mqttBridgeAdapter) Disconnect(_ uint) {
	// No-op: MQTT client lifecycle is managed by Core's defer chain
}

// displayProvider adapts the display registry to the preset engine's view
// of displays: protocol, bus address and the parsed capability report.
type displayProvider struct {
	registry *display.Registry
}

// GetDisplay implements preset.DisplayRegistry.
func (p *displayProvider) GetDisplay(ctx context.Context, id string) (preset.DisplayInfo, error) {
	d, err := p.registry.GetDisplay(ctx, id)
	if err != nil {
		return preset.DisplayInfo{}, err
	}
	info := preset.DisplayInfo{
		ID:       d.ID,
		Protocol: string(d.Protocol),
		Address:  display.BusAddress(d.Address),
	}
	if d.RawCapabilities != "" {
		if report, parseErr := ddc.ParseCapabilities(d.RawCapabilities); parseErr == nil {
			info.Report = &report
		}
	}
	return info, nil
}
