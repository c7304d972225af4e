//nolint:goconst // Test files use repeated literals for clarity
package ddc

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
bridge:
  id: "test-ddc-bridge"
  health_interval: 30

transport:
  driver: "sim"
  probe_timeout: 10
  request_timeout: 5

mqtt:
  broker: "tcp://localhost:1883"
  client_id: "test-ddc-mqtt"
  qos: 1
  keep_alive: 60

poll:
  interval: 15
  codes: ["10", "12", "60"]

logging:
  level: "info"
  format: "json"

displays:
  - address: "sim-1"
    manufacturer: "SIM"
    model: "SIM27Q"
  - address: "sim-2"
    capabilities: "(prot(monitor)vcp(10 12))"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	// Verify bridge settings
	if cfg.Bridge.ID != "test-ddc-bridge" {
		t.Errorf("Bridge.ID = %q, want %q", cfg.Bridge.ID, "test-ddc-bridge")
	}
	if cfg.Bridge.HealthInterval != 30 {
		t.Errorf("Bridge.HealthInterval = %d, want 30", cfg.Bridge.HealthInterval)
	}

	// Verify transport settings
	if cfg.Transport.Driver != TransportDriverSim {
		t.Errorf("Transport.Driver = %q, want sim", cfg.Transport.Driver)
	}

	// Verify MQTT settings
	if cfg.MQTT.Broker != "tcp://localhost:1883" {
		t.Errorf("MQTT.Broker = %q, want tcp://localhost:1883", cfg.MQTT.Broker)
	}
	if cfg.MQTT.ClientID != "test-ddc-mqtt" {
		t.Errorf("MQTT.ClientID = %q, want test-ddc-mqtt", cfg.MQTT.ClientID)
	}

	// Verify poll settings
	if cfg.Poll.Interval != 15 {
		t.Errorf("Poll.Interval = %d, want 15", cfg.Poll.Interval)
	}
	if !reflect.DeepEqual(cfg.Poll.Codes, []string{"10", "12", "60"}) {
		t.Errorf("Poll.Codes = %v, want [10 12 60]", cfg.Poll.Codes)
	}

	// Verify display seeds
	if len(cfg.Displays) != 2 {
		t.Fatalf("len(Displays) = %d, want 2", len(cfg.Displays))
	}
	if cfg.Displays[1].Capabilities != "(prot(monitor)vcp(10 12))" {
		t.Errorf("Displays[1].Capabilities = %q", cfg.Displays[1].Capabilities)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	// Minimal config with just required fields
	configContent := `
bridge:
  id: "minimal-bridge"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	// Verify defaults are applied
	if cfg.Bridge.HealthInterval != 30 {
		t.Errorf("Default HealthInterval = %d, want 30", cfg.Bridge.HealthInterval)
	}
	if cfg.Transport.Driver != TransportDriverSim {
		t.Errorf("Default Transport.Driver = %q, want sim", cfg.Transport.Driver)
	}
	if cfg.MQTT.Broker != "tcp://localhost:1883" {
		t.Errorf("Default MQTT.Broker = %q, want tcp://localhost:1883", cfg.MQTT.Broker)
	}
	if cfg.MQTT.QoS != 1 {
		t.Errorf("Default MQTT.QoS = %d, want 1", cfg.MQTT.QoS)
	}
	if cfg.Poll.Interval != 30 {
		t.Errorf("Default Poll.Interval = %d, want 30", cfg.Poll.Interval)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Default Logging.Level = %q, want info", cfg.Logging.Level)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
bridge:
  id: "env-test-bridge"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	// Set environment variables
	t.Setenv("DDC_BRIDGE_ID", "override-bridge-id")
	t.Setenv("DDC_BRIDGE_MQTT_BROKER", "tcp://mqtt.local:1883")
	t.Setenv("DDC_BRIDGE_MQTT_USERNAME", "test-user")
	t.Setenv("DDC_BRIDGE_MQTT_PASSWORD", "test-pass")

	cfg, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Bridge.ID != "override-bridge-id" {
		t.Errorf("Bridge.ID = %q, want override-bridge-id", cfg.Bridge.ID)
	}
	if cfg.MQTT.Broker != "tcp://mqtt.local:1883" {
		t.Errorf("MQTT.Broker = %q, want tcp://mqtt.local:1883", cfg.MQTT.Broker)
	}
	if cfg.MQTT.Username != "test-user" {
		t.Errorf("MQTT.Username = %q, want test-user", cfg.MQTT.Username)
	}
	if cfg.MQTT.Password != "test-pass" {
		t.Errorf("MQTT.Password = %q, want test-pass", cfg.MQTT.Password)
	}
}

func TestConfigValidation(t *testing.T) {
	valid := func() Config {
		cfg := *DefaultConfig()
		return cfg
	}

	tests := []struct {
		name      string
		mutate    func(*Config)
		wantError string
	}{
		{
			name:      "missing bridge ID",
			mutate:    func(c *Config) { c.Bridge.ID = "" },
			wantError: "bridge.id is required",
		},
		{
			name:      "invalid health interval",
			mutate:    func(c *Config) { c.Bridge.HealthInterval = 0 },
			wantError: "health_interval must be at least 1",
		},
		{
			name:      "unknown transport driver",
			mutate:    func(c *Config) { c.Transport.Driver = "i2c" },
			wantError: "transport.driver",
		},
		{
			name:      "invalid QoS",
			mutate:    func(c *Config) { c.MQTT.QoS = 3 },
			wantError: "mqtt.qos must be 0, 1, or 2",
		},
		{
			name:      "negative poll interval",
			mutate:    func(c *Config) { c.Poll.Interval = -1 },
			wantError: "poll.interval",
		},
		{
			name:      "invalid poll code",
			mutate:    func(c *Config) { c.Poll.Codes = []string{"10", "XYZ"} },
			wantError: "poll.codes[1]",
		},
		{
			name:      "display without address",
			mutate:    func(c *Config) { c.Displays = []SimDisplayConfig{{Model: "SIM27Q"}} },
			wantError: "displays[0].address is required",
		},
		{
			name: "duplicate display address",
			mutate: func(c *Config) {
				c.Displays = []SimDisplayConfig{{Address: "sim-1"}, {Address: "sim-1"}}
			},
			wantError: "is duplicate",
		},
		{
			name: "unparseable display capabilities",
			mutate: func(c *Config) {
				c.Displays = []SimDisplayConfig{{Address: "sim-1", Capabilities: "   "}}
			},
			wantError: "displays[0].capabilities is invalid",
		},
		{
			name:      "invalid log level",
			mutate:    func(c *Config) { c.Logging.Level = "verbose" },
			wantError: "logging.level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() should have returned an error")
			}
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Validate() error = %v, want ErrInvalidConfig", err)
			}
			if !strings.Contains(err.Error(), tt.wantError) {
				t.Errorf("Validate() error = %v, want error containing %q", err, tt.wantError)
			}
		})
	}
}

func TestConfigValidationSuccess(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Displays = []SimDisplayConfig{{Address: "sim-1"}}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() returned unexpected error: %v", err)
	}

	// Zero poll interval disables polling but is valid.
	cfg.Poll.Interval = 0
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() with poll disabled returned error: %v", err)
	}
}

func TestConfigBuildTransport(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Displays = []SimDisplayConfig{{Address: "sim-a"}, {Address: "sim-b"}}

	tr, err := cfg.BuildTransport()
	if err != nil {
		t.Fatalf("BuildTransport() error = %v", err)
	}
	defer tr.Close() //nolint:errcheck // cleanup

	sim, ok := tr.(*SimTransport)
	if !ok {
		t.Fatalf("BuildTransport() returned %T, want *SimTransport", tr)
	}
	if got := len(sim.order); got != 2 {
		t.Errorf("sim transport has %d displays, want 2", got)
	}

	cfg.Transport.Driver = "i2c"
	if _, err := cfg.BuildTransport(); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("BuildTransport() with unknown driver error = %v, want ErrInvalidConfig", err)
	}
}

func TestGetMQTTClientID(t *testing.T) {
	// With explicit client ID
	cfg := Config{
		Bridge: BridgeConfig{ID: "ddc-01"},
		MQTT:   MQTTSettings{ClientID: "custom-client-id"},
	}
	if got := cfg.GetMQTTClientID(); got != "custom-client-id" {
		t.Errorf("GetMQTTClientID() = %q, want custom-client-id", got)
	}

	// Without explicit client ID (should use bridge ID)
	cfg.MQTT.ClientID = ""
	if got := cfg.GetMQTTClientID(); got != "ddc-01-mqtt" {
		t.Errorf("GetMQTTClientID() = %q, want ddc-01-mqtt", got)
	}
}

func TestPollCodes(t *testing.T) {
	cfg := Config{Poll: PollSettings{Codes: []string{"10", "1a", "zz", " 60 "}}}

	got := cfg.PollCodes()
	want := []string{"10", "1A", "60"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("PollCodes() = %v, want %v", got, want)
	}
}

func TestMQTTSettingsRedaction(t *testing.T) {
	m := MQTTSettings{Broker: "tcp://localhost:1883", Username: "user", Password: "secret"}

	if s := m.String(); strings.Contains(s, "secret") {
		t.Errorf("String() leaked password: %s", s)
	}

	data, err := m.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON() error = %v", err)
	}
	if strings.Contains(string(data), "secret") {
		t.Errorf("MarshalJSON() leaked password: %s", data)
	}
	if !strings.Contains(string(data), "[REDACTED]") {
		t.Errorf("MarshalJSON() should redact password: %s", data)
	}
}
