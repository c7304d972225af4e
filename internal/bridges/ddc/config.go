package ddc

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// TransportDriverSim is the built-in simulated transport driver.
const TransportDriverSim = "sim"

// Config is the root configuration for the DDC bridge.
// Loaded from YAML with environment variable overrides.
type Config struct {
	Bridge    BridgeConfig       `yaml:"bridge"`
	Transport TransportSettings  `yaml:"transport"`
	MQTT      MQTTSettings       `yaml:"mqtt"`
	Poll      PollSettings       `yaml:"poll"`
	Displays  []SimDisplayConfig `yaml:"displays"`
	Logging   LoggingConfig      `yaml:"logging"`
}

// BridgeConfig contains bridge identity and operational settings.
type BridgeConfig struct {
	// ID uniquely identifies this bridge instance.
	// Used in MQTT client ID and health reporting.
	ID string `yaml:"id"`

	// HealthInterval is how often to publish health status (seconds).
	// Default: 30 seconds.
	HealthInterval int `yaml:"health_interval"`
}

// TransportSettings selects and tunes the monitor control channel.
type TransportSettings struct {
	// Driver names the transport implementation. Only "sim" is built in;
	// the simulated driver serves the displays listed under "displays".
	Driver string `yaml:"driver"`

	// ProbeTimeout is the maximum time for one capability probe (seconds).
	// Capability reads are the slowest DDC/CI exchange.
	// Default: 10 seconds.
	ProbeTimeout int `yaml:"probe_timeout"`

	// RequestTimeout is the timeout for VCP reads and writes (seconds).
	// Default: 5 seconds.
	RequestTimeout int `yaml:"request_timeout"`
}

// MQTTSettings contains MQTT broker connection settings.
type MQTTSettings struct {
	// Broker is the MQTT broker URL.
	// Example: "tcp://localhost:1883"
	Broker string `yaml:"broker"`

	// ClientID is the MQTT client identifier.
	// Should be unique per bridge instance.
	// Default: bridge.id + "-mqtt"
	ClientID string `yaml:"client_id"`

	// Username for MQTT authentication (optional).
	Username string `yaml:"username"`

	// Password for MQTT authentication (optional).
	// WARNING: Never log this value. Use String() method for safe logging.
	Password string `yaml:"password"`

	// QoS is the MQTT quality of service level (0, 1, or 2).
	// Default: 1 (at least once delivery).
	QoS int `yaml:"qos"`

	// KeepAlive is the MQTT keep-alive interval (seconds).
	// Default: 60 seconds.
	KeepAlive int `yaml:"keep_alive"`
}

// String returns a string representation with password masked.
// Use this for logging to prevent credential exposure.
func (m MQTTSettings) String() string {
	password := ""
	if m.Password != "" {
		password = "[REDACTED]"
	}
	return fmt.Sprintf("MQTTSettings{Broker:%q, ClientID:%q, Username:%q, Password:%s, QoS:%d, KeepAlive:%d}",
		m.Broker, m.ClientID, m.Username, password, m.QoS, m.KeepAlive)
}

// MarshalJSON implements json.Marshaler to redact password in JSON output.
// This prevents accidental password exposure in logs or API responses.
func (m MQTTSettings) MarshalJSON() ([]byte, error) {
	// Create a copy with redacted password for serialisation
	type redacted MQTTSettings
	safe := redacted(m)
	if safe.Password != "" {
		safe.Password = "[REDACTED]"
	}
	return json.Marshal(safe)
}

// PollSettings controls periodic state polling. Monitors have no way to
// push changes, so the bridge polls a small set of VCP codes and
// publishes state when a value moves.
type PollSettings struct {
	// Interval is the polling period (seconds). 0 disables polling.
	// Default: 30 seconds.
	Interval int `yaml:"interval"`

	// Codes lists the VCP codes to poll, as hex strings (e.g. "10").
	// Only codes a display's capability report lists are polled on it.
	// Default: brightness, contrast, input source and power mode.
	Codes []string `yaml:"codes"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	// Default: info
	Level string `yaml:"level"`

	// Format is the log output format: json or text.
	// Default: json
	Format string `yaml:"format"`
}

// LoadConfig reads configuration from a YAML file.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: DDC_BRIDGE_SECTION_KEY
// For example: DDC_BRIDGE_TRANSPORT_DRIVER, DDC_BRIDGE_MQTT_BROKER
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func LoadConfig(path string) (*Config, error) {
	// Start with defaults
	cfg := DefaultConfig()

	// Read and parse YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a Config with sensible defaults. The defaults
// run a single simulated display, so a bridge started without a config
// file still has something to serve.
func DefaultConfig() *Config {
	return &Config{
		Bridge: BridgeConfig{
			ID:             "ddc-bridge-01",
			HealthInterval: 30,
		},
		Transport: TransportSettings{
			Driver:         TransportDriverSim,
			ProbeTimeout:   10,
			RequestTimeout: 5,
		},
		MQTT: MQTTSettings{
			Broker:    "tcp://localhost:1883",
			QoS:       1,
			KeepAlive: 60,
		},
		Poll: PollSettings{
			Interval: 30,
			Codes: []string{
				FormatCode(byte(VCPBrightness)),
				FormatCode(byte(VCPContrast)),
				FormatCode(byte(VCPInputSource)),
				FormatCode(byte(VCPPowerMode)),
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Displays: []SimDisplayConfig{},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: DDC_BRIDGE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Bridge
	if v := os.Getenv("DDC_BRIDGE_ID"); v != "" {
		cfg.Bridge.ID = v
	}

	// Transport
	if v := os.Getenv("DDC_BRIDGE_TRANSPORT_DRIVER"); v != "" {
		cfg.Transport.Driver = v
	}

	// MQTT
	if v := os.Getenv("DDC_BRIDGE_MQTT_BROKER"); v != "" {
		cfg.MQTT.Broker = v
	}
	if v := os.Getenv("DDC_BRIDGE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Username = v
	}
	if v := os.Getenv("DDC_BRIDGE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Password = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	errs = append(errs, c.validateBridge()...)
	errs = append(errs, c.validateTransport()...)
	errs = append(errs, c.validateMQTT()...)
	errs = append(errs, c.validatePoll()...)
	errs = append(errs, c.validateDisplays()...)
	errs = append(errs, c.validateLogging()...)

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(errs, "; "))
	}

	return nil
}

// validateBridge validates bridge settings.
func (c *Config) validateBridge() []string {
	var errs []string
	if c.Bridge.ID == "" {
		errs = append(errs, "bridge.id is required")
	}
	if c.Bridge.HealthInterval < 1 {
		errs = append(errs, "bridge.health_interval must be at least 1 second")
	}
	return errs
}

// validateTransport validates transport settings.
func (c *Config) validateTransport() []string {
	var errs []string
	if c.Transport.Driver != TransportDriverSim {
		errs = append(errs, fmt.Sprintf("transport.driver %q is unknown (use %q)", c.Transport.Driver, TransportDriverSim))
	}
	if c.Transport.ProbeTimeout < 1 {
		errs = append(errs, "transport.probe_timeout must be at least 1 second")
	}
	if c.Transport.RequestTimeout < 1 {
		errs = append(errs, "transport.request_timeout must be at least 1 second")
	}
	return errs
}

// validateMQTT validates MQTT broker settings.
func (c *Config) validateMQTT() []string {
	var errs []string
	if c.MQTT.Broker == "" {
		errs = append(errs, "mqtt.broker is required")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	return errs
}

// validatePoll validates polling settings.
func (c *Config) validatePoll() []string {
	var errs []string
	if c.Poll.Interval < 0 {
		errs = append(errs, "poll.interval must be 0 (disabled) or a positive number of seconds")
	}
	for i, code := range c.Poll.Codes {
		if _, err := CodeToByte(code); err != nil {
			errs = append(errs, fmt.Sprintf("poll.codes[%d] %q is not a valid VCP code", i, code))
		}
	}
	return errs
}

// validateDisplays validates simulated display seeds.
func (c *Config) validateDisplays() []string {
	var errs []string
	addresses := make(map[string]bool)

	for i, d := range c.Displays {
		if d.Address == "" {
			errs = append(errs, fmt.Sprintf("displays[%d].address is required", i))
			continue
		}
		if addresses[d.Address] {
			errs = append(errs, fmt.Sprintf("displays[%d].address %q is duplicate", i, d.Address))
		}
		addresses[d.Address] = true

		if d.Capabilities != "" {
			if _, err := ParseCapabilities(d.Capabilities); err != nil {
				errs = append(errs, fmt.Sprintf("displays[%d].capabilities is invalid: %v", i, err))
			}
		}
	}

	return errs
}

// validateLogging validates logging settings.
func (c *Config) validateLogging() []string {
	var errs []string

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		errs = append(errs, fmt.Sprintf("logging.level %q is invalid (use debug, info, warn, or error)", c.Logging.Level))
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		errs = append(errs, fmt.Sprintf("logging.format %q is invalid (use json or text)", c.Logging.Format))
	}

	return errs
}

// BuildTransport constructs the configured transport. The sim driver is
// seeded from the displays section.
func (c *Config) BuildTransport() (Transport, error) {
	switch c.Transport.Driver {
	case TransportDriverSim:
		return NewSimTransport(c.Displays...)
	default:
		return nil, fmt.Errorf("%w: transport.driver %q", ErrInvalidConfig, c.Transport.Driver)
	}
}

// GetHealthInterval returns the health reporting interval as a Duration.
func (c *Config) GetHealthInterval() time.Duration {
	return time.Duration(c.Bridge.HealthInterval) * time.Second
}

// GetPollInterval returns the polling period as a Duration. Zero means
// polling is disabled.
func (c *Config) GetPollInterval() time.Duration {
	return time.Duration(c.Poll.Interval) * time.Second
}

// GetProbeTimeout returns the capability probe timeout as a Duration.
func (c *Config) GetProbeTimeout() time.Duration {
	return time.Duration(c.Transport.ProbeTimeout) * time.Second
}

// GetRequestTimeout returns the VCP request timeout as a Duration.
func (c *Config) GetRequestTimeout() time.Duration {
	return time.Duration(c.Transport.RequestTimeout) * time.Second
}

// GetMQTTClientID returns the MQTT client ID, defaulting to bridge ID if not set.
func (c *Config) GetMQTTClientID() string {
	if c.MQTT.ClientID != "" {
		return c.MQTT.ClientID
	}
	return c.Bridge.ID + "-mqtt"
}

// PollCodes returns the poll code list normalised to canonical form,
// with invalid entries dropped. Validate reports those entries; this
// accessor is for the poll loop after validation has passed.
func (c *Config) PollCodes() []string {
	codes := make([]string, 0, len(c.Poll.Codes))
	for _, code := range c.Poll.Codes {
		if _, err := CodeToByte(code); err != nil {
			continue
		}
		codes = append(codes, NormalizeCode(code))
	}
	return codes
}
