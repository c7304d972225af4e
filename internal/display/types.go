package display

import (
	"sort"
	"strings"
	"time"
)

// Display represents a monitor the service manages over DDC/CI.
// This matches the database schema in migrations/20260810_090000_initial_schema.up.sql.
type Display struct {
	// Identity
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`

	// Classification
	Type DisplayType `json:"type"`

	// Protocol information
	Protocol Protocol `json:"protocol"`
	Address  Address  `json:"address"`
	BridgeID *string  `json:"bridge_id,omitempty"`

	// Capabilities as reported by the monitor. Capabilities is the
	// human-level control surface derived from the VCP codes in
	// RawCapabilities; RawCapabilities keeps the original string so the
	// API can serve the parsed report without another bus round trip.
	Capabilities    []Capability `json:"capabilities"`
	RawCapabilities string       `json:"raw_capabilities,omitempty"`
	MCCSVersion     *string      `json:"mccs_version,omitempty"`

	// Configuration (input labels, preferred preset, poll overrides)
	Config Config `json:"config"`

	// Current state
	State          State      `json:"state"`
	StateUpdatedAt *time.Time `json:"state_updated_at,omitempty"`

	// Health monitoring
	HealthStatus   HealthStatus `json:"health_status"`
	HealthLastSeen *time.Time   `json:"health_last_seen,omitempty"`

	// Metadata from EDID
	Manufacturer *string `json:"manufacturer,omitempty"`
	Model        *string `json:"model,omitempty"`
	Serial       *string `json:"serial,omitempty"`

	// Tags are free-form string labels for filtering and bulk operations.
	// Example: ["studio", "colour-critical", "left"]
	Tags []string `json:"tags,omitempty"`

	// Timestamps
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DeepCopy creates a complete independent copy of the Display.
// All map and slice fields are cloned so modifications to the copy
// do not affect the original. This is essential for cache isolation.
func (d *Display) DeepCopy() *Display {
	if d == nil {
		return nil
	}

	cpy := *d // Shallow copy of value fields

	// Deep copy maps
	cpy.Address = deepCopyMap(d.Address)
	cpy.Config = deepCopyMap(d.Config)
	cpy.State = deepCopyMap(d.State)

	// Deep copy slices
	if d.Capabilities != nil {
		cpy.Capabilities = make([]Capability, len(d.Capabilities))
		copy(cpy.Capabilities, d.Capabilities)
	}

	if d.Tags != nil {
		cpy.Tags = make([]string, len(d.Tags))
		copy(cpy.Tags, d.Tags)
	}

	// Pointer fields (*string, *time.Time) don't need deep copy
	// because strings and time.Time are immutable in Go

	return &cpy
}

// deepCopyMap creates a deep copy of a map[string]any.
// Nested maps and slices are recursively copied.
func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cpy := make(map[string]any, len(m))
	for k, v := range m {
		cpy[k] = deepCopyValue(v)
	}
	return cpy
}

// deepCopyValue recursively copies a value, handling nested maps and slices.
func deepCopyValue(v any) any {
	if v == nil {
		return nil
	}
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		cpy := make([]any, len(val))
		for i, elem := range val {
			cpy[i] = deepCopyValue(elem)
		}
		return cpy
	default:
		// Primitives (string, bool, int, float64, etc.) are safe to copy by value
		return v
	}
}

// Address holds transport-specific address information as a JSON map.
//
// Examples:
//
//	DDC over I2C: {"bus": "i2c-4"}
//	DDC behind a DisplayPort MST hub: {"bus": "/dev/i2c-7", "mst_path": "1.2"}
//	USB HID monitor: {"device": "/dev/usb/hiddev0"}
type Address map[string]any

// BusAddress extracts the bus identifier from a DDC Address.
// Returns "" if the "bus" key is missing or not a string.
func BusAddress(addr Address) string {
	raw, ok := addr["bus"]
	if !ok {
		return ""
	}
	bus, ok := raw.(string)
	if !ok {
		return ""
	}
	return bus
}

// Config holds display-specific configuration as a JSON map.
//
// Example: {"input_labels": {"11": "Desktop", "0F": "Console"}}
type Config map[string]any

// State holds the current feature values as a JSON map keyed by state key.
//
// Example: {"brightness": 70, "contrast": 75, "input": 17, "power": 1}
type State map[string]any

// DisplayType represents the panel technology reported in the
// capabilities string's type(...) group.
type DisplayType string //nolint:revive // display.DisplayType is clearer than display.Type in calling code

// DisplayType constants.
const (
	DisplayTypeLCD       DisplayType = "lcd"
	DisplayTypeLED       DisplayType = "led"
	DisplayTypeOLED      DisplayType = "oled"
	DisplayTypeCRT       DisplayType = "crt"
	DisplayTypeProjector DisplayType = "projector"
	DisplayTypeUnknown   DisplayType = "unknown"
)

// AllDisplayTypes returns all valid display type values.
func AllDisplayTypes() []DisplayType {
	return []DisplayType{
		DisplayTypeLCD, DisplayTypeLED, DisplayTypeOLED,
		DisplayTypeCRT, DisplayTypeProjector, DisplayTypeUnknown,
	}
}

// ParseDisplayType maps a type value from a capabilities report to a
// DisplayType. Unrecognised values map to DisplayTypeUnknown.
func ParseDisplayType(s string) DisplayType {
	t := DisplayType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllDisplayTypes() {
		if t == known {
			return known
		}
	}
	return DisplayTypeUnknown
}

// Protocol represents how the monitor's DDC/CI channel is reached.
type Protocol string

// Protocol constants.
const (
	// ProtocolDDC is DDC/CI over an I2C bus (the common case).
	ProtocolDDC Protocol = "ddc"

	// ProtocolUSB is monitor control over a USB HID interface, used by
	// displays that expose VCP features without a reachable I2C bus.
	ProtocolUSB Protocol = "usb"
)

// AllProtocols returns all valid protocol values.
func AllProtocols() []Protocol {
	return []Protocol{ProtocolDDC, ProtocolUSB}
}

// Capability represents a control surface a display offers. Capabilities
// are derived from the VCP codes listed in the capabilities report.
type Capability string

// Capability constants.
const (
	CapBrightness   Capability = "brightness"
	CapContrast     Capability = "contrast"
	CapColourPreset Capability = "colour_preset"
	CapColourGain   Capability = "colour_gain"
	CapInputSelect  Capability = "input_select"
	CapAudioVolume  Capability = "audio_volume"
	CapAudioMute    Capability = "audio_mute"
	CapOSDLanguage  Capability = "osd_language"
	CapPowerControl Capability = "power_control"
	CapFactoryReset Capability = "factory_reset"
	CapColourReset  Capability = "colour_reset"
)

// AllCapabilities returns all valid capability values.
func AllCapabilities() []Capability {
	return []Capability{
		CapBrightness, CapContrast, CapColourPreset, CapColourGain,
		CapInputSelect, CapAudioVolume, CapAudioMute, CapOSDLanguage,
		CapPowerControl, CapFactoryReset, CapColourReset,
	}
}

// vcpCapabilities maps normalised VCP codes to the capability each
// implies. Codes absent from this table (vendor-specific or metadata
// codes such as DF) contribute no capability.
var vcpCapabilities = map[string]Capability{
	"04": CapFactoryReset,
	"05": CapFactoryReset,
	"08": CapColourReset,
	"10": CapBrightness,
	"12": CapContrast,
	"14": CapColourPreset,
	"16": CapColourGain,
	"18": CapColourGain,
	"1A": CapColourGain,
	"60": CapInputSelect,
	"62": CapAudioVolume,
	"8D": CapAudioMute,
	"CC": CapOSDLanguage,
	"D6": CapPowerControl,
}

// CapabilitiesForCodes derives the capability set implied by a list of
// VCP feature codes. The result is deduplicated and sorted; codes not
// in the known table are ignored.
func CapabilitiesForCodes(codes []string) []Capability {
	seen := make(map[Capability]struct{}, len(codes))
	var caps []Capability
	for _, code := range codes {
		norm := strings.ToUpper(strings.TrimSpace(code))
		if len(norm) == 1 {
			norm = "0" + norm
		}
		c, ok := vcpCapabilities[norm]
		if !ok {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		caps = append(caps, c)
	}
	sort.Slice(caps, func(i, j int) bool { return caps[i] < caps[j] })
	return caps
}

// HealthStatus represents the display health state.
type HealthStatus string

// HealthStatus constants.
const (
	HealthStatusOnline   HealthStatus = "online"
	HealthStatusOffline  HealthStatus = "offline"
	HealthStatusDegraded HealthStatus = "degraded"
	HealthStatusUnknown  HealthStatus = "unknown"
)

// AllHealthStatuses returns all valid health status values.
func AllHealthStatuses() []HealthStatus {
	return []HealthStatus{
		HealthStatusOnline, HealthStatusOffline, HealthStatusDegraded, HealthStatusUnknown,
	}
}
