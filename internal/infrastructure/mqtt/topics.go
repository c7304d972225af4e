package mqtt

import "fmt"

// Topic prefixes for the DDC Core MQTT scheme.
//
// All bridge topics use the flat scheme: ddccore/{category}/{protocol}/{address}
// This matches the DDC bridge's messages.go and all runtime subscribers.
const (
	// TopicPrefixBridge is the base for all bridge topics.
	// Flat scheme: ddccore/{category}/{protocol}/{address_or_id}
	TopicPrefixBridge = "ddccore"

	// TopicPrefixCore is the base for all core topics.
	TopicPrefixCore = "ddccore/core"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "ddccore/system"
)

// Topics provides builders for DDC Core MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
// Bridge topics use the flat scheme matching the DDC bridge's messages.go.
// Addresses must already be topic-encoded; the bridge encodes "/" as %2F so
// device paths occupy a single topic level:
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.BridgeState("ddc", "i2c-4")
//	// Returns: "ddccore/state/ddc/i2c-4"
type Topics struct{}

// =============================================================================
// Bridge Topics
// =============================================================================

// BridgeState returns the topic for display state updates from a bridge.
//
// Example: ddccore/state/ddc/i2c-4
func (Topics) BridgeState(protocol, address string) string {
	return fmt.Sprintf("%s/state/%s/%s", TopicPrefixBridge, protocol, address)
}

// BridgeCommand returns the topic for commands to a bridge.
//
// Example: ddccore/command/ddc/i2c-4
func (Topics) BridgeCommand(protocol, address string) string {
	return fmt.Sprintf("%s/command/%s/%s", TopicPrefixBridge, protocol, address)
}

// BridgeAck returns the topic for command acknowledgements from a bridge.
//
// Example: ddccore/ack/ddc/i2c-4
func (Topics) BridgeAck(protocol, address string) string {
	return fmt.Sprintf("%s/ack/%s/%s", TopicPrefixBridge, protocol, address)
}

// BridgeResponse returns the topic for request responses from a bridge.
//
// Example: ddccore/response/ddc/req-abc123
func (Topics) BridgeResponse(protocol, requestID string) string {
	return fmt.Sprintf("%s/response/%s/%s", TopicPrefixBridge, protocol, requestID)
}

// BridgeRequest returns the topic for requests to a bridge.
//
// Example: ddccore/request/ddc/req-abc123
func (Topics) BridgeRequest(protocol, requestID string) string {
	return fmt.Sprintf("%s/request/%s/%s", TopicPrefixBridge, protocol, requestID)
}

// BridgeHealth returns the topic for bridge health status.
//
// Example: ddccore/health/ddc
func (Topics) BridgeHealth(protocol string) string {
	return fmt.Sprintf("%s/health/%s", TopicPrefixBridge, protocol)
}

// BridgeDiscovery returns the topic for display discovery from a bridge.
//
// Example: ddccore/discovery/ddc
func (Topics) BridgeDiscovery(protocol string) string {
	return fmt.Sprintf("%s/discovery/%s", TopicPrefixBridge, protocol)
}

// =============================================================================
// Core Topics
// =============================================================================

// CoreDisplayState returns the canonical display state topic.
// This is the authoritative state published by Core after processing bridge updates.
//
// Example: ddccore/core/display/wall-north-1/state
func (Topics) CoreDisplayState(displayID string) string {
	return fmt.Sprintf("%s/display/%s/state", TopicPrefixCore, displayID)
}

// CoreEvent returns the topic for system events.
//
// Example: ddccore/core/event/display_state_changed
func (Topics) CoreEvent(eventType string) string {
	return fmt.Sprintf("%s/event/%s", TopicPrefixCore, eventType)
}

// CorePresetApplied returns the topic for preset application events.
//
// Example: ddccore/core/preset/movie-night/applied
func (Topics) CorePresetApplied(presetID string) string {
	return fmt.Sprintf("%s/preset/%s/applied", TopicPrefixCore, presetID)
}

// CorePresetProgress returns the topic for preset application progress.
//
// Example: ddccore/core/preset/movie-night/progress
func (Topics) CorePresetProgress(presetID string) string {
	return fmt.Sprintf("%s/preset/%s/progress", TopicPrefixCore, presetID)
}

// CoreAlert returns the topic for system alerts.
//
// Example: ddccore/core/alert/alert-bridge-offline
func (Topics) CoreAlert(alertID string) string {
	return fmt.Sprintf("%s/alert/%s", TopicPrefixCore, alertID)
}

// =============================================================================
// System Topics
// =============================================================================

// SystemStatus returns the system status topic.
//
// Example: ddccore/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// SystemTime returns the time sync topic.
//
// Example: ddccore/system/time
func (Topics) SystemTime() string {
	return fmt.Sprintf("%s/time", TopicPrefixSystem)
}

// SystemShutdown returns the shutdown signal topic.
//
// Example: ddccore/system/shutdown
func (Topics) SystemShutdown() string {
	return fmt.Sprintf("%s/shutdown", TopicPrefixSystem)
}

// =============================================================================
// Wildcard Patterns for Subscriptions
// =============================================================================

// AllBridgeStates returns a pattern matching all bridge state updates.
//
// Pattern: ddccore/state/+/+
func (Topics) AllBridgeStates() string {
	return fmt.Sprintf("%s/state/+/+", TopicPrefixBridge)
}

// AllBridgeCommands returns a pattern matching all commands to bridges.
//
// Pattern: ddccore/command/+/+
func (Topics) AllBridgeCommands() string {
	return fmt.Sprintf("%s/command/+/+", TopicPrefixBridge)
}

// AllBridgeAcks returns a pattern matching all bridge acknowledgements.
//
// Pattern: ddccore/ack/+/+
func (Topics) AllBridgeAcks() string {
	return fmt.Sprintf("%s/ack/+/+", TopicPrefixBridge)
}

// AllBridgeHealth returns a pattern matching all bridge health updates.
//
// Pattern: ddccore/health/+
func (Topics) AllBridgeHealth() string {
	return fmt.Sprintf("%s/health/+", TopicPrefixBridge)
}

// AllBridgeDiscovery returns a pattern matching all bridge discovery topics.
//
// Pattern: ddccore/discovery/+
func (Topics) AllBridgeDiscovery() string {
	return fmt.Sprintf("%s/discovery/+", TopicPrefixBridge)
}

// AllBridgeRequests returns a pattern matching all bridge request topics.
//
// Pattern: ddccore/request/+/+
func (Topics) AllBridgeRequests() string {
	return fmt.Sprintf("%s/request/+/+", TopicPrefixBridge)
}

// AllBridgeResponses returns a pattern matching all bridge response topics.
//
// Pattern: ddccore/response/+/+
func (Topics) AllBridgeResponses() string {
	return fmt.Sprintf("%s/response/+/+", TopicPrefixBridge)
}

// AllCoreDisplayStates returns a pattern matching all canonical display states.
//
// Pattern: ddccore/core/display/+/state
func (Topics) AllCoreDisplayStates() string {
	return fmt.Sprintf("%s/display/+/state", TopicPrefixCore)
}

// AllCoreEvents returns a pattern matching all core events.
//
// Pattern: ddccore/core/event/+
func (Topics) AllCoreEvents() string {
	return fmt.Sprintf("%s/event/+", TopicPrefixCore)
}

// AllCoreAlerts returns a pattern matching all alerts.
//
// Pattern: ddccore/core/alert/+
func (Topics) AllCoreAlerts() string {
	return fmt.Sprintf("%s/alert/+", TopicPrefixCore)
}

// AllTopics returns a pattern matching all DDC Core topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: ddccore/#
func (Topics) AllTopics() string {
	return "ddccore/#"
}
