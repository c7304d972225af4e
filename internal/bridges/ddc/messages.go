package ddc

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// MQTT message types for communication between ddc-core and the DDC bridge.

// CommandMessage is sent from Core to Bridge to change a display setting.
// Topic: ddccore/command/ddc/{address}
type CommandMessage struct {
	// ID uniquely identifies this command for correlation with acknowledgments.
	ID string `json:"id"`

	// Timestamp is when the command was issued (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// DisplayID is the ddc-core display identifier.
	DisplayID string `json:"display_id"`

	// Command is the command name.
	// Values: "set_feature", "power_on", "power_off", "restore_factory".
	Command string `json:"command"`

	// Parameters contains command-specific values.
	// Examples:
	//   {"feature": "brightness", "value": 70} for set_feature
	//   {"feature": "60", "value": 17} to address a VCP code directly
	Parameters map[string]any `json:"parameters,omitempty"`

	// Source indicates where the command originated.
	// Values: "api", "preset", "schedule"
	Source string `json:"source"`

	// UserID is the user who triggered the command (if applicable).
	UserID string `json:"user_id,omitempty"`
}

// AckStatus represents the acknowledgment status of a command.
type AckStatus string

const (
	// AckAccepted indicates the command was received and sent to the display.
	AckAccepted AckStatus = "accepted"

	// AckQueued indicates the command was received but waiting to send (display busy).
	AckQueued AckStatus = "queued"

	// AckFailed indicates the command could not be executed.
	AckFailed AckStatus = "failed"

	// AckTimeout indicates the display did not respond within the timeout.
	AckTimeout AckStatus = "timeout"
)

// AckMessage is sent from Bridge to Core to acknowledge a command.
// Topic: ddccore/ack/ddc/{address}
type AckMessage struct {
	// CommandID is the ID from the original command.
	CommandID string `json:"command_id"`

	// Timestamp is when the acknowledgment was sent (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// DisplayID is the ddc-core display identifier.
	DisplayID string `json:"display_id"`

	// Status indicates the acknowledgment status.
	Status AckStatus `json:"status"`

	// Protocol is the protocol identifier ("ddc").
	Protocol string `json:"protocol"`

	// Address is the transport-specific display address (e.g., "i2c-4").
	Address string `json:"address"`

	// Error contains details if status is "failed" or "timeout".
	Error *AckError `json:"error,omitempty"`
}

// AckError contains error details for failed commands.
type AckError struct {
	// Code is the error code (e.g., "DISPLAY_UNREACHABLE", "INVALID_COMMAND").
	Code string `json:"code"`

	// Message is a human-readable error description.
	Message string `json:"message"`

	// Retries is the number of retry attempts made.
	Retries int `json:"retries,omitempty"`
}

// Error codes for command failures.
const (
	ErrCodeDisplayUnreachable = "DISPLAY_UNREACHABLE"
	ErrCodeInvalidCommand     = "INVALID_COMMAND"
	ErrCodeInvalidParameters  = "INVALID_PARAMETERS"
	ErrCodeUnsupported        = "UNSUPPORTED_FEATURE"
	ErrCodeValueNotAllowed    = "VALUE_NOT_ALLOWED"
	ErrCodeProtocolError      = "PROTOCOL_ERROR"
	ErrCodeTimeout            = "TIMEOUT"
	ErrCodeBridgeError        = "BRIDGE_ERROR"
)

// StateMessage is sent from Bridge to Core when display state changes.
// Topic: ddccore/state/ddc/{address}
// QoS: 1, Retained: Yes
type StateMessage struct {
	// DisplayID is the ddc-core display identifier.
	DisplayID string `json:"display_id"`

	// Timestamp is when the state was observed (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// State maps feature state keys to current values.
	// Example: {"brightness": 70, "contrast": 75, "input": 17, "power": 1}
	State map[string]any `json:"state"`

	// Protocol is the protocol identifier ("ddc").
	Protocol string `json:"protocol"`

	// Address is the transport-specific display address.
	Address string `json:"address"`
}

// HealthStatus represents the operational status of the bridge.
type HealthStatus string

const (
	// HealthHealthy indicates the bridge is operating normally.
	HealthHealthy HealthStatus = "healthy"

	// HealthDegraded indicates the bridge is operating with issues.
	HealthDegraded HealthStatus = "degraded"

	// HealthUnhealthy indicates the bridge is not operating correctly.
	HealthUnhealthy HealthStatus = "unhealthy"

	// HealthOffline indicates the bridge is not connected (from LWT).
	HealthOffline HealthStatus = "offline"

	// HealthStarting indicates the bridge is starting up.
	HealthStarting HealthStatus = "starting"

	// HealthStopping indicates the bridge is shutting down.
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage is sent from Bridge to Core to report operational status.
// Topic: ddccore/health/ddc
// QoS: 1, Retained: Yes
// Interval: Every 30 seconds
type HealthMessage struct {
	// Bridge is the bridge identifier (e.g., "ddc-bridge-01").
	Bridge string `json:"bridge"`

	// Timestamp is when the health status was generated (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// Status indicates the current operational status.
	Status HealthStatus `json:"status"`

	// Version is the bridge software version.
	Version string `json:"version"`

	// UptimeSeconds is how long the bridge has been running.
	UptimeSeconds int64 `json:"uptime_seconds"`

	// Transport contains monitor transport details.
	Transport *TransportStatus `json:"transport,omitempty"`

	// Statistics contains operational metrics.
	Statistics *BridgeStatistics `json:"statistics,omitempty"`

	// DisplaysManaged is the number of probed displays.
	DisplaysManaged int `json:"displays_managed"`

	// Reason explains the status (especially for offline/degraded).
	Reason string `json:"reason,omitempty"`
}

// TransportStatus describes the monitor transport state.
type TransportStatus struct {
	// Status is the transport status ("open", "closed").
	Status string `json:"status"`

	// Driver is the transport driver name (e.g., "sim").
	Driver string `json:"driver"`

	// OpenSince is when the transport was opened.
	OpenSince *time.Time `json:"open_since,omitempty"`
}

// BridgeStatistics contains operational metrics.
type BridgeStatistics struct {
	// CommandsReceived is the total number of commands consumed from MQTT.
	CommandsReceived uint64 `json:"commands_received"`

	// VCPReads is the total number of VCP feature reads performed.
	VCPReads uint64 `json:"vcp_reads"`

	// VCPWrites is the total number of VCP feature writes performed.
	VCPWrites uint64 `json:"vcp_writes"`

	// Errors is the total number of errors encountered.
	Errors uint64 `json:"errors"`
}

// RequestMessage is sent from Core to Bridge for request/response operations.
// Topic: ddccore/request/ddc/{request_id}
type RequestMessage struct {
	// RequestID uniquely identifies this request for correlation.
	RequestID string `json:"request_id"`

	// Timestamp is when the request was issued (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// Action is the requested operation.
	// Values: "read_state", "read_all", "get_capabilities",
	// "refresh_capabilities", "discover"
	Action string `json:"action"`

	// DisplayID is the target display (for display-specific actions).
	DisplayID string `json:"display_id,omitempty"`

	// Address is the transport address of the target display.
	Address string `json:"address,omitempty"`

	// Parameters contains action-specific values.
	Parameters map[string]any `json:"parameters,omitempty"`
}

// ResponseMessage is sent from Bridge to Core in response to a request.
// Topic: ddccore/response/ddc/{request_id}
type ResponseMessage struct {
	// RequestID is the ID from the original request.
	RequestID string `json:"request_id"`

	// Timestamp is when the response was generated (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// Success indicates whether the request succeeded.
	Success bool `json:"success"`

	// Data contains the response payload (if successful).
	Data map[string]any `json:"data,omitempty"`

	// Error contains error details (if failed).
	Error *ResponseError `json:"error,omitempty"`
}

// ResponseError contains error details for failed requests.
type ResponseError struct {
	// Code is the error code.
	Code string `json:"code"`

	// Message is a human-readable error description.
	Message string `json:"message"`

	// Details contains additional error context.
	Details map[string]any `json:"details,omitempty"`
}

// DiscoveryMessage is sent from Bridge to Core to announce probed displays.
// Topic: ddccore/discovery/ddc
type DiscoveryMessage struct {
	// Timestamp is when discovery was performed (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// Bridge is the bridge identifier.
	Bridge string `json:"bridge"`

	// Displays contains the probed displays.
	Displays []DiscoveredDisplay `json:"displays"`
}

// DiscoveredDisplay represents a display found during a probe scan.
type DiscoveredDisplay struct {
	// Protocol is the protocol identifier.
	Protocol string `json:"protocol"`

	// Address is the transport-specific address.
	Address string `json:"address"`

	// Manufacturer is the display manufacturer (if known).
	Manufacturer string `json:"manufacturer,omitempty"`

	// Model is the display model (if known).
	Model string `json:"model,omitempty"`

	// Serial is the display serial string (if known).
	Serial string `json:"serial,omitempty"`

	// MCCSVersion is the MCCS version from the capability report.
	MCCSVersion string `json:"mccs_version,omitempty"`

	// Capabilities lists the recognised feature names from the capability
	// report (e.g., ["brightness", "contrast", "input_source"]).
	Capabilities []string `json:"capabilities"`

	// FeatureCodes lists every VCP code the display reports, in canonical
	// uppercase-hex form.
	FeatureCodes []string `json:"feature_codes"`
}

// CapabilityNames maps a capability report to the canonical names of the
// features it lists, ordered by code. Codes without a known definition
// are skipped; FeatureCodes carries the full set.
func CapabilityNames(report CapabilityReport) []string {
	names := make([]string, 0, len(report.Features))
	for _, code := range report.FeatureCodes() {
		if def := LookupVCP(code); def != nil {
			names = append(names, def.Name)
		}
	}
	return names
}

// JSON marshalling helpers

// MarshalJSON marshals a CommandMessage to JSON.
func (m *CommandMessage) MarshalJSON() ([]byte, error) {
	type Alias CommandMessage
	return json.Marshal(&struct {
		*Alias
		Timestamp string `json:"timestamp"`
	}{
		Alias:     (*Alias)(m),
		Timestamp: m.Timestamp.UTC().Format(time.RFC3339),
	})
}

// UnmarshalJSON unmarshals a CommandMessage from JSON.
func (m *CommandMessage) UnmarshalJSON(data []byte) error {
	type Alias CommandMessage
	aux := &struct {
		*Alias
		Timestamp string `json:"timestamp"`
	}{
		Alias: (*Alias)(m),
	}
	if err := json.Unmarshal(data, aux); err != nil {
		return fmt.Errorf("unmarshal command message: %w", err)
	}
	if aux.Timestamp != "" {
		t, err := time.Parse(time.RFC3339, aux.Timestamp)
		if err != nil {
			return fmt.Errorf("parse timestamp: %w", err)
		}
		m.Timestamp = t
	}
	return nil
}

// NewAckMessage creates an acknowledgment message for a command.
func NewAckMessage(cmd CommandMessage, status AckStatus, address string) AckMessage {
	return AckMessage{
		CommandID: cmd.ID,
		Timestamp: time.Now().UTC(),
		DisplayID: cmd.DisplayID,
		Status:    status,
		Protocol:  "ddc",
		Address:   address,
	}
}

// NewAckError creates an acknowledgment with error details.
func NewAckError(cmd CommandMessage, address, code, message string, retries int) AckMessage {
	status := AckFailed
	if code == ErrCodeTimeout {
		status = AckTimeout
	}
	return AckMessage{
		CommandID: cmd.ID,
		Timestamp: time.Now().UTC(),
		DisplayID: cmd.DisplayID,
		Status:    status,
		Protocol:  "ddc",
		Address:   address,
		Error: &AckError{
			Code:    code,
			Message: message,
			Retries: retries,
		},
	}
}

// NewStateMessage creates a state message for a display.
func NewStateMessage(displayID, address string, state map[string]any) StateMessage {
	return StateMessage{
		DisplayID: displayID,
		Timestamp: time.Now().UTC(),
		State:     state,
		Protocol:  "ddc",
		Address:   address,
	}
}

// NewHealthMessage creates a health status message.
func NewHealthMessage(bridgeID, version string, status HealthStatus, stats BridgeStats, displayCount int, startTime time.Time) HealthMessage {
	msg := HealthMessage{
		Bridge:          bridgeID,
		Timestamp:       time.Now().UTC(),
		Status:          status,
		Version:         version,
		UptimeSeconds:   int64(time.Since(startTime).Seconds()),
		DisplaysManaged: displayCount,
	}

	if stats.TransportOpen {
		openSince := stats.TransportOpenSince
		msg.Transport = &TransportStatus{
			Status:    "open",
			Driver:    stats.TransportDriver,
			OpenSince: &openSince,
		}
	} else {
		msg.Transport = &TransportStatus{
			Status: "closed",
			Driver: stats.TransportDriver,
		}
	}

	msg.Statistics = &BridgeStatistics{
		CommandsReceived: stats.CommandsReceived,
		VCPReads:         stats.VCPReads,
		VCPWrites:        stats.VCPWrites,
		Errors:           stats.ErrorsTotal,
	}

	return msg
}

// NewLWTMessage creates a Last Will and Testament message for MQTT.
// This message is published by the broker if the bridge disconnects unexpectedly.
func NewLWTMessage(bridgeID string) HealthMessage {
	return HealthMessage{
		Bridge:    bridgeID,
		Timestamp: time.Now().UTC(),
		Status:    HealthOffline,
		Reason:    "unexpected_disconnect",
	}
}

// NewDiscoveryMessage creates a discovery announcement for a set of
// probed monitors.
func NewDiscoveryMessage(bridgeID string, monitors []*Monitor) DiscoveryMessage {
	displays := make([]DiscoveredDisplay, 0, len(monitors))
	for _, m := range monitors {
		info := m.Info()
		report := m.Report()
		displays = append(displays, DiscoveredDisplay{
			Protocol:     "ddc",
			Address:      info.Address,
			Manufacturer: info.Manufacturer,
			Model:        info.Model,
			Serial:       info.Serial,
			MCCSVersion:  report.MCCSVersion,
			Capabilities: CapabilityNames(report),
			FeatureCodes: report.FeatureCodes(),
		})
	}
	sort.Slice(displays, func(i, j int) bool { return displays[i].Address < displays[j].Address })
	return DiscoveryMessage{
		Timestamp: time.Now().UTC(),
		Bridge:    bridgeID,
		Displays:  displays,
	}
}

// Topic helpers

const (
	// TopicPrefix is the base topic for all ddc-core messages.
	TopicPrefix = "ddccore"
)

// CommandTopic returns the MQTT topic for commands to a specific address.
// Example: ddccore/command/ddc/i2c-4
func CommandTopic(address string) string {
	return fmt.Sprintf("%s/command/ddc/%s", TopicPrefix, EncodeTopicAddress(address))
}

// AckTopic returns the MQTT topic for command acknowledgments.
// Example: ddccore/ack/ddc/i2c-4
func AckTopic(address string) string {
	return fmt.Sprintf("%s/ack/ddc/%s", TopicPrefix, EncodeTopicAddress(address))
}

// StateTopic returns the MQTT topic for state updates.
// Example: ddccore/state/ddc/i2c-4
func StateTopic(address string) string {
	return fmt.Sprintf("%s/state/ddc/%s", TopicPrefix, EncodeTopicAddress(address))
}

// HealthTopic returns the MQTT topic for health status.
// Example: ddccore/health/ddc
func HealthTopic() string {
	return fmt.Sprintf("%s/health/ddc", TopicPrefix)
}

// RequestTopic returns the MQTT topic for requests.
// Example: ddccore/request/ddc/req-123
func RequestTopic(requestID string) string {
	return fmt.Sprintf("%s/request/ddc/%s", TopicPrefix, requestID)
}

// ResponseTopic returns the MQTT topic for responses.
// Example: ddccore/response/ddc/req-123
func ResponseTopic(requestID string) string {
	return fmt.Sprintf("%s/response/ddc/%s", TopicPrefix, requestID)
}

// DiscoveryTopic returns the MQTT topic for display discovery.
// Example: ddccore/discovery/ddc
func DiscoveryTopic() string {
	return fmt.Sprintf("%s/discovery/ddc", TopicPrefix)
}

// CommandSubscribeTopic returns the MQTT subscription pattern for all commands.
// Example: ddccore/command/ddc/#
func CommandSubscribeTopic() string {
	return fmt.Sprintf("%s/command/ddc/#", TopicPrefix)
}

// RequestSubscribeTopic returns the MQTT subscription pattern for all requests.
// Example: ddccore/request/ddc/#
func RequestSubscribeTopic() string {
	return fmt.Sprintf("%s/request/ddc/#", TopicPrefix)
}

// encodedSlashLen is the length of URL-encoded slash (%2F).
const encodedSlashLen = 3

// EncodeTopicAddress URL-encodes an address for use in MQTT topics.
// Device-path addresses like "/dev/i2c-4" contain slashes which must be
// encoded so they occupy a single topic level.
// Example: "/dev/i2c-4" → "%2Fdev%2Fi2c-4"
func EncodeTopicAddress(address string) string {
	result := make([]byte, 0, len(address)*encodedSlashLen)
	for i := 0; i < len(address); i++ {
		if address[i] == '/' {
			result = append(result, '%', '2', 'F')
		} else {
			result = append(result, address[i])
		}
	}
	return string(result)
}

// DecodeTopicAddress decodes a URL-encoded address from an MQTT topic.
// Example: "%2Fdev%2Fi2c-4" → "/dev/i2c-4"
func DecodeTopicAddress(encoded string) string {
	result := make([]byte, 0, len(encoded))
	for i := 0; i < len(encoded); i++ {
		if i+2 < len(encoded) && encoded[i] == '%' && encoded[i+1] == '2' && encoded[i+2] == 'F' {
			result = append(result, '/')
			i += 2
		} else {
			result = append(result, encoded[i])
		}
	}
	return string(result)
}
