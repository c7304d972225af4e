package ddc

import "errors"

// Sentinel errors for the DDC bridge.
//
// These can be checked with errors.Is():
//
//	if errors.Is(err, ddc.ErrUnsupportedFeature) {
//	    // the display does not expose this VCP code
//	}
var (
	// ErrEmptyCapabilities is returned when a capabilities string is empty
	// or contains only whitespace.
	ErrEmptyCapabilities = errors.New("ddc: empty capabilities string")

	// ErrInvalidCode is returned when a VCP code is not valid two-digit hex.
	ErrInvalidCode = errors.New("ddc: invalid vcp code")

	// ErrUnsupportedFeature is returned when a display's capability report
	// does not list the requested VCP code.
	ErrUnsupportedFeature = errors.New("ddc: unsupported feature")

	// ErrValueNotAllowed is returned when a value is not in a discrete
	// feature's supported value list.
	ErrValueNotAllowed = errors.New("ddc: value not allowed for feature")

	// ErrDisplayNotFound is returned when a display address or ID is not
	// known to the transport or bridge.
	ErrDisplayNotFound = errors.New("ddc: display not found")

	// ErrTransportClosed is returned when an operation is attempted on a
	// closed transport.
	ErrTransportClosed = errors.New("ddc: transport closed")

	// ErrNotConnected is returned when the bridge is asked to operate
	// without a connected MQTT client.
	ErrNotConnected = errors.New("ddc: not connected to broker")

	// ErrBridgeStopped is returned when an operation is attempted on a
	// stopped bridge.
	ErrBridgeStopped = errors.New("ddc: bridge stopped")

	// ErrInvalidConfig is returned when bridge configuration is invalid.
	ErrInvalidConfig = errors.New("ddc: invalid configuration")
)
