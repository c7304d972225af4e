package ddc

import "context"

// DisplayInfo identifies a display reachable through a Transport.
type DisplayInfo struct {
	// Address is the transport-specific display address (e.g. "i2c-4",
	// "sim-1"). Stable for the lifetime of the transport.
	Address string

	// Manufacturer is the PNP vendor ID from EDID, if known.
	Manufacturer string

	// Model is the display model name from EDID, if known.
	Model string

	// Serial is the display serial string from EDID, if known.
	Serial string
}

// VCPValue is the result of reading a VCP feature.
type VCPValue struct {
	// Current is the feature's present value.
	Current uint16

	// Maximum is the feature's maximum value. Continuous features range
	// from 0 to Maximum; for discrete features it is the highest defined
	// value and carries little meaning.
	Maximum uint16
}

// Transport is the control channel to a set of monitors.
//
// Implementations own display handles and the byte-level DDC/CI exchange;
// this package only sequences capability probes and feature reads/writes
// over the interface. All methods must be safe for concurrent use.
type Transport interface {
	// Displays enumerates the displays currently reachable.
	Displays(ctx context.Context) ([]DisplayInfo, error)

	// Capabilities fetches the raw capabilities string for a display.
	// The string is returned exactly as the monitor sent it; parsing is
	// the caller's concern.
	Capabilities(ctx context.Context, address string) (string, error)

	// GetVCP reads the current and maximum value of a VCP feature.
	GetVCP(ctx context.Context, address string, code byte) (VCPValue, error)

	// SetVCP writes a VCP feature value.
	SetVCP(ctx context.Context, address string, code byte, value uint16) error

	// Close releases all display handles. Subsequent calls on the
	// transport return ErrTransportClosed.
	Close() error
}
