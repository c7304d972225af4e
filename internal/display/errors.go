package display

import "errors"

// Domain errors for the display package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, display.ErrDisplayNotFound) {
//	    // handle not found case
//	}
var (
	// ErrDisplayNotFound is returned when a display ID does not exist.
	ErrDisplayNotFound = errors.New("display: not found")

	// ErrDisplayExists is returned when creating a display with an ID that already exists.
	ErrDisplayExists = errors.New("display: already exists")

	// ErrInvalidDisplay is returned when display validation fails.
	ErrInvalidDisplay = errors.New("display: invalid")

	// ErrInvalidProtocol is returned when a protocol value is not recognised.
	ErrInvalidProtocol = errors.New("display: invalid protocol")

	// ErrInvalidDisplayType is returned when a display type is not recognised.
	ErrInvalidDisplayType = errors.New("display: invalid type")

	// ErrInvalidCapability is returned when a capability is not recognised.
	ErrInvalidCapability = errors.New("display: invalid capability")

	// ErrInvalidAddress is returned when address validation fails.
	ErrInvalidAddress = errors.New("display: invalid address")

	// ErrInvalidState is returned when state validation fails.
	ErrInvalidState = errors.New("display: invalid state")

	// ErrInvalidName is returned when a display name is empty or too long.
	ErrInvalidName = errors.New("display: invalid name")

	// ErrInvalidSlug is returned when a slug format is invalid.
	ErrInvalidSlug = errors.New("display: invalid slug")

	// ErrBridgeNotFound is returned when a referenced bridge does not exist.
	ErrBridgeNotFound = errors.New("display: bridge not found")
)
