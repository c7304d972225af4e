package preset

import "errors"

// Domain errors for the preset package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, preset.ErrPresetNotFound) {
//	    // handle not found case
//	}
var (
	// ErrPresetNotFound is returned when a preset ID does not exist.
	ErrPresetNotFound = errors.New("preset: not found")

	// ErrPresetExists is returned when creating a preset with an ID or slug that already exists.
	ErrPresetExists = errors.New("preset: already exists")

	// ErrPresetDisabled is returned when attempting to apply a disabled preset.
	ErrPresetDisabled = errors.New("preset: disabled")

	// ErrInvalidPreset is returned when preset validation fails.
	ErrInvalidPreset = errors.New("preset: invalid")

	// ErrInvalidStep is returned when a preset step is invalid.
	ErrInvalidStep = errors.New("preset: invalid step")

	// ErrInvalidName is returned when a preset name is empty or too long.
	ErrInvalidName = errors.New("preset: invalid name")

	// ErrInvalidSlug is returned when a slug format is invalid.
	ErrInvalidSlug = errors.New("preset: invalid slug")

	// ErrNoSteps is returned when a preset has no steps defined.
	ErrNoSteps = errors.New("preset: no steps")

	// ErrNoDisplay is returned when an apply names no display and the
	// preset is not bound to one.
	ErrNoDisplay = errors.New("preset: no target display")

	// ErrApplicationNotFound is returned when an application ID does not exist.
	ErrApplicationNotFound = errors.New("preset: application not found")

	// ErrMQTTUnavailable is returned when MQTT is not connected.
	ErrMQTTUnavailable = errors.New("preset: MQTT unavailable")
)
