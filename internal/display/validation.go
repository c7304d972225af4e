package display

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// Validation constants.
const (
	maxNameLength = 100
	maxSlugLength = 50
	slugPattern   = `^[a-z0-9]+(?:-[a-z0-9]+)*$`

	// Size limits for JSON fields to prevent DoS via memory exhaustion.
	maxAddressKeys    = 10   // Max keys in address map
	maxConfigKeys     = 50   // Max keys in config map
	maxStateKeys      = 100  // Max keys in state map (one per polled VCP code)
	maxCapabilities   = 50   // Max capabilities per display
	maxStringValueLen = 1024 // Max length for string values in JSON maps

	// maxRawCapabilities bounds the stored capabilities string. Monitors
	// return the string in 32-byte fragments and real reports stay well
	// under 1 KiB; 4 KiB leaves room for verbose vendor blocks.
	maxRawCapabilities = 4096
)

var slugRegex = regexp.MustCompile(slugPattern)

// Pre-computed validation sets for O(1) lookups instead of O(n) linear search.
var (
	validProtocols    map[Protocol]struct{}
	validDisplayTypes map[DisplayType]struct{}
	validCapabilities map[Capability]struct{}
	validHealthStatus map[HealthStatus]struct{}
)

func init() {
	// Build validation sets once at startup
	validProtocols = make(map[Protocol]struct{}, len(AllProtocols()))
	for _, p := range AllProtocols() {
		validProtocols[p] = struct{}{}
	}

	validDisplayTypes = make(map[DisplayType]struct{}, len(AllDisplayTypes()))
	for _, t := range AllDisplayTypes() {
		validDisplayTypes[t] = struct{}{}
	}

	validCapabilities = make(map[Capability]struct{}, len(AllCapabilities()))
	for _, c := range AllCapabilities() {
		validCapabilities[c] = struct{}{}
	}

	validHealthStatus = make(map[HealthStatus]struct{}, len(AllHealthStatuses()))
	for _, s := range AllHealthStatuses() {
		validHealthStatus[s] = struct{}{}
	}
}

// ValidateDisplay performs comprehensive validation on a display.
// Returns an error describing the first validation failure found.
// Includes size limits to prevent DoS via memory exhaustion.
func ValidateDisplay(d *Display) error {
	if d == nil {
		return ErrInvalidDisplay
	}

	// Validate name
	if err := ValidateName(d.Name); err != nil {
		return err
	}

	// Validate slug if provided (empty slug will be generated)
	if d.Slug != "" {
		if err := ValidateSlug(d.Slug); err != nil {
			return err
		}
	}

	// Validate type
	if err := ValidateDisplayType(d.Type); err != nil {
		return err
	}

	// Validate protocol
	if err := ValidateProtocol(d.Protocol); err != nil {
		return err
	}

	// Validate address is not empty and within size limits
	if len(d.Address) == 0 {
		return fmt.Errorf("%w: address is required", ErrInvalidAddress)
	}
	if len(d.Address) > maxAddressKeys {
		return fmt.Errorf("%w: address exceeds max keys (%d)", ErrInvalidAddress, maxAddressKeys)
	}
	if err := validateMapSize(d.Address, "address"); err != nil {
		return err
	}

	// Validate protocol-specific address
	if err := ValidateAddress(d.Protocol, d.Address); err != nil {
		return err
	}

	// Validate config size if provided
	if len(d.Config) > maxConfigKeys {
		return fmt.Errorf("%w: config exceeds max keys (%d)", ErrInvalidDisplay, maxConfigKeys)
	}
	if err := validateMapSize(d.Config, "config"); err != nil {
		return err
	}

	// Validate state size if provided
	if len(d.State) > maxStateKeys {
		return fmt.Errorf("%w: state exceeds max keys (%d)", ErrInvalidState, maxStateKeys)
	}
	if err := validateMapSize(d.State, "state"); err != nil {
		return err
	}

	// Validate capabilities if provided
	if len(d.Capabilities) > 0 {
		if err := ValidateCapabilities(d.Capabilities); err != nil {
			return err
		}
	}

	// Validate health status if set
	if d.HealthStatus != "" {
		if err := ValidateHealthStatus(d.HealthStatus); err != nil {
			return err
		}
	}

	if len(d.RawCapabilities) > maxRawCapabilities {
		return fmt.Errorf("%w: raw capabilities exceeds %d bytes", ErrInvalidDisplay, maxRawCapabilities)
	}

	return nil
}

// validateMapSize checks that all values in a map don't exceed size limits.
// This recursively validates nested maps and slices to prevent DoS attacks.
func validateMapSize(m map[string]any, fieldName string) error {
	return validateMapSizeRecursive(m, fieldName, 0)
}

// maxNestingDepth prevents stack overflow from deeply nested structures.
const maxNestingDepth = 10

// validateMapSizeRecursive recursively validates map values with depth tracking.
func validateMapSizeRecursive(m map[string]any, fieldName string, depth int) error {
	if depth > maxNestingDepth {
		return fmt.Errorf("%w: %s exceeds maximum nesting depth", ErrInvalidDisplay, fieldName)
	}

	for k, v := range m {
		// Check key length
		if len(k) > maxStringValueLen {
			return fmt.Errorf("%w: %s key too long", ErrInvalidDisplay, fieldName)
		}
		// Recursively validate values
		if err := validateValueSize(v, fieldName, depth); err != nil {
			return err
		}
	}
	return nil
}

// validateValueSize recursively validates a value's size.
func validateValueSize(v any, fieldName string, depth int) error {
	if v == nil {
		return nil
	}

	switch val := v.(type) {
	case string:
		if len(val) > maxStringValueLen {
			return fmt.Errorf("%w: %s string value too long", ErrInvalidDisplay, fieldName)
		}
	case map[string]any:
		if len(val) > maxConfigKeys { // Use config limit for nested maps
			return fmt.Errorf("%w: %s nested map too large", ErrInvalidDisplay, fieldName)
		}
		return validateMapSizeRecursive(val, fieldName, depth+1)
	case []any:
		if len(val) > maxCapabilities { // Reasonable limit for arrays
			return fmt.Errorf("%w: %s array too large", ErrInvalidDisplay, fieldName)
		}
		for _, elem := range val {
			if err := validateValueSize(elem, fieldName, depth+1); err != nil {
				return err
			}
		}
	}
	// Primitives (bool, int, float64, etc.) are safe
	return nil
}

// ValidateName checks if a display name is valid.
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidName)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	return nil
}

// ValidateSlug checks if a slug format is valid.
func ValidateSlug(slug string) error {
	if slug == "" {
		return fmt.Errorf("%w: slug cannot be empty", ErrInvalidSlug)
	}
	if len(slug) > maxSlugLength {
		return fmt.Errorf("%w: slug exceeds %d characters", ErrInvalidSlug, maxSlugLength)
	}
	if !slugRegex.MatchString(slug) {
		return fmt.Errorf("%w: slug must be lowercase alphanumeric with hyphens", ErrInvalidSlug)
	}
	return nil
}

// ValidateProtocol checks if a protocol is valid.
// Uses O(1) map lookup for efficiency.
func ValidateProtocol(protocol Protocol) error {
	if _, ok := validProtocols[protocol]; ok {
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidProtocol, protocol)
}

// ValidateDisplayType checks if a display type is valid.
// Uses O(1) map lookup for efficiency.
func ValidateDisplayType(displayType DisplayType) error {
	if _, ok := validDisplayTypes[displayType]; ok {
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidDisplayType, displayType)
}

// ValidateCapabilities checks if all capabilities are valid.
// Uses O(1) map lookup for each capability.
func ValidateCapabilities(caps []Capability) error {
	if len(caps) > maxCapabilities {
		return fmt.Errorf("%w: too many capabilities (max %d)", ErrInvalidCapability, maxCapabilities)
	}
	for _, cap := range caps {
		if _, ok := validCapabilities[cap]; !ok {
			return fmt.Errorf("%w: %q", ErrInvalidCapability, cap)
		}
	}
	return nil
}

// ValidateHealthStatus checks if a health status is valid.
// Uses O(1) map lookup for efficiency.
func ValidateHealthStatus(status HealthStatus) error {
	if _, ok := validHealthStatus[status]; ok {
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidState, status)
}

// ValidateAddress validates protocol-specific address configuration.
func ValidateAddress(protocol Protocol, addr Address) error {
	switch protocol {
	case ProtocolDDC:
		return validateDDCAddress(addr)
	case ProtocolUSB:
		return validateUSBAddress(addr)
	}
	// Unreachable if all Protocol constants are handled above
	return fmt.Errorf("%w: unknown protocol %q", ErrInvalidProtocol, protocol)
}

// validateDDCAddress validates a DDC/CI address configuration.
func validateDDCAddress(addr Address) error {
	// DDC requires at least a bus identifier ("i2c-4" or a device path).
	// The exact form is checked by the transport driver.
	bus, ok := addr["bus"]
	if !ok {
		return fmt.Errorf("%w: DDC address requires bus", ErrInvalidAddress)
	}
	busStr, ok := bus.(string)
	if !ok || busStr == "" {
		return fmt.Errorf("%w: DDC bus must be a non-empty string", ErrInvalidAddress)
	}
	return nil
}

// validateUSBAddress validates a USB HID address configuration.
func validateUSBAddress(addr Address) error {
	// USB monitors are addressed by their hiddev device path.
	dev, ok := addr["device"]
	if !ok {
		return fmt.Errorf("%w: USB address requires device", ErrInvalidAddress)
	}
	devStr, ok := dev.(string)
	if !ok || devStr == "" {
		return fmt.Errorf("%w: USB device must be a non-empty string", ErrInvalidAddress)
	}
	return nil
}

// GenerateSlug creates a URL-safe slug from a name.
func GenerateSlug(name string) string {
	// Convert to lowercase
	slug := strings.ToLower(name)

	// Replace spaces and underscores with hyphens
	slug = strings.ReplaceAll(slug, " ", "-")
	slug = strings.ReplaceAll(slug, "_", "-")

	// Remove any characters that aren't alphanumeric or hyphens
	var result strings.Builder
	for _, r := range slug {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			result.WriteRune(r)
		}
	}
	slug = result.String()

	// Remove leading/trailing hyphens and collapse multiple hyphens
	slug = strings.Trim(slug, "-")
	for strings.Contains(slug, "--") {
		slug = strings.ReplaceAll(slug, "--", "-")
	}

	// Truncate if too long
	if len(slug) > maxSlugLength {
		slug = slug[:maxSlugLength]
		// Don't end with a hyphen
		slug = strings.TrimRight(slug, "-")
	}

	return slug
}

// GenerateID creates a new UUID for a display.
func GenerateID() string {
	return uuid.New().String()
}
