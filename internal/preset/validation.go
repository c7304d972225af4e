package preset

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/openddc/ddc-core/internal/bridges/ddc"
)

// Validation constants.
const (
	maxNameLength     = 100
	maxSlugLength     = 50
	maxSteps          = 32
	maxStepValue      = 0xFFFF
	maxDelayMS        = 10000 // 10 seconds; input switches settle well within this
	maxDescriptionLen = 500
	slugPattern       = `^[a-z0-9]+(?:-[a-z0-9]+)*$`
)

var slugRegex = regexp.MustCompile(slugPattern)

// ValidatePreset performs comprehensive validation on a preset.
// Returns an error describing the first validation failure found.
func ValidatePreset(p *Preset) error {
	if p == nil {
		return ErrInvalidPreset
	}

	// Validate name
	if err := ValidateName(p.Name); err != nil {
		return err
	}

	// Validate slug if provided (empty slug will be generated)
	if p.Slug != "" {
		if err := ValidateSlug(p.Slug); err != nil {
			return err
		}
	}

	// Validate description length
	if p.Description != nil && len(*p.Description) > maxDescriptionLen {
		return fmt.Errorf("%w: description exceeds %d characters", ErrInvalidPreset, maxDescriptionLen)
	}

	// Validate steps
	if len(p.Steps) == 0 {
		return ErrNoSteps
	}
	if len(p.Steps) > maxSteps {
		return fmt.Errorf("%w: exceeds maximum of %d steps", ErrInvalidStep, maxSteps)
	}

	for i, step := range p.Steps {
		if err := ValidateStep(step); err != nil {
			return fmt.Errorf("step[%d]: %w", i, err)
		}
	}

	return nil
}

// ValidateName checks if a preset name is valid.
func ValidateName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
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
		return fmt.Errorf("%w: must be lowercase alphanumeric with hyphens", ErrInvalidSlug)
	}
	return nil
}

// ValidateStep checks if a preset step is valid.
//
// The code must parse as a VCP code. Codes with a known MCCS definition
// must carry the write flag; unknown codes pass, since vendor-specific
// features are legitimate targets. Whether the display actually reports
// the code is checked at apply time against its capability report.
func ValidateStep(step PresetStep) error {
	if step.Code == "" {
		return fmt.Errorf("%w: code is required", ErrInvalidStep)
	}
	if _, err := ddc.CodeToByte(step.Code); err != nil {
		return fmt.Errorf("%w: %q is not a VCP code", ErrInvalidStep, step.Code)
	}
	if def := ddc.LookupVCP(step.Code); def != nil && !def.IsWritable() {
		return fmt.Errorf("%w: code %s (%s) is read-only", ErrInvalidStep, ddc.NormalizeCode(step.Code), def.Name)
	}
	if step.Value < 0 || step.Value > maxStepValue {
		return fmt.Errorf("%w: value must be 0-%d", ErrInvalidStep, maxStepValue)
	}
	if step.DelayMS < 0 || step.DelayMS > maxDelayMS {
		return fmt.Errorf("%w: delay_ms must be 0-%d", ErrInvalidStep, maxDelayMS)
	}
	return nil
}

// CanonicalizeSteps rewrites step codes into the canonical two-digit
// uppercase hex form ("e" becomes "0E") so repository contents and
// capability lookups agree. Codes that do not parse are left as written
// for validation to report.
func CanonicalizeSteps(steps []PresetStep) {
	for i := range steps {
		if b, err := ddc.CodeToByte(steps[i].Code); err == nil {
			steps[i].Code = ddc.FormatCode(b)
		}
	}
}

// GenerateSlug creates a URL-safe slug from a name.
// It lowercases, replaces spaces/underscores with hyphens, removes
// non-alphanumeric characters, and trims to maxSlugLength.
func GenerateSlug(name string) string {
	slug := strings.ToLower(name)
	slug = strings.ReplaceAll(slug, " ", "-")
	slug = strings.ReplaceAll(slug, "_", "-")

	var result strings.Builder
	for _, r := range slug {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			result.WriteRune(r)
		}
	}
	slug = result.String()

	// Clean up multiple/leading/trailing hyphens
	slug = strings.Trim(slug, "-")
	for strings.Contains(slug, "--") {
		slug = strings.ReplaceAll(slug, "--", "-")
	}

	// Truncate to max length
	if len(slug) > maxSlugLength {
		slug = slug[:maxSlugLength]
		slug = strings.TrimRight(slug, "-")
	}

	return slug
}

// GenerateID creates a new UUID for a preset or application.
func GenerateID() string {
	return uuid.New().String()
}
