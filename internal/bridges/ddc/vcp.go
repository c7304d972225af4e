package ddc

import (
	"fmt"
	"strconv"
	"strings"
)

// VCPCode identifies a controllable monitor parameter as defined by MCCS.
type VCPCode byte

// Common VCP codes. The MCCS specification defines the full code space;
// these are the ones the bridge knows by name.
const (
	// VCPNewControlValue signals a control changed at the monitor's own OSD.
	VCPNewControlValue VCPCode = 0x02

	// VCPRestoreFactory resets all settings to factory defaults (write-only).
	VCPRestoreFactory VCPCode = 0x04

	// VCPRestoreLuminance resets brightness and contrast (write-only).
	VCPRestoreLuminance VCPCode = 0x05

	// VCPRestoreColour resets colour settings (write-only).
	VCPRestoreColour VCPCode = 0x08

	// VCPBrightness is the backlight luminance level.
	VCPBrightness VCPCode = 0x10

	// VCPContrast is the contrast ratio.
	VCPContrast VCPCode = 0x12

	// VCPColourPreset selects a colour temperature preset.
	VCPColourPreset VCPCode = 0x14

	// VCPRedGain, VCPGreenGain, VCPBlueGain drive the video gain per channel.
	VCPRedGain   VCPCode = 0x16
	VCPGreenGain VCPCode = 0x18
	VCPBlueGain  VCPCode = 0x1A

	// VCPInputSource selects the active video input.
	VCPInputSource VCPCode = 0x60

	// VCPAudioVolume is the speaker volume.
	VCPAudioVolume VCPCode = 0x62

	// VCPAudioMute mutes the speakers (1 = mute, 2 = unmute).
	VCPAudioMute VCPCode = 0x8D

	// VCPOSDLanguage selects the on-screen display language.
	VCPOSDLanguage VCPCode = 0xCC

	// VCPPowerMode is the DPM/DPMS power state (01 on, 04 standby, 05 off).
	VCPPowerMode VCPCode = 0xD6

	// VCPVersion reports the MCCS version implemented by the display.
	VCPVersion VCPCode = 0xDF
)

// VCPDef describes a known VCP code: its state key, access flags, and the
// command aliases that normalise to it. This is the single authoritative
// table for recognised feature names across the pipeline: bridge state
// mapping, command handlers, and the API surface.
type VCPDef struct {
	Code     VCPCode  // VCP code (e.g. 0x10)
	Name     string   // Canonical name (e.g. "brightness")
	StateKey string   // State object key (e.g. "brightness")
	Flags    []string // Access flags: read, write
	Aliases  []string // Accepted aliases that normalise to this name
}

// KnownVCPCodes is the table of VCP codes the bridge understands by name.
// Codes outside this table are still controllable through their hex code;
// they simply render with a generic state key.
var KnownVCPCodes = []VCPDef{
	{Code: VCPNewControlValue, Name: "new_control_value", StateKey: "new_control_value", Flags: []string{"read"}, Aliases: []string{}},
	{Code: VCPRestoreFactory, Name: "restore_factory", StateKey: "restore_factory", Flags: []string{"write"}, Aliases: []string{"factory_reset", "reset"}},
	{Code: VCPRestoreLuminance, Name: "restore_luminance", StateKey: "restore_luminance", Flags: []string{"write"}, Aliases: []string{}},
	{Code: VCPRestoreColour, Name: "restore_colour", StateKey: "restore_colour", Flags: []string{"write"}, Aliases: []string{"restore_color"}},
	{Code: VCPBrightness, Name: "brightness", StateKey: "brightness", Flags: []string{"read", "write"}, Aliases: []string{"luminance", "backlight"}},
	{Code: VCPContrast, Name: "contrast", StateKey: "contrast", Flags: []string{"read", "write"}, Aliases: []string{}},
	{Code: VCPColourPreset, Name: "colour_preset", StateKey: "colour_preset", Flags: []string{"read", "write"}, Aliases: []string{"color_preset", "colour_temperature_preset"}},
	{Code: VCPRedGain, Name: "red_gain", StateKey: "red_gain", Flags: []string{"read", "write"}, Aliases: []string{}},
	{Code: VCPGreenGain, Name: "green_gain", StateKey: "green_gain", Flags: []string{"read", "write"}, Aliases: []string{}},
	{Code: VCPBlueGain, Name: "blue_gain", StateKey: "blue_gain", Flags: []string{"read", "write"}, Aliases: []string{}},
	{Code: VCPInputSource, Name: "input_source", StateKey: "input", Flags: []string{"read", "write"}, Aliases: []string{"input", "source"}},
	{Code: VCPAudioVolume, Name: "volume", StateKey: "volume", Flags: []string{"read", "write"}, Aliases: []string{"audio_volume", "speaker_volume"}},
	{Code: VCPAudioMute, Name: "mute", StateKey: "mute", Flags: []string{"read", "write"}, Aliases: []string{"audio_mute"}},
	{Code: VCPOSDLanguage, Name: "osd_language", StateKey: "osd_language", Flags: []string{"read", "write"}, Aliases: []string{"language"}},
	{Code: VCPPowerMode, Name: "power_mode", StateKey: "power", Flags: []string{"read", "write"}, Aliases: []string{"power", "dpms"}},
	{Code: VCPVersion, Name: "vcp_version", StateKey: "vcp_version", Flags: []string{"read"}, Aliases: []string{"mccs_version"}},
}

// Lookup maps built once at init.
var (
	vcpByCode map[string]*VCPDef // code text ("10") → definition
	vcpByName map[string]*VCPDef // canonical name and aliases → definition
)

func init() {
	vcpByCode = make(map[string]*VCPDef, len(KnownVCPCodes))
	vcpByName = make(map[string]*VCPDef, len(KnownVCPCodes)*2)

	for i := range KnownVCPCodes {
		def := &KnownVCPCodes[i]
		vcpByCode[FormatCode(byte(def.Code))] = def
		vcpByName[def.Name] = def

		for _, alias := range def.Aliases {
			vcpByName[alias] = def
		}
	}
}

// NormalizeCode canonicalises a VCP code string: surrounding whitespace is
// trimmed and hex digits are uppercased, matching the form used as Features
// map keys.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// FormatCode renders a VCP code byte as two-digit uppercase hex ("10", "D6").
func FormatCode(code byte) string {
	return fmt.Sprintf("%02X", code)
}

// FormatValue renders a feature value the way capability reports write them:
// two-digit uppercase hex, widening for values above 0xFF.
func FormatValue(value uint16) string {
	return fmt.Sprintf("%02X", value)
}

// CodeToByte parses a VCP code string ("10", "d6") into its byte value.
//
// Returns:
//   - byte: The code value
//   - error: ErrInvalidCode if the text is not one or two hex digits
func CodeToByte(code string) (byte, error) {
	norm := NormalizeCode(code)
	if norm == "" || len(norm) > 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidCode, code)
	}
	v, err := strconv.ParseUint(norm, 16, 8)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidCode, code)
	}
	return byte(v), nil
}

// LookupVCP returns the definition for a VCP code string, or nil when the
// code is not in the known table.
func LookupVCP(code string) *VCPDef {
	return vcpByCode[NormalizeCode(code)]
}

// CodeForCommand resolves a feature name or alias ("brightness", "input")
// to its VCP code text. Returns the code and whether the name was known.
func CodeForCommand(name string) (string, bool) {
	def, ok := vcpByName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return "", false
	}
	return FormatCode(byte(def.Code)), true
}

// StateKeyForCode returns the state key used for a VCP code in display
// state maps. Unknown codes fall back to "vcp_<code>" so every readable
// feature still lands in state under a stable key.
func StateKeyForCode(code string) string {
	if def := LookupVCP(code); def != nil {
		return def.StateKey
	}
	return "vcp_" + NormalizeCode(code)
}

// NameForCode returns the canonical feature name for a VCP code, falling
// back to the code text itself for unknown codes.
func NameForCode(code string) string {
	if def := LookupVCP(code); def != nil {
		return def.Name
	}
	return NormalizeCode(code)
}

// IsWritable reports whether the definition carries the write flag.
// The display's capability report remains the real gate for writes; this
// only reflects what MCCS says about the code.
func (d *VCPDef) IsWritable() bool {
	for _, f := range d.Flags {
		if f == "write" {
			return true
		}
	}
	return false
}

// IsReadable reports whether the known-code table marks the code readable.
func (d *VCPDef) IsReadable() bool {
	for _, f := range d.Flags {
		if f == "read" {
			return true
		}
	}
	return false
}
