package display

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{
			name:    "valid name",
			input:   "Studio Main Monitor",
			wantErr: nil,
		},
		{
			name:    "valid name with numbers",
			input:   "Monitor 1",
			wantErr: nil,
		},
		{
			name:    "valid name with special characters",
			input:   "Edit Bay (Left) Monitor",
			wantErr: nil,
		},
		{
			name:    "empty name",
			input:   "",
			wantErr: ErrInvalidName,
		},
		{
			name:    "whitespace only",
			input:   "   ",
			wantErr: ErrInvalidName,
		},
		{
			name:    "name at max length",
			input:   strings.Repeat("a", maxNameLength),
			wantErr: nil,
		},
		{
			name:    "name exceeds max length",
			input:   strings.Repeat("a", maxNameLength+1),
			wantErr: ErrInvalidName,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.input)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateName(%q) = %v, want nil", tt.input, err)
				}
			} else {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("ValidateName(%q) = %v, want %v", tt.input, err, tt.wantErr)
				}
			}
		})
	}
}

func TestValidateSlug(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{
			name:    "valid lowercase slug",
			input:   "studio-main-monitor",
			wantErr: nil,
		},
		{
			name:    "valid slug with numbers",
			input:   "monitor-1",
			wantErr: nil,
		},
		{
			name:    "valid single word",
			input:   "studio",
			wantErr: nil,
		},
		{
			name:    "valid numbers only",
			input:   "123",
			wantErr: nil,
		},
		{
			name:    "empty slug",
			input:   "",
			wantErr: ErrInvalidSlug,
		},
		{
			name:    "uppercase letters",
			input:   "Studio-Monitor",
			wantErr: ErrInvalidSlug,
		},
		{
			name:    "spaces",
			input:   "studio monitor",
			wantErr: ErrInvalidSlug,
		},
		{
			name:    "underscores",
			input:   "studio_monitor",
			wantErr: ErrInvalidSlug,
		},
		{
			name:    "leading hyphen",
			input:   "-studio-monitor",
			wantErr: ErrInvalidSlug,
		},
		{
			name:    "trailing hyphen",
			input:   "studio-monitor-",
			wantErr: ErrInvalidSlug,
		},
		{
			name:    "consecutive hyphens",
			input:   "studio--monitor",
			wantErr: ErrInvalidSlug,
		},
		{
			name:    "special characters",
			input:   "studio@monitor",
			wantErr: ErrInvalidSlug,
		},
		{
			name:    "slug at max length",
			input:   strings.Repeat("a", maxSlugLength),
			wantErr: nil,
		},
		{
			name:    "slug exceeds max length",
			input:   strings.Repeat("a", maxSlugLength+1),
			wantErr: ErrInvalidSlug,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSlug(tt.input)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateSlug(%q) = %v, want nil", tt.input, err)
				}
			} else {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("ValidateSlug(%q) = %v, want %v", tt.input, err, tt.wantErr)
				}
			}
		})
	}
}

func TestValidateProtocol(t *testing.T) {
	tests := []struct {
		name    string
		input   Protocol
		wantErr error
	}{
		{name: "ddc", input: ProtocolDDC, wantErr: nil},
		{name: "usb", input: ProtocolUSB, wantErr: nil},
		{name: "invalid protocol", input: Protocol("invalid"), wantErr: ErrInvalidProtocol},
		{name: "empty protocol", input: Protocol(""), wantErr: ErrInvalidProtocol},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateProtocol(tt.input)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateProtocol(%q) = %v, want nil", tt.input, err)
				}
			} else {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("ValidateProtocol(%q) = %v, want %v", tt.input, err, tt.wantErr)
				}
			}
		})
	}
}

func TestValidateDisplayType(t *testing.T) {
	tests := []struct {
		name    string
		input   DisplayType
		wantErr error
	}{
		{name: "lcd", input: DisplayTypeLCD, wantErr: nil},
		{name: "led", input: DisplayTypeLED, wantErr: nil},
		{name: "oled", input: DisplayTypeOLED, wantErr: nil},
		{name: "crt", input: DisplayTypeCRT, wantErr: nil},
		{name: "projector", input: DisplayTypeProjector, wantErr: nil},
		{name: "unknown", input: DisplayTypeUnknown, wantErr: nil},
		{name: "invalid type", input: DisplayType("plasma"), wantErr: ErrInvalidDisplayType},
		{name: "empty type", input: DisplayType(""), wantErr: ErrInvalidDisplayType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDisplayType(tt.input)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateDisplayType(%q) = %v, want nil", tt.input, err)
				}
			} else {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("ValidateDisplayType(%q) = %v, want %v", tt.input, err, tt.wantErr)
				}
			}
		})
	}
}

func TestValidateCapabilities(t *testing.T) {
	tests := []struct {
		name    string
		input   []Capability
		wantErr error
	}{
		{
			name:    "single valid capability",
			input:   []Capability{CapBrightness},
			wantErr: nil,
		},
		{
			name:    "multiple valid capabilities",
			input:   []Capability{CapBrightness, CapContrast, CapInputSelect},
			wantErr: nil,
		},
		{
			name:    "all capabilities",
			input:   AllCapabilities(),
			wantErr: nil,
		},
		{
			name:    "empty capabilities",
			input:   []Capability{},
			wantErr: nil,
		},
		{
			name:    "nil capabilities",
			input:   nil,
			wantErr: nil,
		},
		{
			name:    "one invalid capability",
			input:   []Capability{Capability("invalid")},
			wantErr: ErrInvalidCapability,
		},
		{
			name:    "valid and invalid mixed",
			input:   []Capability{CapBrightness, Capability("invalid"), CapContrast},
			wantErr: ErrInvalidCapability,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCapabilities(tt.input)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateCapabilities(%v) = %v, want nil", tt.input, err)
				}
			} else {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("ValidateCapabilities(%v) = %v, want %v", tt.input, err, tt.wantErr)
				}
			}
		})
	}
}

func TestValidateHealthStatus(t *testing.T) {
	tests := []struct {
		name    string
		input   HealthStatus
		wantErr error
	}{
		{name: "online", input: HealthStatusOnline, wantErr: nil},
		{name: "offline", input: HealthStatusOffline, wantErr: nil},
		{name: "degraded", input: HealthStatusDegraded, wantErr: nil},
		{name: "unknown", input: HealthStatusUnknown, wantErr: nil},
		{name: "invalid status", input: HealthStatus("invalid"), wantErr: ErrInvalidState},
		{name: "empty status", input: HealthStatus(""), wantErr: ErrInvalidState},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateHealthStatus(tt.input)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateHealthStatus(%q) = %v, want nil", tt.input, err)
				}
			} else {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("ValidateHealthStatus(%q) = %v, want %v", tt.input, err, tt.wantErr)
				}
			}
		})
	}
}

func TestValidateAddress(t *testing.T) {
	tests := []struct {
		name     string
		protocol Protocol
		address  Address
		wantErr  error
	}{
		// DDC addresses
		{
			name:     "valid DDC address",
			protocol: ProtocolDDC,
			address:  Address{"bus": "i2c-4"},
			wantErr:  nil,
		},
		{
			name:     "valid DDC address with extras",
			protocol: ProtocolDDC,
			address:  Address{"bus": "i2c-7", "edid_hash": "a1b2c3"},
			wantErr:  nil,
		},
		{
			name:     "DDC missing bus",
			protocol: ProtocolDDC,
			address:  Address{"edid_hash": "a1b2c3"},
			wantErr:  ErrInvalidAddress,
		},
		{
			name:     "DDC bus not a string",
			protocol: ProtocolDDC,
			address:  Address{"bus": 4},
			wantErr:  ErrInvalidAddress,
		},
		{
			name:     "DDC empty bus",
			protocol: ProtocolDDC,
			address:  Address{"bus": ""},
			wantErr:  ErrInvalidAddress,
		},

		// USB addresses
		{
			name:     "valid USB address",
			protocol: ProtocolUSB,
			address:  Address{"device": "/dev/hidraw2"},
			wantErr:  nil,
		},
		{
			name:     "USB missing device",
			protocol: ProtocolUSB,
			address:  Address{"vendor_id": "0x05ac"},
			wantErr:  ErrInvalidAddress,
		},
		{
			name:     "USB empty device",
			protocol: ProtocolUSB,
			address:  Address{"device": ""},
			wantErr:  ErrInvalidAddress,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAddress(tt.protocol, tt.address)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateAddress(%q, %v) = %v, want nil", tt.protocol, tt.address, err)
				}
			} else {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("ValidateAddress(%q, %v) = %v, want %v", tt.protocol, tt.address, err, tt.wantErr)
				}
			}
		})
	}
}

func TestValidateDisplay(t *testing.T) {
	validDisplay := func() *Display {
		return &Display{
			Name:         "Studio Main Monitor",
			Slug:         "studio-main-monitor",
			Type:         DisplayTypeLCD,
			Protocol:     ProtocolDDC,
			Address:      Address{"bus": "i2c-4"},
			Capabilities: []Capability{CapBrightness, CapContrast},
			HealthStatus: HealthStatusOnline,
		}
	}

	tests := []struct {
		name    string
		modify  func(*Display)
		wantErr error
	}{
		{
			name:    "valid display",
			modify:  func(d *Display) {},
			wantErr: nil,
		},
		{
			name:    "nil display",
			modify:  nil,
			wantErr: ErrInvalidDisplay,
		},
		{
			name:    "empty name",
			modify:  func(d *Display) { d.Name = "" },
			wantErr: ErrInvalidName,
		},
		{
			name:    "invalid slug",
			modify:  func(d *Display) { d.Slug = "Invalid Slug" },
			wantErr: ErrInvalidSlug,
		},
		{
			name:    "empty slug allowed",
			modify:  func(d *Display) { d.Slug = "" },
			wantErr: nil, // Empty slug is allowed (will be generated)
		},
		{
			name:    "invalid protocol",
			modify:  func(d *Display) { d.Protocol = Protocol("invalid") },
			wantErr: ErrInvalidProtocol,
		},
		{
			name:    "invalid display type",
			modify:  func(d *Display) { d.Type = DisplayType("invalid") },
			wantErr: ErrInvalidDisplayType,
		},
		{
			name:    "nil address",
			modify:  func(d *Display) { d.Address = nil },
			wantErr: ErrInvalidAddress,
		},
		{
			name:    "empty address",
			modify:  func(d *Display) { d.Address = Address{} },
			wantErr: ErrInvalidAddress,
		},
		{
			name:    "invalid address for protocol",
			modify:  func(d *Display) { d.Address = Address{"invalid": "value"} },
			wantErr: ErrInvalidAddress,
		},
		{
			name:    "invalid capability",
			modify:  func(d *Display) { d.Capabilities = []Capability{Capability("invalid")} },
			wantErr: ErrInvalidCapability,
		},
		{
			name:    "empty capabilities allowed",
			modify:  func(d *Display) { d.Capabilities = nil },
			wantErr: nil,
		},
		{
			name:    "invalid health status",
			modify:  func(d *Display) { d.HealthStatus = HealthStatus("invalid") },
			wantErr: ErrInvalidState,
		},
		{
			name:    "empty health status allowed",
			modify:  func(d *Display) { d.HealthStatus = "" },
			wantErr: nil, // Empty health status is allowed
		},
		{
			name: "state with too many keys",
			modify: func(d *Display) {
				d.State = State{}
				for i := 0; i < maxStateKeys+1; i++ {
					d.State[fmt.Sprintf("key-%d", i)] = i
				}
			},
			wantErr: ErrInvalidState,
		},
		{
			name: "oversized string value in config",
			modify: func(d *Display) {
				d.Config = Config{"notes": strings.Repeat("x", maxStringValueLen+1)}
			},
			wantErr: ErrInvalidDisplay,
		},
		{
			name: "raw capabilities too long",
			modify: func(d *Display) {
				d.RawCapabilities = strings.Repeat("(", maxRawCapabilities+1)
			},
			wantErr: ErrInvalidDisplay,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d *Display
			if tt.modify != nil {
				d = validDisplay()
				tt.modify(d)
			}

			err := ValidateDisplay(d)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateDisplay() = %v, want nil", err)
				}
			} else {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("ValidateDisplay() = %v, want %v", err, tt.wantErr)
				}
			}
		})
	}
}

func TestGenerateSlug(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "simple name",
			input: "Edit Bay",
			want:  "edit-bay",
		},
		{
			name:  "already lowercase",
			input: "studio",
			want:  "studio",
		},
		{
			name:  "with numbers",
			input: "Monitor 1",
			want:  "monitor-1",
		},
		{
			name:  "underscores to hyphens",
			input: "grading_suite",
			want:  "grading-suite",
		},
		{
			name:  "special characters removed",
			input: "Edit Bay (Left) Monitor!",
			want:  "edit-bay-left-monitor",
		},
		{
			name:  "multiple spaces",
			input: "Edit   Bay",
			want:  "edit-bay",
		},
		{
			name:  "leading/trailing spaces",
			input: "  Studio  ",
			want:  "studio",
		},
		{
			name:  "mixed case",
			input: "StUdIo MaIn MoNiToR",
			want:  "studio-main-monitor",
		},
		{
			name:  "truncates long names",
			input: strings.Repeat("a", 100),
			want:  strings.Repeat("a", maxSlugLength),
		},
		{
			name:  "truncation doesn't end with hyphen",
			input: strings.Repeat("ab-", 50),
			want:  strings.TrimRight(strings.Repeat("ab-", 50)[:maxSlugLength], "-"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GenerateSlug(tt.input)
			if got != tt.want {
				t.Errorf("GenerateSlug(%q) = %q, want %q", tt.input, got, tt.want)
			}
			// Validate the generated slug is valid
			if got != "" {
				if err := ValidateSlug(got); err != nil {
					t.Errorf("GenerateSlug(%q) produced invalid slug %q: %v", tt.input, got, err)
				}
			}
		})
	}
}

func TestGenerateID(t *testing.T) {
	// Test that GenerateID produces valid UUIDs
	id1 := GenerateID()
	id2 := GenerateID()

	// Check format (should be 36 chars: 8-4-4-4-12)
	if len(id1) != 36 {
		t.Errorf("GenerateID() = %q, want 36 character UUID", id1)
	}

	// Check uniqueness
	if id1 == id2 {
		t.Errorf("GenerateID() produced duplicate IDs: %q", id1)
	}

	// Check UUID format
	parts := strings.Split(id1, "-")
	if len(parts) != 5 {
		t.Errorf("GenerateID() = %q, expected 5 hyphen-separated parts", id1)
	}
	expectedLengths := []int{8, 4, 4, 4, 12}
	for i, part := range parts {
		if len(part) != expectedLengths[i] {
			t.Errorf("GenerateID() part %d has length %d, want %d", i, len(part), expectedLengths[i])
		}
	}
}

func TestParseDisplayType(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  DisplayType
	}{
		{name: "lowercase lcd", input: "lcd", want: DisplayTypeLCD},
		{name: "uppercase LCD", input: "LCD", want: DisplayTypeLCD},
		{name: "padded oled", input: " oled ", want: DisplayTypeOLED},
		{name: "projector", input: "projector", want: DisplayTypeProjector},
		{name: "unrecognised value", input: "plasma", want: DisplayTypeUnknown},
		{name: "empty value", input: "", want: DisplayTypeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseDisplayType(tt.input); got != tt.want {
				t.Errorf("ParseDisplayType(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestCapabilitiesForCodes(t *testing.T) {
	tests := []struct {
		name  string
		codes []string
		want  []Capability
	}{
		{
			name:  "brightness and contrast",
			codes: []string{"10", "12"},
			want:  []Capability{CapBrightness, CapContrast},
		},
		{
			name:  "gain codes collapse to one capability",
			codes: []string{"16", "18", "1A"},
			want:  []Capability{CapColourGain},
		},
		{
			name:  "unknown codes ignored",
			codes: []string{"E0", "10", "FE"},
			want:  []Capability{CapBrightness},
		},
		{
			name:  "lowercase and padding normalised",
			codes: []string{"d6", "4"},
			want:  []Capability{CapFactoryReset, CapPowerControl},
		},
		{
			name:  "result sorted regardless of input order",
			codes: []string{"60", "10"},
			want:  []Capability{CapBrightness, CapInputSelect},
		},
		{
			name:  "empty input",
			codes: nil,
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CapabilitiesForCodes(tt.codes)
			if len(got) != len(tt.want) {
				t.Fatalf("CapabilitiesForCodes(%v) = %v, want %v", tt.codes, got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("CapabilitiesForCodes(%v)[%d] = %q, want %q", tt.codes, i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestBusAddress(t *testing.T) {
	tests := []struct {
		name string
		addr Address
		want string
	}{
		{name: "bus present", addr: Address{"bus": "i2c-4"}, want: "i2c-4"},
		{name: "bus missing", addr: Address{"device": "/dev/hidraw0"}, want: ""},
		{name: "bus not a string", addr: Address{"bus": 4}, want: ""},
		{name: "nil address", addr: nil, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BusAddress(tt.addr); got != tt.want {
				t.Errorf("BusAddress(%v) = %q, want %q", tt.addr, got, tt.want)
			}
		})
	}
}

func TestAllProtocols(t *testing.T) {
	protocols := AllProtocols()

	if len(protocols) != 2 {
		t.Errorf("AllProtocols() returned %d protocols, want 2", len(protocols))
	}

	// Verify each protocol validates
	for _, p := range protocols {
		if err := ValidateProtocol(p); err != nil {
			t.Errorf("Protocol %q from AllProtocols() failed validation: %v", p, err)
		}
	}
}

func TestAllDisplayTypes(t *testing.T) {
	types := AllDisplayTypes()

	if len(types) != 6 {
		t.Errorf("AllDisplayTypes() returned %d types, want 6", len(types))
	}

	// Verify each type validates
	for _, dt := range types {
		if err := ValidateDisplayType(dt); err != nil {
			t.Errorf("DisplayType %q from AllDisplayTypes() failed validation: %v", dt, err)
		}
	}
}

func TestAllCapabilities(t *testing.T) {
	caps := AllCapabilities()

	if len(caps) != 11 {
		t.Errorf("AllCapabilities() returned %d capabilities, want 11", len(caps))
	}

	// Verify each capability validates
	if err := ValidateCapabilities(caps); err != nil {
		t.Errorf("AllCapabilities() contains invalid capability: %v", err)
	}
}

func TestAllHealthStatuses(t *testing.T) {
	statuses := AllHealthStatuses()

	expected := []HealthStatus{
		HealthStatusOnline, HealthStatusOffline, HealthStatusDegraded, HealthStatusUnknown,
	}

	if len(statuses) != len(expected) {
		t.Errorf("AllHealthStatuses() returned %d statuses, want %d", len(statuses), len(expected))
	}

	// Verify each status validates
	for _, s := range statuses {
		if err := ValidateHealthStatus(s); err != nil {
			t.Errorf("HealthStatus %q from AllHealthStatuses() failed validation: %v", s, err)
		}
	}
}
