package ddc

import (
	"errors"
	"testing"
)

func TestCodeForCommand_CanonicalNames(t *testing.T) {
	// Every canonical name should resolve to its own code.
	for _, def := range KnownVCPCodes {
		code, known := CodeForCommand(def.Name)
		if !known {
			t.Errorf("CodeForCommand(%q) not recognised", def.Name)
		}
		if code != FormatCode(byte(def.Code)) {
			t.Errorf("CodeForCommand(%q) = %q, want %q", def.Name, code, FormatCode(byte(def.Code)))
		}
	}
}

func TestCodeForCommand_Aliases(t *testing.T) {
	tests := []struct {
		alias    string
		wantCode string
	}{
		{"luminance", "10"},
		{"backlight", "10"},
		{"input", "60"},
		{"source", "60"},
		{"power", "D6"},
		{"dpms", "D6"},
		{"audio_volume", "62"},
		{"speaker_volume", "62"},
		{"audio_mute", "8D"},
		{"language", "CC"},
		{"factory_reset", "04"},
		{"reset", "04"},
		{"restore_color", "08"},
		{"color_preset", "14"},
		{"mccs_version", "DF"},
	}

	for _, tt := range tests {
		code, known := CodeForCommand(tt.alias)
		if !known {
			t.Errorf("CodeForCommand(%q) not recognised", tt.alias)
			continue
		}
		if code != tt.wantCode {
			t.Errorf("CodeForCommand(%q) = %q, want %q", tt.alias, code, tt.wantCode)
		}
	}
}

func TestCodeForCommand_Unknown(t *testing.T) {
	if _, known := CodeForCommand("totally_unknown_feature"); known {
		t.Error("CodeForCommand(unknown) should return known=false")
	}
}

func TestNormalizeCode(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"10", "10"},
		{"d6", "D6"},
		{" a0 ", "A0"},
		{"fF", "FF"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := NormalizeCode(tt.in); got != tt.want {
			t.Errorf("NormalizeCode(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatCode(t *testing.T) {
	tests := []struct {
		in   byte
		want string
	}{
		{0x10, "10"},
		{0x02, "02"},
		{0xD6, "D6"},
		{0x00, "00"},
		{0xFF, "FF"},
	}

	for _, tt := range tests {
		if got := FormatCode(tt.in); got != tt.want {
			t.Errorf("FormatCode(0x%02X) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCodeToByte(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    byte
		wantErr bool
	}{
		{"two digit upper", "D6", 0xD6, false},
		{"two digit lower", "d6", 0xD6, false},
		{"single digit", "5", 0x05, false},
		{"with whitespace", " 10 ", 0x10, false},
		{"empty", "", 0, true},
		{"too long", "123", 0, true},
		{"not hex", "G5", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CodeToByte(tt.in)

			if tt.wantErr {
				if err == nil {
					t.Fatalf("CodeToByte(%q) expected error, got nil", tt.in)
				}
				if !errors.Is(err, ErrInvalidCode) {
					t.Errorf("error = %v, want ErrInvalidCode", err)
				}
				return
			}

			if err != nil {
				t.Fatalf("CodeToByte(%q) unexpected error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("CodeToByte(%q) = 0x%02X, want 0x%02X", tt.in, got, tt.want)
			}
		})
	}
}

func TestStateKeyForCode(t *testing.T) {
	tests := []struct {
		code string
		want string
	}{
		{"10", "brightness"},
		{"12", "contrast"},
		{"60", "input"},
		{"d6", "power"},
		{"62", "volume"},
		{"E3", "vcp_E3"}, // unknown code falls back to generic key
	}

	for _, tt := range tests {
		if got := StateKeyForCode(tt.code); got != tt.want {
			t.Errorf("StateKeyForCode(%q) = %q, want %q", tt.code, got, tt.want)
		}
	}
}

func TestNameForCode(t *testing.T) {
	tests := []struct {
		code string
		want string
	}{
		{"10", "brightness"},
		{"60", "input_source"},
		{"D6", "power_mode"},
		{"e3", "E3"},
	}

	for _, tt := range tests {
		if got := NameForCode(tt.code); got != tt.want {
			t.Errorf("NameForCode(%q) = %q, want %q", tt.code, got, tt.want)
		}
	}
}

func TestVCPDefFlags(t *testing.T) {
	brightness := LookupVCP("10")
	if brightness == nil {
		t.Fatal("LookupVCP(10) returned nil")
	}
	if !brightness.IsReadable() || !brightness.IsWritable() {
		t.Error("brightness should be readable and writable")
	}

	restore := LookupVCP("04")
	if restore == nil {
		t.Fatal("LookupVCP(04) returned nil")
	}
	if restore.IsReadable() {
		t.Error("restore_factory should not be readable")
	}
	if !restore.IsWritable() {
		t.Error("restore_factory should be writable")
	}

	version := LookupVCP("DF")
	if version == nil {
		t.Fatal("LookupVCP(DF) returned nil")
	}
	if version.IsWritable() {
		t.Error("vcp_version should not be writable")
	}

	if LookupVCP("E3") != nil {
		t.Error("LookupVCP(E3) should return nil for unknown code")
	}
}
