package ddc

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// DefaultSimCapabilities is the capabilities string reported by simulated
// displays that do not configure their own. It exercises every report
// section: protocol, type, model, vendor commands, a VCP list mixing
// continuous and discrete features, the WHQL flag and the MCCS version.
const DefaultSimCapabilities = "(prot(monitor)type(lcd)model(SIM27Q)" +
	"cmds(01 02 03 07 0C E3 F3)" +
	"vcp(02 04 05 08 10 12 14(01 05 08 0B) 16 18 1A 60(01 03 11 0F) 62 " +
	"8D(01 02) AC AE B6 C6 C8 C9 CC(01 02 03 04 06 0A) D6(01 04 05) DF)" +
	"mswhql(1)mccs_ver(2.2))"

// SimDisplayConfig seeds one simulated display.
type SimDisplayConfig struct {
	Address      string `yaml:"address" json:"address"`
	Manufacturer string `yaml:"manufacturer" json:"manufacturer"`
	Model        string `yaml:"model" json:"model"`
	Serial       string `yaml:"serial" json:"serial"`

	// Capabilities overrides DefaultSimCapabilities when set.
	Capabilities string `yaml:"capabilities" json:"capabilities"`
}

// simDefaults carries the initial value for well-known VCP codes. Codes
// absent here start at the first discrete value, or 0 for continuous ones.
var simDefaults = map[byte]VCPValue{
	byte(VCPBrightness):   {Current: 50, Maximum: 100},
	byte(VCPContrast):     {Current: 75, Maximum: 100},
	byte(VCPRedGain):      {Current: 50, Maximum: 100},
	byte(VCPGreenGain):    {Current: 50, Maximum: 100},
	byte(VCPBlueGain):     {Current: 50, Maximum: 100},
	byte(VCPAudioVolume):  {Current: 30, Maximum: 100},
	byte(VCPAudioMute):    {Current: 2, Maximum: 2},
	byte(VCPPowerMode):    {Current: 1, Maximum: 5},
	byte(VCPInputSource):  {Current: 0x11, Maximum: 0x12},
	byte(VCPOSDLanguage):  {Current: 2, Maximum: 0x0A},
	byte(VCPColourPreset): {Current: 5, Maximum: 0x0B},
	byte(VCPVersion):      {Current: 0x0202, Maximum: 0x0202},
}

type simFeature struct {
	current  uint16
	maximum  uint16
	initial  uint16
	writable bool
	values   []uint16
}

type simDisplay struct {
	info     DisplayInfo
	caps     string
	features map[byte]*simFeature
}

// SimTransport is an in-memory Transport backed by simulated displays.
// It lets the bridge, the HTTP API and the tests run without monitor
// hardware. Feature state is seeded from each display's capabilities
// string and behaves like a compliant monitor: unknown codes are
// rejected, values are bounded, and the restore commands reset state.
type SimTransport struct {
	mu       sync.RWMutex
	displays map[string]*simDisplay
	order    []string
	closed   bool
}

// NewSimTransport builds a transport from the given display seeds. With
// no seeds it provides a single display at address "sim-1" reporting
// DefaultSimCapabilities.
func NewSimTransport(displays ...SimDisplayConfig) (*SimTransport, error) {
	if len(displays) == 0 {
		displays = []SimDisplayConfig{{
			Address:      "sim-1",
			Manufacturer: "SIM",
			Model:        "SIM27Q",
			Serial:       "SIM0001",
		}}
	}

	t := &SimTransport{displays: make(map[string]*simDisplay, len(displays))}
	for _, cfg := range displays {
		if cfg.Address == "" {
			return nil, fmt.Errorf("%w: simulated display requires an address", ErrInvalidConfig)
		}
		if _, exists := t.displays[cfg.Address]; exists {
			return nil, fmt.Errorf("%w: duplicate simulated display address %q", ErrInvalidConfig, cfg.Address)
		}

		caps := cfg.Capabilities
		if caps == "" {
			caps = DefaultSimCapabilities
		}
		report, err := ParseCapabilities(caps)
		if err != nil {
			return nil, fmt.Errorf("simulated display %q: %w", cfg.Address, err)
		}

		d := &simDisplay{
			info: DisplayInfo{
				Address:      cfg.Address,
				Manufacturer: cfg.Manufacturer,
				Model:        cfg.Model,
				Serial:       cfg.Serial,
			},
			caps:     caps,
			features: make(map[byte]*simFeature, len(report.Features)),
		}
		for code, feature := range report.Features {
			b, err := CodeToByte(code)
			if err != nil {
				continue
			}
			d.features[b] = newSimFeature(b, feature)
		}
		t.displays[cfg.Address] = d
		t.order = append(t.order, cfg.Address)
	}
	return t, nil
}

func newSimFeature(code byte, feature Feature) *simFeature {
	f := &simFeature{writable: true}
	if def := LookupVCP(FormatCode(code)); def != nil {
		f.writable = def.IsWritable()
	}

	if feature.HasDiscreteValues() {
		for _, v := range feature.Values {
			n, err := strconv.ParseUint(v, 16, 16)
			if err != nil {
				continue
			}
			f.values = append(f.values, uint16(n))
			if uint16(n) > f.maximum {
				f.maximum = uint16(n)
			}
		}
		if len(f.values) > 0 {
			f.current = f.values[0]
		}
	} else {
		f.maximum = 100
	}

	if def, ok := simDefaults[code]; ok {
		f.current = def.Current
		f.maximum = def.Maximum
	}
	f.initial = f.current
	return f
}

// Displays implements Transport. Displays are returned in seed order.
func (t *SimTransport) Displays(ctx context.Context) ([]DisplayInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return nil, ErrTransportClosed
	}

	infos := make([]DisplayInfo, 0, len(t.order))
	for _, addr := range t.order {
		infos = append(infos, t.displays[addr].info)
	}
	return infos, nil
}

// Capabilities implements Transport.
func (t *SimTransport) Capabilities(ctx context.Context, address string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return "", ErrTransportClosed
	}

	d, ok := t.displays[address]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrDisplayNotFound, address)
	}
	return d.caps, nil
}

// GetVCP implements Transport. Reading a code the display does not list
// returns ErrUnsupportedFeature, as a monitor would NAK the request.
func (t *SimTransport) GetVCP(ctx context.Context, address string, code byte) (VCPValue, error) {
	if err := ctx.Err(); err != nil {
		return VCPValue{}, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return VCPValue{}, ErrTransportClosed
	}

	d, ok := t.displays[address]
	if !ok {
		return VCPValue{}, fmt.Errorf("%w: %s", ErrDisplayNotFound, address)
	}
	f, ok := d.features[code]
	if !ok {
		return VCPValue{}, fmt.Errorf("%w: %s code %s", ErrUnsupportedFeature, address, FormatCode(code))
	}
	return VCPValue{Current: f.current, Maximum: f.maximum}, nil
}

// SetVCP implements Transport. Writes to the restore commands reset the
// affected features to their seeded values instead of storing the value.
func (t *SimTransport) SetVCP(ctx context.Context, address string, code byte, value uint16) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrTransportClosed
	}

	d, ok := t.displays[address]
	if !ok {
		return fmt.Errorf("%w: %s", ErrDisplayNotFound, address)
	}
	f, ok := d.features[code]
	if !ok {
		return fmt.Errorf("%w: %s code %s", ErrUnsupportedFeature, address, FormatCode(code))
	}
	if !f.writable {
		return fmt.Errorf("%w: %s code %s is read-only", ErrUnsupportedFeature, address, FormatCode(code))
	}

	switch VCPCode(code) {
	case VCPRestoreFactory:
		d.restore(func(byte) bool { return true })
		return nil
	case VCPRestoreLuminance:
		d.restore(func(c byte) bool {
			return c == byte(VCPBrightness) || c == byte(VCPContrast)
		})
		return nil
	case VCPRestoreColour:
		d.restore(func(c byte) bool {
			switch VCPCode(c) {
			case VCPRedGain, VCPGreenGain, VCPBlueGain, VCPColourPreset:
				return true
			}
			return false
		})
		return nil
	}

	if len(f.values) > 0 {
		if !containsValue(f.values, value) {
			return fmt.Errorf("%w: %s code %s value %d", ErrValueNotAllowed, address, FormatCode(code), value)
		}
	} else if value > f.maximum {
		return fmt.Errorf("%w: %s code %s value %d exceeds maximum %d",
			ErrValueNotAllowed, address, FormatCode(code), value, f.maximum)
	}
	f.current = value
	return nil
}

// Close implements Transport.
func (t *SimTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrTransportClosed
	}
	t.closed = true
	return nil
}

func (d *simDisplay) restore(match func(byte) bool) {
	for code, f := range d.features {
		if match(code) {
			f.current = f.initial
		}
	}
}

func containsValue(values []uint16, v uint16) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

// String describes the transport for logs.
func (t *SimTransport) String() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return fmt.Sprintf("SimTransport{displays: %s}", strings.Join(t.order, ", "))
}
