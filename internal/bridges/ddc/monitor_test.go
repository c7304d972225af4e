package ddc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

// staticTransport serves canned capabilities strings and rejects value
// traffic. It stands in for hardware in probe and refresh tests where
// the capabilities need to change or fail mid-test.
type staticTransport struct {
	mu    sync.Mutex
	caps  map[string]string
	order []string
}

func newStaticTransport() *staticTransport {
	return &staticTransport{caps: make(map[string]string)}
}

func (s *staticTransport) add(address, caps string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.caps[address] = caps
	s.order = append(s.order, address)
}

func (s *staticTransport) setCaps(address, caps string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.caps[address] = caps
}

func (s *staticTransport) Displays(_ context.Context) ([]DisplayInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	infos := make([]DisplayInfo, 0, len(s.order))
	for _, addr := range s.order {
		infos = append(infos, DisplayInfo{Address: addr})
	}
	return infos, nil
}

func (s *staticTransport) Capabilities(_ context.Context, address string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	caps, ok := s.caps[address]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrDisplayNotFound, address)
	}
	return caps, nil
}

func (s *staticTransport) GetVCP(context.Context, string, byte) (VCPValue, error) {
	return VCPValue{}, ErrNotConnected
}

func (s *staticTransport) SetVCP(context.Context, string, byte, uint16) error {
	return ErrNotConnected
}

func (s *staticTransport) Close() error { return nil }

func TestProbe(t *testing.T) {
	tr, err := NewSimTransport()
	if err != nil {
		t.Fatalf("NewSimTransport() error = %v", err)
	}

	m, err := Probe(context.Background(), tr, DisplayInfo{Address: "sim-1", Model: "SIM27Q"})
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}

	if m.Address() != "sim-1" {
		t.Errorf("Address() = %q, want %q", m.Address(), "sim-1")
	}
	if m.Info().Model != "SIM27Q" {
		t.Errorf("Info().Model = %q, want %q", m.Info().Model, "SIM27Q")
	}
	if m.RawCapabilities() != DefaultSimCapabilities {
		t.Errorf("RawCapabilities() = %q, want DefaultSimCapabilities", m.RawCapabilities())
	}

	report := m.Report()
	if report.Protocol != "monitor" {
		t.Errorf("Report().Protocol = %q, want %q", report.Protocol, "monitor")
	}
	if report.MCCSVersion != "2.2" {
		t.Errorf("Report().MCCSVersion = %q, want %q", report.MCCSVersion, "2.2")
	}
	if !report.Supports("60") {
		t.Error("Report().Supports(60) = false, want true")
	}
}

func TestProbeErrors(t *testing.T) {
	tr := newStaticTransport()
	tr.add("dp-1", "   ")

	tests := []struct {
		name    string
		address string
		wantErr error
	}{
		{name: "unknown display", address: "dp-9", wantErr: ErrDisplayNotFound},
		{name: "blank capabilities", address: "dp-1", wantErr: ErrEmptyCapabilities},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Probe(context.Background(), tr, DisplayInfo{Address: tt.address})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Probe() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestProbeAll(t *testing.T) {
	tr, err := NewSimTransport(
		SimDisplayConfig{Address: "sim-3"},
		SimDisplayConfig{Address: "sim-1"},
		SimDisplayConfig{Address: "sim-2"},
	)
	if err != nil {
		t.Fatalf("NewSimTransport() error = %v", err)
	}

	monitors, err := ProbeAll(context.Background(), tr)
	if err != nil {
		t.Fatalf("ProbeAll() error = %v", err)
	}
	if len(monitors) != 3 {
		t.Fatalf("ProbeAll() returned %d monitors, want 3", len(monitors))
	}
	for i, want := range []string{"sim-1", "sim-2", "sim-3"} {
		if monitors[i].Address() != want {
			t.Errorf("monitors[%d].Address() = %q, want %q", i, monitors[i].Address(), want)
		}
	}
}

func TestProbeAllPartialFailure(t *testing.T) {
	tr := newStaticTransport()
	tr.add("dp-1", DefaultSimCapabilities)
	tr.add("dp-2", "")

	monitors, err := ProbeAll(context.Background(), tr)
	if len(monitors) != 1 || monitors[0].Address() != "dp-1" {
		t.Fatalf("ProbeAll() monitors = %v, want [dp-1]", monitors)
	}
	if !errors.Is(err, ErrEmptyCapabilities) {
		t.Errorf("ProbeAll() error = %v, want ErrEmptyCapabilities for dp-2", err)
	}
}

func TestMonitorGetFeature(t *testing.T) {
	tr, err := NewSimTransport()
	if err != nil {
		t.Fatalf("NewSimTransport() error = %v", err)
	}
	m, err := Probe(context.Background(), tr, DisplayInfo{Address: "sim-1"})
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}

	tests := []struct {
		name    string
		code    string
		want    VCPValue
		wantErr error
	}{
		{name: "brightness", code: "10", want: VCPValue{Current: 50, Maximum: 100}},
		{name: "lowercase code", code: "1a", want: VCPValue{Current: 50, Maximum: 100}},
		{name: "unlisted code", code: "E5", wantErr: ErrUnsupportedFeature},
		{name: "invalid code", code: "GG", wantErr: ErrInvalidCode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.GetFeature(context.Background(), tt.code)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("GetFeature(%q) error = %v, want %v", tt.code, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("GetFeature(%q) error = %v", tt.code, err)
			}
			if got != tt.want {
				t.Errorf("GetFeature(%q) = %+v, want %+v", tt.code, got, tt.want)
			}
		})
	}
}

func TestMonitorSetFeature(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		value   uint16
		wantErr error
	}{
		{name: "continuous write", code: "10", value: 80},
		{name: "discrete declared value", code: "60", value: 0x0F},
		{name: "discrete undeclared value", code: "60", value: 0x02, wantErr: ErrValueNotAllowed},
		{name: "read-only code", code: "DF", value: 1, wantErr: ErrUnsupportedFeature},
		{name: "unlisted code", code: "E5", value: 1, wantErr: ErrUnsupportedFeature},
		{name: "invalid code", code: "zz", value: 1, wantErr: ErrInvalidCode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, err := NewSimTransport()
			if err != nil {
				t.Fatalf("NewSimTransport() error = %v", err)
			}
			m, err := Probe(context.Background(), tr, DisplayInfo{Address: "sim-1"})
			if err != nil {
				t.Fatalf("Probe() error = %v", err)
			}

			err = m.SetFeature(context.Background(), tt.code, tt.value)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("SetFeature(%q, %d) error = %v, want %v", tt.code, tt.value, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("SetFeature(%q, %d) error = %v", tt.code, tt.value, err)
			}

			got, err := m.GetFeature(context.Background(), tt.code)
			if err != nil {
				t.Fatalf("GetFeature(%q) error = %v", tt.code, err)
			}
			if got.Current != tt.value {
				t.Errorf("GetFeature(%q).Current = %d, want %d", tt.code, got.Current, tt.value)
			}
		})
	}
}

func TestMonitorRestoreFactory(t *testing.T) {
	tr, err := NewSimTransport()
	if err != nil {
		t.Fatalf("NewSimTransport() error = %v", err)
	}
	m, err := Probe(context.Background(), tr, DisplayInfo{Address: "sim-1"})
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	ctx := context.Background()

	if err := m.SetFeature(ctx, "10", 90); err != nil {
		t.Fatalf("SetFeature() error = %v", err)
	}
	if err := m.RestoreFactory(ctx); err != nil {
		t.Fatalf("RestoreFactory() error = %v", err)
	}
	got, err := m.GetFeature(ctx, "10")
	if err != nil {
		t.Fatalf("GetFeature() error = %v", err)
	}
	if got.Current != 50 {
		t.Errorf("brightness after restore = %d, want seeded 50", got.Current)
	}
}

func TestMonitorRestoreFactoryUnlisted(t *testing.T) {
	tr, err := NewSimTransport(SimDisplayConfig{
		Address:      "sim-1",
		Capabilities: "(prot(monitor)vcp(10 12))",
	})
	if err != nil {
		t.Fatalf("NewSimTransport() error = %v", err)
	}
	m, err := Probe(context.Background(), tr, DisplayInfo{Address: "sim-1"})
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}

	if err := m.RestoreFactory(context.Background()); !errors.Is(err, ErrUnsupportedFeature) {
		t.Errorf("RestoreFactory() error = %v, want ErrUnsupportedFeature", err)
	}
}

func TestMonitorRefresh(t *testing.T) {
	tr := newStaticTransport()
	tr.add("dp-1", "(prot(monitor)vcp(10 12))")

	m, err := Probe(context.Background(), tr, DisplayInfo{Address: "dp-1"})
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	if m.Report().Supports("60") {
		t.Fatal("initial report should not list code 60")
	}

	tr.setCaps("dp-1", "(prot(monitor)vcp(10 12 60(01 03)))")
	if err := m.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if !m.Report().Supports("60") {
		t.Error("refreshed report should list code 60")
	}

	// A failing refresh keeps the previous report.
	tr.setCaps("dp-1", "")
	if err := m.Refresh(context.Background()); !errors.Is(err, ErrEmptyCapabilities) {
		t.Fatalf("Refresh() error = %v, want ErrEmptyCapabilities", err)
	}
	if !m.Report().Supports("60") {
		t.Error("report should survive a failed refresh")
	}
}
