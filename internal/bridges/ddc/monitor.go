package ddc

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
)

// probeConcurrency bounds how many capability probes run at once during
// ProbeAll. Capability reads are the slowest DDC/CI exchange (several
// seconds on real hardware), so probes for independent displays overlap.
const probeConcurrency = 4

// Monitor binds one display to its parsed capability report and the
// transport used to reach it. All methods are safe for concurrent use;
// Refresh swaps the report atomically under a lock while readers hold
// their own snapshot.
type Monitor struct {
	info      DisplayInfo
	transport Transport

	mu     sync.RWMutex
	report CapabilityReport
	raw    string
}

// Probe fetches and parses the capabilities of a single display and
// returns a Monitor bound to it.
//
// Parameters:
//   - ctx: cancels the capability read
//   - transport: control channel the monitor will use for all operations
//   - info: display identity as enumerated by the transport
//
// Returns an error if the capabilities string cannot be fetched or is
// empty. Malformed fragments inside a non-empty string do not fail the
// probe; the parser keeps what it recognises.
func Probe(ctx context.Context, transport Transport, info DisplayInfo) (*Monitor, error) {
	raw, err := transport.Capabilities(ctx, info.Address)
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", info.Address, err)
	}
	report, err := ParseCapabilities(raw)
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", info.Address, err)
	}
	return &Monitor{info: info, transport: transport, report: report, raw: raw}, nil
}

// ProbeAll enumerates the transport's displays and probes them
// concurrently, at most probeConcurrency in flight. Displays that fail
// to probe are skipped rather than failing the whole scan; their errors
// come back joined alongside the monitors that did succeed. The returned
// monitors are sorted by address.
func ProbeAll(ctx context.Context, transport Transport) ([]*Monitor, error) {
	infos, err := transport.Displays(ctx)
	if err != nil {
		return nil, fmt.Errorf("enumerate displays: %w", err)
	}

	var (
		mu        sync.Mutex
		monitors  []*Monitor
		probeErrs []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(probeConcurrency)
	for _, info := range infos {
		g.Go(func() error {
			m, err := Probe(gctx, transport, info)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				probeErrs = append(probeErrs, err)
				return nil
			}
			monitors = append(monitors, m)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		probeErrs = append(probeErrs, err)
	}

	sort.Slice(monitors, func(i, j int) bool {
		return monitors[i].info.Address < monitors[j].info.Address
	})
	return monitors, errors.Join(probeErrs...)
}

// Address returns the display's transport address.
func (m *Monitor) Address() string {
	return m.info.Address
}

// Info returns the display identity captured at enumeration time.
func (m *Monitor) Info() DisplayInfo {
	return m.info
}

// Report returns the current capability report. The report is shared and
// must be treated as read-only; use DeepCopy to hold a mutable copy.
func (m *Monitor) Report() CapabilityReport {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.report
}

// RawCapabilities returns the capabilities string exactly as the display
// sent it during the last probe or refresh.
func (m *Monitor) RawCapabilities() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.raw
}

// Refresh re-reads the display's capabilities and replaces the report.
// On error the previous report stays in place.
func (m *Monitor) Refresh(ctx context.Context) error {
	raw, err := m.transport.Capabilities(ctx, m.info.Address)
	if err != nil {
		return fmt.Errorf("refresh %s: %w", m.info.Address, err)
	}
	report, err := ParseCapabilities(raw)
	if err != nil {
		return fmt.Errorf("refresh %s: %w", m.info.Address, err)
	}

	m.mu.Lock()
	m.report = report
	m.raw = raw
	m.mu.Unlock()
	return nil
}

// GetFeature reads the current and maximum value of a VCP feature.
//
// The code is normalised before lookup, so "1a" and "1A" read the same
// feature. Codes the display's report does not list are rejected with
// ErrUnsupportedFeature without touching the transport.
func (m *Monitor) GetFeature(ctx context.Context, code string) (VCPValue, error) {
	normalised := NormalizeCode(code)
	b, err := CodeToByte(normalised)
	if err != nil {
		return VCPValue{}, err
	}

	if !m.Report().Supports(normalised) {
		return VCPValue{}, fmt.Errorf("%w: %s does not list code %s",
			ErrUnsupportedFeature, m.info.Address, normalised)
	}
	return m.transport.GetVCP(ctx, m.info.Address, b)
}

// SetFeature writes a VCP feature value.
//
// Two gates run before the transport is touched: the code must appear in
// the display's report (ErrUnsupportedFeature), and for features that
// declare a discrete value set the value must be one of the declared
// values (ErrValueNotAllowed). Continuous features pass any value
// through; the display clamps or rejects out-of-range writes itself.
func (m *Monitor) SetFeature(ctx context.Context, code string, value uint16) error {
	normalised := NormalizeCode(code)
	b, err := CodeToByte(normalised)
	if err != nil {
		return err
	}

	report := m.Report()
	feature, ok := report.Features[normalised]
	if !ok {
		return fmt.Errorf("%w: %s does not list code %s",
			ErrUnsupportedFeature, m.info.Address, normalised)
	}
	if def := LookupVCP(normalised); def != nil && !def.IsWritable() {
		return fmt.Errorf("%w: code %s (%s) is read-only",
			ErrUnsupportedFeature, normalised, def.Name)
	}
	if feature.HasDiscreteValues() && !report.SupportsValue(normalised, FormatValue(value)) {
		return fmt.Errorf("%w: %s code %s value %s not in declared set",
			ErrValueNotAllowed, m.info.Address, normalised, FormatValue(value))
	}

	return m.transport.SetVCP(ctx, m.info.Address, b, value)
}

// RestoreFactory asks the display to restore factory defaults. Displays
// that do not list the restore command in their report reject the call
// with ErrUnsupportedFeature.
func (m *Monitor) RestoreFactory(ctx context.Context) error {
	return m.SetFeature(ctx, FormatCode(byte(VCPRestoreFactory)), 1)
}

// String describes the monitor for logs.
func (m *Monitor) String() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fmt.Sprintf("Monitor{address: %s, model: %s, features: %d}",
		m.info.Address, m.info.Model, len(m.report.Features))
}
