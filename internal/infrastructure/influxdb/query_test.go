package influxdb

import (
	"strings"
	"testing"
	"time"
)

// =============================================================================
// Flux Builder Tests
// =============================================================================

func TestBuildFeatureHistoryFlux(t *testing.T) {
	start := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	got := buildFeatureHistoryFlux("metrics", "wall-north-1", "10", start, end, 5*time.Minute)

	want := `from(bucket: "metrics")
  |> range(start: 2026-08-25T10:00:00Z, stop: 2026-08-25T11:00:00Z)
  |> filter(fn: (r) => r._measurement == "display_metrics")
  |> filter(fn: (r) => r.display_id == "wall-north-1" and r.code == "10")
  |> filter(fn: (r) => r._field == "value")
  |> aggregateWindow(every: 300s, fn: mean, createEmpty: false)`

	if got != want {
		t.Errorf("buildFeatureHistoryFlux() =\n%s\nwant:\n%s", got, want)
	}
}

func TestBuildFeatureHistoryFlux_NormalisesToUTC(t *testing.T) {
	zone := time.FixedZone("CEST", 2*60*60)
	start := time.Date(2026, 8, 25, 12, 0, 0, 0, zone) // 10:00 UTC
	end := start.Add(30 * time.Minute)

	got := buildFeatureHistoryFlux("metrics", "desk-2", "12", start, end, time.Minute)

	if !strings.Contains(got, "range(start: 2026-08-25T10:00:00Z, stop: 2026-08-25T10:30:00Z)") {
		t.Errorf("buildFeatureHistoryFlux() did not normalise range to UTC:\n%s", got)
	}
	if !strings.Contains(got, "aggregateWindow(every: 60s") {
		t.Errorf("buildFeatureHistoryFlux() window not in seconds:\n%s", got)
	}
}

func TestBuildFeatureHistoryFlux_EscapesIdentifiers(t *testing.T) {
	start := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	got := buildFeatureHistoryFlux("metrics", `evil"`, "10", start, end, time.Minute)

	if !strings.Contains(got, `r.display_id == "evil\""`) {
		t.Errorf("buildFeatureHistoryFlux() did not escape display ID:\n%s", got)
	}
}

func TestEscapeFluxString(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"clean passthrough", "wall-north-1", "wall-north-1"},
		{"backslash escaped", `a\b`, `a\\b`},
		{"quote escaped", `a"b`, `a\"b`},
		{"backslash then quote", `a\"b`, `a\\\"b`},
		{"newline stripped", "a\nb", "ab"},
		{"carriage return stripped", "a\rb", "ab"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := escapeFluxString(tt.input); got != tt.want {
				t.Errorf("escapeFluxString(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNumericValue(t *testing.T) {
	tests := []struct {
		name  string
		input interface{}
		want  float64
		ok    bool
	}{
		{"float64", float64(62.5), 62.5, true},
		{"int64", int64(70), 70, true},
		{"uint64", uint64(3), 3, true},
		{"string", "62", 0, false},
		{"bool", true, 0, false},
		{"nil", nil, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := numericValue(tt.input)
			if ok != tt.ok {
				t.Fatalf("numericValue(%v) ok = %v, want %v", tt.input, ok, tt.ok)
			}
			if got != tt.want {
				t.Errorf("numericValue(%v) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
