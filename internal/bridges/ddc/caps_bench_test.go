package ddc

import "testing"

func BenchmarkParseCapabilities_Full(b *testing.B) {
	// Realistic 24-feature report with discrete value groups
	for i := 0; i < b.N; i++ {
		ParseCapabilities(sampleCapabilities) //nolint:errcheck // benchmark
	}
}

func BenchmarkParseCapabilities_Minimal(b *testing.B) {
	raw := "(prot(monitor)vcp(10 12))"
	for i := 0; i < b.N; i++ {
		ParseCapabilities(raw) //nolint:errcheck // benchmark
	}
}

func BenchmarkCapabilityReportSupportsValue(b *testing.B) {
	report, err := ParseCapabilities(sampleCapabilities)
	if err != nil {
		b.Fatalf("ParseCapabilities() unexpected error: %v", err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		report.SupportsValue("60", "11")
	}
}
