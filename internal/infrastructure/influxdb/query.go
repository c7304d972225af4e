package influxdb

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// FeaturePoint is one aggregated sample of a display feature value.
type FeaturePoint struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
}

// QueryFeatureHistory returns the aggregated value series for one display
// feature over a time range.
//
// Values are mean-aggregated into windows of the requested size, so a
// display polled every 30 seconds queried with a 5 minute window returns
// one averaged point per 5 minutes. Empty windows are omitted.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - displayID: Display identifier (tag match, exact)
//   - code: Two-digit uppercase hex VCP code (tag match, exact)
//   - start: Start time for the range
//   - end: End time for the range
//   - window: Aggregation window size
//
// Returns:
//   - []FeaturePoint: Time-ordered aggregated samples
//   - error: nil on success, otherwise the query error
func (c *Client) QueryFeatureHistory(ctx context.Context, displayID, code string, start, end time.Time, window time.Duration) ([]FeaturePoint, error) {
	if c == nil || !c.IsConnected() {
		return nil, ErrNotConnected
	}
	if strings.TrimSpace(displayID) == "" {
		return nil, fmt.Errorf("%w: display id is required", ErrQueryFailed)
	}
	if strings.TrimSpace(code) == "" {
		return nil, fmt.Errorf("%w: feature code is required", ErrQueryFailed)
	}
	if window <= 0 {
		return nil, fmt.Errorf("%w: window must be positive", ErrQueryFailed)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("%w: end must be after start", ErrQueryFailed)
	}

	flux := buildFeatureHistoryFlux(c.cfg.Bucket, displayID, code, start, end, window)

	result, err := c.queryAPI.Query(ctx, flux)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}
	defer result.Close()

	points := make([]FeaturePoint, 0)
	for result.Next() {
		record := result.Record()
		value, ok := numericValue(record.Value())
		if !ok {
			continue
		}
		points = append(points, FeaturePoint{
			Time:  record.Time(),
			Value: value,
		})
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}

	return points, nil
}

// buildFeatureHistoryFlux assembles the Flux query for a feature series.
//
// Identifiers are escaped so a hostile display ID cannot break out of the
// string literal and inject Flux.
func buildFeatureHistoryFlux(bucket, displayID, code string, start, end time.Time, window time.Duration) string {
	var b strings.Builder

	fmt.Fprintf(&b, "from(bucket: \"%s\")\n", escapeFluxString(bucket))
	fmt.Fprintf(&b, "  |> range(start: %s, stop: %s)\n",
		start.UTC().Format(time.RFC3339),
		end.UTC().Format(time.RFC3339),
	)
	b.WriteString(`  |> filter(fn: (r) => r._measurement == "display_metrics")` + "\n")
	fmt.Fprintf(&b, "  |> filter(fn: (r) => r.display_id == \"%s\" and r.code == \"%s\")\n",
		escapeFluxString(displayID),
		escapeFluxString(code),
	)
	b.WriteString(`  |> filter(fn: (r) => r._field == "value")` + "\n")
	fmt.Fprintf(&b, "  |> aggregateWindow(every: %ds, fn: mean, createEmpty: false)",
		int64(window.Seconds()),
	)

	return b.String()
}

// escapeFluxString escapes a value for use inside a Flux string literal.
// Backslashes and quotes are escaped; newlines are stripped.
func escapeFluxString(s string) string {
	s = strings.ReplaceAll(s, "\n", "")
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return s
}

// numericValue coerces a Flux record value to float64.
// Aggregated series come back as doubles; raw queries may carry longs.
func numericValue(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case int64:
		return float64(val), true
	case uint64:
		return float64(val), true
	default:
		return 0, false
	}
}
