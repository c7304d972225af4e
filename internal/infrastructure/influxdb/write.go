package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteFeatureValue writes a single VCP feature value to InfluxDB.
//
// This is the primary method for recording display telemetry: the state
// ingestion path calls it for every feature change reported by the bridge,
// and the poll loop feeds it current values.
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - displayID: Unique identifier for the display (e.g., "wall-north-1")
//   - code: Two-digit uppercase hex VCP code (e.g., "10" for luminance)
//   - value: The current feature value
//   - maxValue: The feature's maximum (use 0 if unknown; omits the field)
//
// Example:
//
//	client.WriteFeatureValue("wall-north-1", "10", 62, 100)
//	client.WriteFeatureValue("desk-2", "12", 50, 0)
func (c *Client) WriteFeatureValue(displayID string, code string, value, maxValue int) {
	if !c.IsConnected() {
		return
	}

	fields := map[string]interface{}{
		"value": value,
	}
	if maxValue > 0 {
		fields["max"] = maxValue
	}

	point := write.NewPoint(
		"display_metrics",
		map[string]string{
			"display_id": displayID,
			"code":       code,
		},
		fields,
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteDisplayHealth writes a display health transition.
//
// Used for tracking uptime and flapping displays over time.
//
// Parameters:
//   - displayID: Display identifier
//   - online: Whether the display is currently reachable
func (c *Client) WriteDisplayHealth(displayID string, online bool) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"display_health",
		map[string]string{
			"display_id": displayID,
		},
		map[string]interface{}{
			"online": online,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePresetApplication writes the outcome of a preset application.
//
// Used for tracking how long applies take and how often they degrade.
//
// Parameters:
//   - presetID: Preset identifier
//   - status: Final application status (e.g., "completed", "partial", "failed")
//   - durationMS: Total apply duration in milliseconds
func (c *Client) WritePresetApplication(presetID string, status string, durationMS int64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"preset_applications",
		map[string]string{
			"preset_id": presetID,
			"status":    status,
		},
		map[string]interface{}{
			"duration_ms": durationMS,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
//
// Example:
//
//	client.WritePoint("system_stats",
//	    map[string]string{"host": "core-01"},
//	    map[string]interface{}{"cpu_percent": 45.2, "memory_mb": 512})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., delayed data).
//
// Parameters:
//   - measurement: The measurement name
//   - tags: Key-value pairs for indexing
//   - fields: Key-value pairs for the data
//   - timestamp: The exact time for this data point
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
