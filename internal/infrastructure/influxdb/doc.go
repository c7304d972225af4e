// Package influxdb provides InfluxDB connectivity for DDC Core.
//
// It wraps the official influxdb-client-go v2 library with DDC Core-specific
// patterns for connection management, metric writing, history queries, and
// health monitoring.
//
// # Purpose
//
// This package handles time-series data storage for:
//   - Display feature telemetry (luminance, contrast, input source, power)
//   - Display health transitions (online/offline over time)
//   - Preset application outcomes (duration, final status)
//
// # Usage
//
//	cfg := config.InfluxDBConfig{
//	    URL:    "http://localhost:8086",
//	    Token:  "your-token",
//	    Org:    "ddccore",
//	    Bucket: "metrics",
//	}
//
//	client, err := influxdb.Connect(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Write a feature value from the poll loop
//	client.WriteFeatureValue("wall-north-1", "10", 62, 100)
//
//	// Query the aggregated series for the history endpoint
//	points, err := client.QueryFeatureHistory(ctx, "wall-north-1", "10",
//	    time.Now().Add(-24*time.Hour), time.Now(), 5*time.Minute)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are logged via a callback.
// Connection, query, and health check errors are returned directly.
//
// # Performance
//
// Writes are batched according to config.yaml settings (batch_size, flush_interval).
// This reduces network overhead for high-frequency telemetry data.
package influxdb
