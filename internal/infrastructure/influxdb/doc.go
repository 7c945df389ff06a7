// Package influxdb provides optional InfluxDB telemetry for autobright.
//
// It wraps the official influxdb-client-go v2 library for connection
// management, batched point writing and health monitoring.
//
// # Measurements
//
//   - ambient_light: accepted lux readings
//   - display_brightness: brightness and relative level after each change
//   - control_events: boundary hits and external overrides, tagged by kind
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteLux(312.5, time.Now())
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// Writes are non-blocking; batch errors are delivered through SetOnError.
package influxdb
