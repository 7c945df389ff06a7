// Package telemetry records brightness state for later inspection.
//
// A Recorder follows the state store as a passive observer and fans each
// change out to up to three sinks:
//   - InfluxDB points (ambient_light, display_brightness, control_events)
//   - the retained MQTT state topic, autobright/state
//   - the SQLite brightness_history table
//
// Observers run on the store's dispatch goroutine, so the Recorder only
// queues work there. A single worker started with Run performs the I/O.
// When the queue is full, new records are dropped and counted.
package telemetry
