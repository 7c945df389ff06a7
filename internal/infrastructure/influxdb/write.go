package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by the brightness telemetry.
const (
	MeasurementAmbientLight = "ambient_light"
	MeasurementBrightness   = "display_brightness"
	MeasurementControl      = "control_events"
)

// WriteLux records an accepted ambient light reading.
//
// The write is non-blocking; data is batched and sent asynchronously.
func (c *Client) WriteLux(lux float64, at time.Time) {
	c.WritePointWithTime(MeasurementAmbientLight,
		map[string]string{"source": "sampler"},
		map[string]interface{}{"lux": lux},
		at,
	)
}

// WriteBrightness records the display brightness together with the
// relative level that produced it.
func (c *Client) WriteBrightness(brightness, level int, at time.Time) {
	c.WritePointWithTime(MeasurementBrightness,
		nil,
		map[string]interface{}{
			"brightness": brightness,
			"level":      level,
		},
		at,
	)
}

// WriteControlEvent records a control loop event such as a boundary hit
// or an external override. kind is stored as a tag, reason as a field.
func (c *Client) WriteControlEvent(kind, reason string, at time.Time) {
	fields := map[string]interface{}{"count": 1}
	if reason != "" {
		fields["reason"] = reason
	}
	c.WritePointWithTime(MeasurementControl,
		map[string]string{"kind": kind},
		fields,
		at,
	)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime writes a custom point with a specific timestamp.
// A zero timestamp means now.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
