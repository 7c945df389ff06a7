package telemetry

import (
	"time"

	"github.com/sgnexus/autobright/internal/state"
)

// StatePayload is the JSON form of a store snapshot, shared by the MQTT
// state topic and the HTTP API.
type StatePayload struct {
	RelativeLevel   int       `json:"relative_level"`
	Lux             *float64  `json:"lux"` // nil until a reading is accepted
	Brightness      int       `json:"brightness"`
	Mode            string    `json:"mode"`
	SenseIntervalMs int64     `json:"sense_interval_ms"`
	ServiceEnabled  bool      `json:"service_enabled"`
	Timestamp       time.Time `json:"timestamp"`
}

// NewStatePayload converts a snapshot.
func NewStatePayload(snap state.Snapshot, at time.Time) StatePayload {
	p := StatePayload{
		RelativeLevel:   snap.RelativeLevel,
		Brightness:      snap.Brightness,
		Mode:            snap.Mode.String(),
		SenseIntervalMs: snap.SenseInterval.Milliseconds(),
		ServiceEnabled:  snap.ServiceEnabled,
		Timestamp:       at.UTC(),
	}
	if snap.LuxKnown() {
		lux := snap.Lux
		p.Lux = &lux
	}
	return p
}
