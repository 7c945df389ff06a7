package sensor

import (
	"time"
)

// Reading is one illuminance sample.
type Reading struct {
	Lux       float64   `json:"lux"`
	Timestamp time.Time `json:"timestamp"`
}

// Callback receives readings on a goroutine owned by the Source.
type Callback func(Reading)

// Registration identifies an active Register call.
type Registration interface {
	// ID is unique per Source for the life of the process.
	ID() uint64
}

// Source is a light sensor feed.
//
// Register starts delivery to cb. minInterval is a hint: a Source may
// deliver more often and consumers must tolerate that. Unregister stops
// delivery; a callback already in flight may still complete.
type Source interface {
	Register(cb Callback, minInterval time.Duration) (Registration, error)
	Unregister(reg Registration)
}

type registration uint64

func (r registration) ID() uint64 { return uint64(r) }
