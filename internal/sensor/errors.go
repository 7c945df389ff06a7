package sensor

import "errors"

var (
	// ErrNoSensor is returned when the configured device has no illuminance channel.
	ErrNoSensor = errors.New("sensor: no illuminance channel")

	// ErrClosed is returned when registering on a closed source.
	ErrClosed = errors.New("sensor: source closed")

	// ErrInvalidPayload is returned when a remote reading cannot be decoded.
	ErrInvalidPayload = errors.New("sensor: invalid payload")
)
