package state

import "errors"

var (
	// ErrInvalidInterval is returned when a sense interval outside
	// (0, MaxSenseInterval] is written.
	ErrInvalidInterval = errors.New("state: sense interval out of range")

	// ErrInvalidMode is returned when a mode name cannot be parsed.
	ErrInvalidMode = errors.New("state: invalid brightness mode")
)
