package control

import "errors"

var (
	// ErrAlreadyRunning is returned by Start when the loop is active.
	ErrAlreadyRunning = errors.New("control: loop already running")

	// ErrStartInterrupted is returned by Start when a concurrent Stop won.
	ErrStartInterrupted = errors.New("control: loop stopped while starting")

	// ErrMissingDependency is returned by New when a required collaborator is nil.
	ErrMissingDependency = errors.New("control: missing dependency")
)
