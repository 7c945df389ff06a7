package service

import "errors"

var (
	// ErrUnknownCommand is returned for a command name the supervisor does not handle.
	ErrUnknownCommand = errors.New("service: unknown command")

	// ErrInvalidCommand is returned for a malformed command payload.
	ErrInvalidCommand = errors.New("service: invalid command")

	// ErrNotSubscribed is reported by CommandCheck when the command topic
	// subscription is missing.
	ErrNotSubscribed = errors.New("service: command topic not subscribed")
)
