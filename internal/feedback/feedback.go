// Package feedback carries fire-and-forget signals from the control loop to
// whatever presents them: logs, MQTT, the websocket API.
package feedback

import (
	"fmt"
	"runtime/debug"
	"sync"
	"time"
)

// Kind identifies a signal.
type Kind string

const (
	// KindBoundaryMin is emitted when the relative level reaches 0.
	KindBoundaryMin Kind = "boundary_min"
	// KindBoundaryMax is emitted when the relative level reaches 100.
	KindBoundaryMax Kind = "boundary_max"
	// KindStoppedExternalOverride is emitted when the loop stops because
	// something else took over brightness.
	KindStoppedExternalOverride Kind = "stopped_external_override"
)

// Signal is one feedback event.
type Signal struct {
	Kind       Kind      `json:"kind"`
	Reason     string    `json:"reason,omitempty"`
	Level      int       `json:"level"`
	Brightness int       `json:"brightness"`
	At         time.Time `json:"at"`
}

// Message returns a short human-readable rendering.
func (s Signal) Message() string {
	switch s.Kind {
	case KindBoundaryMin:
		return "Min brightness set"
	case KindBoundaryMax:
		return "Max brightness set"
	case KindStoppedExternalOverride:
		if s.Reason != "" {
			return fmt.Sprintf("Stopped: %s", s.Reason)
		}
		return "Stopped: brightness changed elsewhere"
	default:
		return string(s.Kind)
	}
}

// Sink receives signals. Emit must not block for long; it runs on the
// control loop's goroutine.
type Sink interface {
	Emit(sig Signal)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Signal)

// Emit calls f.
func (f SinkFunc) Emit(sig Signal) { f(sig) }

// Discard drops every signal.
var Discard Sink = SinkFunc(func(Signal) {})

// Logger is the logging interface used by sinks in this package.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// Fanout delivers each signal to every sink in order. A panicking sink is
// recovered and logged; the remaining sinks still run.
type Fanout struct {
	mu     sync.RWMutex
	sinks  []Sink
	logger Logger
}

// NewFanout creates a Fanout over sinks.
func NewFanout(logger Logger, sinks ...Sink) *Fanout {
	return &Fanout{sinks: sinks, logger: logger}
}

// Add appends a sink.
func (f *Fanout) Add(s Sink) {
	f.mu.Lock()
	f.sinks = append(f.sinks, s)
	f.mu.Unlock()
}

// Emit implements Sink.
func (f *Fanout) Emit(sig Signal) {
	f.mu.RLock()
	sinks := make([]Sink, len(f.sinks))
	copy(sinks, f.sinks)
	f.mu.RUnlock()

	for _, s := range sinks {
		f.safeEmit(s, sig)
	}
}

func (f *Fanout) safeEmit(s Sink, sig Signal) {
	defer func() {
		if r := recover(); r != nil && f.logger != nil {
			f.logger.Error("feedback sink panicked",
				"kind", string(sig.Kind),
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
		}
	}()
	s.Emit(sig)
}

// LogSink writes signals to a logger.
type LogSink struct {
	Logger Logger
}

// Emit implements Sink.
func (l LogSink) Emit(sig Signal) {
	l.Logger.Info(sig.Message(),
		"kind", string(sig.Kind),
		"reason", sig.Reason,
		"level", sig.Level,
		"brightness", sig.Brightness,
	)
}
