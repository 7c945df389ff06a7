package control

import (
	"context"

	"github.com/sgnexus/autobright/internal/state"
)

// Gateway applies brightness and mode to the real display. Any call may
// fail, for example with a permission error.
type Gateway interface {
	ReadBrightness() (int, error)
	WriteBrightness(v int) error
	ReadMode() (state.Mode, error)
	WriteMode(m state.Mode) error
}

// Preference keys.
const (
	PrefRelativeLevel   = "relative_level"
	PrefSenseIntervalMs = "sense_interval_ms"
)

// Preferences persists user settings across restarts. Load returns def
// when the key has never been saved.
type Preferences interface {
	Load(ctx context.Context, key string, def int) (int, error)
	Save(ctx context.Context, key string, value int) error
}

// Sampler is the part of the sensor sampler the loop drives.
type Sampler interface {
	Activate() error
	Deactivate()
}

// StopReason says why the loop stopped.
type StopReason string

const (
	// ReasonRequested is an explicit Stop call.
	ReasonRequested StopReason = "requested"
	// ReasonModeAutomatic means the device switched to automatic brightness.
	ReasonModeAutomatic StopReason = "mode_automatic"
	// ReasonBrightnessOverride means brightness was changed by someone else.
	ReasonBrightnessOverride StopReason = "brightness_override"
)

// External reports whether the reason is an outside takeover.
func (r StopReason) External() bool {
	return r == ReasonModeAutomatic || r == ReasonBrightnessOverride
}

// Lifecycle is told whenever the loop stops, whatever the reason.
type Lifecycle interface {
	LoopStopped(reason StopReason)
}

// LifecycleFunc adapts a function to Lifecycle.
type LifecycleFunc func(StopReason)

// LoopStopped calls f.
func (f LifecycleFunc) LoopStopped(r StopReason) { f(r) }

// Logger defines the logging interface used by the Loop.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type noopPreferences struct{}

func (noopPreferences) Load(_ context.Context, _ string, def int) (int, error) { return def, nil }
func (noopPreferences) Save(context.Context, string, int) error               { return nil }
