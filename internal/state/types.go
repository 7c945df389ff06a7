package state

import (
	"fmt"
	"strings"
	"time"
)

// Value ranges.
const (
	MinLevel      = 0
	MaxLevel      = 100
	MinBrightness = 0
	MaxBrightness = 255

	// UnknownLux marks "no reading since the loop last stopped".
	UnknownLux = -1.0

	// DefaultLevel is the relative level before any preference is stored.
	DefaultLevel = 50

	// DefaultSenseInterval is the minimum spacing between accepted readings.
	DefaultSenseInterval = 2000 * time.Millisecond

	// MaxSenseInterval is the longest accepted debounce interval.
	MaxSenseInterval = 24 * time.Hour

	// DefaultLuxEpsilon is the smallest lux change treated as a new value.
	DefaultLuxEpsilon = 0.1
)

// Mode is the device brightness mode.
type Mode int

const (
	// ModeManual means brightness is whatever was last written.
	ModeManual Mode = iota
	// ModeAutomatic means the platform's own auto-brightness is in charge.
	ModeAutomatic
)

// String returns the lowercase mode name.
func (m Mode) String() string {
	switch m {
	case ModeManual:
		return "manual"
	case ModeAutomatic:
		return "automatic"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(b []byte) error {
	parsed, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// ParseMode parses "manual" or "automatic" (case-insensitive, "auto" accepted).
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "manual", "0":
		return ModeManual, nil
	case "automatic", "auto", "1":
		return ModeAutomatic, nil
	default:
		return ModeManual, fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

// Snapshot is a point-in-time copy of every value in the Store.
type Snapshot struct {
	RelativeLevel  int           `json:"relative_level"`
	Lux            float64       `json:"lux"`
	Brightness     int           `json:"brightness"`
	Mode           Mode          `json:"mode"`
	SenseInterval  time.Duration `json:"sense_interval"`
	ServiceEnabled bool          `json:"service_enabled"`
}

// LuxKnown reports whether a reading has been accepted since the last reset.
func (s Snapshot) LuxKnown() bool {
	return s.Lux >= 0
}

func defaultSnapshot() Snapshot {
	return Snapshot{
		RelativeLevel: DefaultLevel,
		Lux:           UnknownLux,
		Mode:          ModeManual,
		SenseInterval: DefaultSenseInterval,
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ClampLevel limits v to [MinLevel, MaxLevel].
func ClampLevel(v int) int { return clampInt(v, MinLevel, MaxLevel) }

// ClampBrightness limits v to [MinBrightness, MaxBrightness].
func ClampBrightness(v int) int { return clampInt(v, MinBrightness, MaxBrightness) }
