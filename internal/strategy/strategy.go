// Package strategy maps a state snapshot to a target display brightness.
//
// Strategies are pure: no side effects, no internal state, and the same
// snapshot always yields the same result in [0,255].
package strategy

import (
	"errors"
	"fmt"
	"math"

	"github.com/sgnexus/autobright/internal/state"
)

// ErrUnknownStrategy is returned by ByName for an unrecognised name.
var ErrUnknownStrategy = errors.New("strategy: unknown")

// Strategy computes a target brightness.
type Strategy interface {
	ComputeBrightness(snap state.Snapshot) int
}

// Func adapts a plain function to Strategy. The result is clamped.
type Func func(snap state.Snapshot) int

// ComputeBrightness calls f and clamps the result.
func (f Func) ComputeBrightness(snap state.Snapshot) int {
	return state.ClampBrightness(f(snap))
}

// Default is the reference mapping:
//
//	floor(lux/30) + (level-50)*3/7
//
// with truncating integer division in the level term. An unknown (negative)
// lux counts as darkness.
type Default struct{}

// ComputeBrightness implements Strategy.
func (Default) ComputeBrightness(snap state.Snapshot) int {
	luxTerm := int(math.Floor(nonNegative(snap.Lux) / 30))
	levelTerm := (snap.RelativeLevel - 50) * 3 / 7
	return state.ClampBrightness(luxTerm + levelTerm)
}

// Linear scales lux against a full-scale illuminance and adds up to a
// third of the range from the relative level.
type Linear struct {
	MaxLux float64
}

// ComputeBrightness implements Strategy.
func (l Linear) ComputeBrightness(snap state.Snapshot) int {
	maxLux := l.MaxLux
	if maxLux <= 0 {
		maxLux = 1000
	}
	luxTerm := nonNegative(snap.Lux) * state.MaxBrightness / maxLux
	levelTerm := snap.RelativeLevel * state.MaxBrightness / 100 / 3
	return state.ClampBrightness(int(luxTerm) + levelTerm)
}

// Banded is a coarse three-band mapping: dark rooms get at most half the
// level, normal rooms a fixed base plus half the level, and anything above
// MaxLux full brightness.
type Banded struct {
	MaxLux float64
}

// ComputeBrightness implements Strategy.
func (b Banded) ComputeBrightness(snap state.Snapshot) int {
	maxLux := b.MaxLux
	if maxLux <= 0 {
		maxLux = 1000
	}
	lux := nonNegative(snap.Lux)
	level := state.ClampLevel(snap.RelativeLevel)

	switch {
	case lux < 10:
		if level < 20 {
			return 0
		}
		return level / 2
	case lux > maxLux:
		return state.MaxBrightness
	default:
		return 70 + level/2
	}
}

// ByName returns the strategy registered under name. maxLux parameterises
// the strategies that need a full-scale illuminance.
func ByName(name string, maxLux float64) (Strategy, error) {
	switch name {
	case "", "default":
		return Default{}, nil
	case "linear":
		return Linear{MaxLux: maxLux}, nil
	case "banded":
		return Banded{MaxLux: maxLux}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
}

func nonNegative(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	return v
}
