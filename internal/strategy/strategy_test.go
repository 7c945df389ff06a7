package strategy

import (
	"errors"
	"testing"

	"github.com/sgnexus/autobright/internal/state"
)

func snap(level int, lux float64) state.Snapshot {
	return state.Snapshot{RelativeLevel: level, Lux: lux}
}

func TestDefault_KnownValues(t *testing.T) {
	tests := []struct {
		name  string
		level int
		lux   float64
		want  int
	}{
		{name: "mid level normal room", level: 50, lux: 300, want: 10},
		{name: "mid level dark", level: 50, lux: 0, want: 0},
		{name: "unknown lux is dark", level: 50, lux: state.UnknownLux, want: 0},
		{name: "lux floors", level: 50, lux: 59.9, want: 1},
		{name: "level term truncates toward zero", level: 52, lux: 300, want: 10},
		{name: "level term positive", level: 60, lux: 300, want: 14},
		{name: "level term negative", level: 40, lux: 300, want: 6},
		{name: "clamped low", level: 1, lux: 0, want: 0},
		{name: "clamped high", level: 99, lux: 100000, want: 255},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Default{}.ComputeBrightness(snap(tt.level, tt.lux))
			if got != tt.want {
				t.Errorf("ComputeBrightness(level=%d, lux=%v) = %d, want %d", tt.level, tt.lux, got, tt.want)
			}
		})
	}
}

// strategies under property test.
func allStrategies() map[string]Strategy {
	return map[string]Strategy{
		"default": Default{},
		"linear":  Linear{MaxLux: 1000},
		"banded":  Banded{MaxLux: 1000},
	}
}

var luxGrid = []float64{0, 1, 9.9, 10, 29, 30, 150, 300, 999, 1000, 1001, 5000, 20000}

func TestStrategies_RangeAndMonotonicity(t *testing.T) {
	for name, s := range allStrategies() {
		t.Run(name, func(t *testing.T) {
			for level := 1; level <= 99; level++ {
				prev := -1
				for _, lux := range luxGrid {
					got := s.ComputeBrightness(snap(level, lux))
					if got < 0 || got > 255 {
						t.Fatalf("level=%d lux=%v: %d out of range", level, lux, got)
					}
					if got < prev {
						t.Fatalf("not monotonic in lux at level=%d lux=%v: %d < %d", level, lux, got, prev)
					}
					prev = got
				}
			}

			for _, lux := range luxGrid {
				prev := -1
				for level := 1; level <= 99; level++ {
					got := s.ComputeBrightness(snap(level, lux))
					if got < prev {
						t.Fatalf("not monotonic in level at lux=%v level=%d: %d < %d", lux, level, got, prev)
					}
					prev = got
				}
			}
		})
	}
}

func TestStrategies_Deterministic(t *testing.T) {
	for name, s := range allStrategies() {
		in := snap(37, 412.5)
		if a, b := s.ComputeBrightness(in), s.ComputeBrightness(in); a != b {
			t.Errorf("%s: ComputeBrightness not deterministic: %d vs %d", name, a, b)
		}
	}
}

func TestLinear_ZeroMaxLuxFallsBack(t *testing.T) {
	got := Linear{}.ComputeBrightness(snap(0, 1000))
	if got != 255 {
		t.Errorf("Linear{} at 1000 lux = %d, want 255", got)
	}
}

func TestFunc_Clamps(t *testing.T) {
	f := Func(func(state.Snapshot) int { return 1000 })
	if got := f.ComputeBrightness(state.Snapshot{}); got != 255 {
		t.Errorf("Func result = %d, want clamped 255", got)
	}
}

func TestByName(t *testing.T) {
	tests := []struct {
		name    string
		wantErr bool
	}{
		{name: ""},
		{name: "default"},
		{name: "linear"},
		{name: "banded"},
		{name: "cubic", wantErr: true},
	}
	for _, tt := range tests {
		s, err := ByName(tt.name, 800)
		if tt.wantErr {
			if !errors.Is(err, ErrUnknownStrategy) {
				t.Errorf("ByName(%q) error = %v, want ErrUnknownStrategy", tt.name, err)
			}
			continue
		}
		if err != nil || s == nil {
			t.Errorf("ByName(%q) = %v, %v", tt.name, s, err)
		}
	}

	s, _ := ByName("linear", 800)
	if l, ok := s.(Linear); !ok || l.MaxLux != 800 {
		t.Errorf("ByName(linear) = %#v, want Linear{MaxLux: 800}", s)
	}
}
