package display

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/sgnexus/autobright/internal/state"
)

// newFakeDevice creates a sysfs-like backlight directory.
func newFakeDevice(t *testing.T, maxRaw, raw int) (dir, modeFile string) {
	t.Helper()
	root := t.TempDir()
	dir = filepath.Join(root, "backlight", "test_backlight")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(dir, attrMaxBrightness), strconv.Itoa(maxRaw))
	writeFile(t, filepath.Join(dir, attrBrightness), strconv.Itoa(raw))
	return dir, filepath.Join(root, "run", "mode")
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content+"\n"), 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	return strings.TrimSpace(string(data))
}

// =============================================================================
// Construction
// =============================================================================

func TestNewBacklight_Unavailable(t *testing.T) {
	if _, err := NewBacklight(filepath.Join(t.TempDir(), "missing"), "", 0); !errors.Is(err, ErrUnavailable) {
		t.Errorf("NewBacklight(missing) error = %v, want ErrUnavailable", err)
	}

	dir, mode := newFakeDevice(t, 0, 0)
	if _, err := NewBacklight(dir, mode, 0); !errors.Is(err, ErrUnavailable) {
		t.Errorf("NewBacklight(max=0) error = %v, want ErrUnavailable", err)
	}
}

// =============================================================================
// Brightness
// =============================================================================

func TestBacklight_Scaling(t *testing.T) {
	tests := []struct {
		name    string
		maxRaw  int
		write   int
		wantRaw string
	}{
		{name: "identity range", maxRaw: 255, write: 128, wantRaw: "128"},
		{name: "wide range full", maxRaw: 1000, write: 255, wantRaw: "1000"},
		{name: "wide range zero", maxRaw: 1000, write: 0, wantRaw: "0"},
		{name: "narrow range", maxRaw: 10, write: 128, wantRaw: "5"},
		{name: "clamped above", maxRaw: 100, write: 400, wantRaw: "100"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir, mode := newFakeDevice(t, tt.maxRaw, 0)
			b, err := NewBacklight(dir, mode, 0)
			if err != nil {
				t.Fatal(err)
			}
			if err := b.WriteBrightness(tt.write); err != nil {
				t.Fatalf("WriteBrightness() error = %v", err)
			}
			if got := readFile(t, filepath.Join(dir, attrBrightness)); got != tt.wantRaw {
				t.Errorf("raw brightness = %q, want %q", got, tt.wantRaw)
			}
		})
	}
}

func TestBacklight_ReadScalesRaw(t *testing.T) {
	dir, mode := newFakeDevice(t, 1000, 500)
	b, err := NewBacklight(dir, mode, 0)
	if err != nil {
		t.Fatal(err)
	}

	got, err := b.ReadBrightness()
	if err != nil {
		t.Fatal(err)
	}
	if got != 128 {
		t.Errorf("ReadBrightness() = %d, want 128", got)
	}
}

func TestBacklight_RoundTripIsStable(t *testing.T) {
	dir, mode := newFakeDevice(t, 10, 0)
	b, err := NewBacklight(dir, mode, 0)
	if err != nil {
		t.Fatal(err)
	}

	if err := b.WriteBrightness(128); err != nil {
		t.Fatal(err)
	}
	got, err := b.ReadBrightness()
	if err != nil {
		t.Fatal(err)
	}
	if got != 128 {
		t.Errorf("ReadBrightness() after write = %d, want 128", got)
	}

	// Someone else moves the raw value.
	writeFile(t, filepath.Join(dir, attrBrightness), "6")
	got, err = b.ReadBrightness()
	if err != nil {
		t.Fatal(err)
	}
	if got != 153 {
		t.Errorf("ReadBrightness() after external write = %d, want 153", got)
	}
}

func TestBacklight_InvalidAttribute(t *testing.T) {
	dir, mode := newFakeDevice(t, 255, 0)
	b, err := NewBacklight(dir, mode, 0)
	if err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(dir, attrBrightness), "bright")

	if _, err := b.ReadBrightness(); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("ReadBrightness() error = %v, want ErrInvalidValue", err)
	}
}

func TestBacklight_WritePermissionDenied(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root bypasses file permissions")
	}
	dir, mode := newFakeDevice(t, 255, 0)
	b, err := NewBacklight(dir, mode, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(filepath.Join(dir, attrBrightness), 0o444); err != nil {
		t.Fatal(err)
	}

	if err := b.WriteBrightness(10); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("WriteBrightness() error = %v, want ErrPermissionDenied", err)
	}
}

// =============================================================================
// Mode and power
// =============================================================================

func TestBacklight_Mode(t *testing.T) {
	dir, modeFile := newFakeDevice(t, 255, 0)
	b, err := NewBacklight(dir, modeFile, 0)
	if err != nil {
		t.Fatal(err)
	}

	m, err := b.ReadMode()
	if err != nil {
		t.Fatalf("ReadMode() without file error = %v", err)
	}
	if m != state.ModeManual {
		t.Errorf("ReadMode() without file = %v, want manual", m)
	}

	if err := b.WriteMode(state.ModeAutomatic); err != nil {
		t.Fatalf("WriteMode() error = %v", err)
	}
	if got := readFile(t, modeFile); got != "automatic" {
		t.Errorf("mode file = %q, want automatic", got)
	}
	if m, _ := b.ReadMode(); m != state.ModeAutomatic {
		t.Errorf("ReadMode() = %v, want automatic", m)
	}

	writeFile(t, modeFile, "sideways")
	if _, err := b.ReadMode(); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("ReadMode() on garbage error = %v, want ErrInvalidValue", err)
	}
}

func TestBacklight_ScreenOn(t *testing.T) {
	dir, mode := newFakeDevice(t, 255, 0)
	b, err := NewBacklight(dir, mode, 0)
	if err != nil {
		t.Fatal(err)
	}

	if on, err := b.ScreenOn(); err != nil || !on {
		t.Errorf("ScreenOn() without bl_power = %v, %v; want true, nil", on, err)
	}

	writeFile(t, filepath.Join(dir, attrPower), "0")
	if on, _ := b.ScreenOn(); !on {
		t.Error("ScreenOn() with bl_power=0 = false")
	}

	writeFile(t, filepath.Join(dir, attrPower), "4")
	if on, _ := b.ScreenOn(); on {
		t.Error("ScreenOn() with bl_power=4 = true")
	}
}

// =============================================================================
// Watch
// =============================================================================

func waitEvent(t *testing.T, ch <-chan state.Event) state.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestBacklight_Watch(t *testing.T) {
	dir, modeFile := newFakeDevice(t, 255, 40)
	b, err := NewBacklight(dir, modeFile, 10*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if err := b.WriteMode(state.ModeManual); err != nil {
		t.Fatal(err)
	}

	events := make(chan state.Event, 16)
	stop, err := b.Watch(func(ev state.Event) { events <- ev })
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	defer stop()

	writeFile(t, filepath.Join(dir, attrBrightness), "90")
	ev := waitEvent(t, events)
	bc, ok := ev.(state.BrightnessChanged)
	if !ok {
		t.Fatalf("event = %T, want BrightnessChanged", ev)
	}
	if bc.Old != 40 || bc.New != 90 {
		t.Errorf("BrightnessChanged = %+v, want 40 -> 90", bc)
	}

	writeFile(t, modeFile, "automatic")
	ev = waitEvent(t, events)
	mc, ok := ev.(state.ModeChanged)
	if !ok {
		t.Fatalf("event = %T, want ModeChanged", ev)
	}
	if mc.New != state.ModeAutomatic {
		t.Errorf("ModeChanged.New = %v, want automatic", mc.New)
	}

	stop()
	stop()
	writeFile(t, filepath.Join(dir, attrBrightness), "10")
	select {
	case ev := <-events:
		t.Errorf("event after stop: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBacklight_WatchMissingDevice(t *testing.T) {
	dir, modeFile := newFakeDevice(t, 255, 40)
	b, err := NewBacklight(dir, modeFile, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(filepath.Join(dir, attrBrightness)); err != nil {
		t.Fatal(err)
	}

	if _, err := b.Watch(func(state.Event) {}); err == nil {
		t.Error("Watch() error = nil for missing brightness attribute")
	}
}

// =============================================================================
// PowerWatcher
// =============================================================================

func TestPowerWatcher(t *testing.T) {
	mem := NewMemory(100)
	changes := make(chan bool, 8)
	w := NewPowerWatcher(mem, 5*time.Millisecond, func(on bool) { changes <- on })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	expect := func(want bool) {
		t.Helper()
		select {
		case got := <-changes:
			if got != want {
				t.Errorf("power change = %v, want %v", got, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for power change %v", want)
		}
	}

	expect(true)
	mem.SetScreenOn(false)
	expect(false)
	mem.SetScreenOn(true)
	expect(true)

	cancel()
	<-done
}
