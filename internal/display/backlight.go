package display

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sys/unix"

	"github.com/sgnexus/autobright/internal/state"
)

// sysfs attribute names under a backlight device directory.
const (
	attrBrightness    = "brightness"
	attrMaxBrightness = "max_brightness"
	attrPower         = "bl_power"
)

// fbBlankUnblank is the bl_power value for a powered screen.
const fbBlankUnblank = 0

// DefaultPollInterval is used when NewBacklight gets a non-positive interval.
const DefaultPollInterval = 500 * time.Millisecond

// Logger defines the logging interface used by the display backends.
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

// Backlight is a sysfs backlight gateway.
//
// Values are scaled between the device range [0, max_brightness] and
// [0, 255]. When max_brightness is below 255 the scaling is lossy, so the
// last written value is remembered and reported back as long as the raw
// attribute still holds what was written. Without that, reading back a
// value the loop just wrote could look like an outside change.
type Backlight struct {
	dir          string
	modeFile     string
	pollInterval time.Duration
	max          int

	mu        sync.Mutex
	lastRaw   int
	lastValue int
	logger    Logger
}

// NewBacklight opens the backlight device at dir. modeFile holds the
// brightness mode; it need not exist yet.
func NewBacklight(dir, modeFile string, pollInterval time.Duration) (*Backlight, error) {
	maxRaw, err := readInt(filepath.Join(dir, attrMaxBrightness))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, dir, err)
	}
	if maxRaw <= 0 {
		return nil, fmt.Errorf("%w: %s: max_brightness is %d", ErrUnavailable, dir, maxRaw)
	}
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &Backlight{
		dir:          dir,
		modeFile:     modeFile,
		pollInterval: pollInterval,
		max:          maxRaw,
		lastRaw:      -1,
		logger:       noopLogger{},
	}, nil
}

// SetLogger sets the logger for the backlight.
func (b *Backlight) SetLogger(logger Logger) {
	b.mu.Lock()
	b.logger = logger
	b.mu.Unlock()
}

func (b *Backlight) log() Logger {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.logger
}

// MaxRaw returns the device's max_brightness.
func (b *Backlight) MaxRaw() int {
	return b.max
}

// ReadBrightness returns the current brightness in [0, 255].
func (b *Backlight) ReadBrightness() (int, error) {
	raw, err := readInt(filepath.Join(b.dir, attrBrightness))
	if err != nil {
		return 0, fmt.Errorf("reading backlight brightness: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if raw == b.lastRaw {
		return b.lastValue, nil
	}
	return b.fromRaw(raw), nil
}

// WriteBrightness sets brightness v, clamped to [0, 255].
func (b *Backlight) WriteBrightness(v int) error {
	v = state.ClampBrightness(v)
	raw := b.toRaw(v)
	path := filepath.Join(b.dir, attrBrightness)

	if err := checkWritable(path); err != nil {
		return err
	}
	if err := writeAttr(path, strconv.Itoa(raw)); err != nil {
		return fmt.Errorf("writing backlight brightness: %w", err)
	}

	b.mu.Lock()
	b.lastRaw = raw
	b.lastValue = v
	b.mu.Unlock()
	return nil
}

// ReadMode returns the brightness mode. A missing mode file means nothing
// has claimed automatic control, so the mode is manual.
func (b *Backlight) ReadMode() (state.Mode, error) {
	data, err := os.ReadFile(b.modeFile)
	if errors.Is(err, fs.ErrNotExist) {
		return state.ModeManual, nil
	}
	if err != nil {
		return state.ModeManual, fmt.Errorf("reading brightness mode: %w", err)
	}
	m, err := state.ParseMode(strings.TrimSpace(string(data)))
	if err != nil {
		return state.ModeManual, fmt.Errorf("%w: mode file %s: %v", ErrInvalidValue, b.modeFile, err)
	}
	return m, nil
}

// WriteMode records the brightness mode, creating the mode file if needed.
func (b *Backlight) WriteMode(m state.Mode) error {
	if err := os.MkdirAll(filepath.Dir(b.modeFile), 0o755); err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return fmt.Errorf("%w: %s", ErrPermissionDenied, b.modeFile)
		}
		return fmt.Errorf("creating mode file directory: %w", err)
	}
	if err := writeAttr(b.modeFile, m.String()+"\n"); err != nil {
		return fmt.Errorf("writing brightness mode: %w", err)
	}
	return nil
}

// ScreenOn reports whether the backlight is powered. Devices without
// bl_power are treated as always on.
func (b *Backlight) ScreenOn() (bool, error) {
	v, err := readInt(filepath.Join(b.dir, attrPower))
	if errors.Is(err, fs.ErrNotExist) {
		return true, nil
	}
	if err != nil {
		return true, fmt.Errorf("reading backlight power: %w", err)
	}
	return v == fbBlankUnblank, nil
}

// Watch reports brightness and mode changes made by anyone, including this
// process. The mode file's directory is watched with fsnotify; brightness
// is polled because sysfs attributes do not raise inotify events.
func (b *Backlight) Watch(onChange func(state.Event)) (func(), error) {
	brightness, err := b.ReadBrightness()
	if err != nil {
		return nil, err
	}
	mode, err := b.ReadMode()
	if err != nil {
		b.log().Warn("initial brightness mode unreadable", "error", err)
	}

	var events chan fsnotify.Event
	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		if addErr := watcher.Add(filepath.Dir(b.modeFile)); addErr != nil {
			b.log().Debug("mode file directory not watchable, polling only", "error", addErr)
			_ = watcher.Close()
			watcher = nil
		}
	} else {
		b.log().Warn("fsnotify unavailable, polling only", "error", err)
		watcher = nil
	}
	if watcher != nil {
		events = watcher.Events
	}

	stopCh := make(chan struct{})
	w := &watchState{b: b, onChange: onChange, stopCh: stopCh, brightness: brightness, mode: mode}

	go func() {
		ticker := time.NewTicker(b.pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-stopCh:
				return
			case ev, ok := <-events:
				if !ok {
					events = nil
					continue
				}
				if filepath.Clean(ev.Name) == filepath.Clean(b.modeFile) {
					w.checkMode()
				}
			case <-ticker.C:
				w.checkBrightness()
				w.checkMode()
			}
		}
	}()

	// The stop func may run on the watch goroutine itself (an observer
	// reacting to a change can drop the last subscription), so it must not
	// wait for the goroutine to exit.
	var once sync.Once
	return func() {
		once.Do(func() {
			close(stopCh)
			if watcher != nil {
				_ = watcher.Close()
			}
		})
	}, nil
}

// watchState is owned by the Watch goroutine.
type watchState struct {
	b          *Backlight
	onChange   func(state.Event)
	stopCh     <-chan struct{}
	brightness int
	mode       state.Mode
}

func (w *watchState) emit(ev state.Event) {
	select {
	case <-w.stopCh:
	default:
		w.onChange(ev)
	}
}

func (w *watchState) checkBrightness() {
	v, err := w.b.ReadBrightness()
	if err != nil {
		w.b.log().Debug("polling brightness", "error", err)
		return
	}
	if v != w.brightness {
		ev := state.BrightnessChanged{Old: w.brightness, New: v}
		w.brightness = v
		w.emit(ev)
	}
}

func (w *watchState) checkMode() {
	m, err := w.b.ReadMode()
	if err != nil {
		w.b.log().Debug("polling brightness mode", "error", err)
		return
	}
	if m != w.mode {
		ev := state.ModeChanged{Old: w.mode, New: m}
		w.mode = m
		w.emit(ev)
	}
}

func (b *Backlight) toRaw(v int) int {
	return int(math.Round(float64(v) * float64(b.max) / float64(state.MaxBrightness)))
}

func (b *Backlight) fromRaw(raw int) int {
	return state.ClampBrightness(int(math.Round(float64(raw) * float64(state.MaxBrightness) / float64(b.max))))
}

// checkWritable maps a failed write-access probe to ErrPermissionDenied.
func checkWritable(path string) error {
	err := unix.Access(path, unix.W_OK)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, unix.EACCES), errors.Is(err, unix.EPERM), errors.Is(err, unix.EROFS):
		return fmt.Errorf("%w: %s", ErrPermissionDenied, path)
	case errors.Is(err, unix.ENOENT):
		return fmt.Errorf("%w: %s missing", ErrUnavailable, path)
	default:
		return fmt.Errorf("checking %s: %w", path, err)
	}
}

func readInt(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrInvalidValue, path)
	}
	return v, nil
}

func writeAttr(path, value string) error {
	//nolint:gosec // G306: sysfs attributes and the mode file are world-readable by convention
	err := os.WriteFile(path, []byte(value), 0o644)
	if errors.Is(err, fs.ErrPermission) {
		return fmt.Errorf("%w: %s", ErrPermissionDenied, path)
	}
	return err
}
