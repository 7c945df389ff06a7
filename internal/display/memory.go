package display

import (
	"sync"

	"github.com/sgnexus/autobright/internal/state"
)

// Memory is an in-process display. Writes made through the gateway methods
// and changes injected with Override or SetMode are all reported to
// watchers, the same as a real device would.
type Memory struct {
	mu         sync.Mutex
	brightness int
	mode       state.Mode
	screenOn   bool
	writeErr   error
	nextID     uint64
	watchers   map[uint64]func(state.Event)
}

// NewMemory creates a Memory display in manual mode with the screen on.
func NewMemory(brightness int) *Memory {
	return &Memory{
		brightness: state.ClampBrightness(brightness),
		mode:       state.ModeManual,
		screenOn:   true,
		watchers:   make(map[uint64]func(state.Event)),
	}
}

// ReadBrightness implements control.Gateway.
func (m *Memory) ReadBrightness() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.brightness, nil
}

// WriteBrightness implements control.Gateway.
func (m *Memory) WriteBrightness(v int) error {
	m.mu.Lock()
	if m.writeErr != nil {
		err := m.writeErr
		m.mu.Unlock()
		return err
	}
	m.mu.Unlock()
	m.setBrightness(v)
	return nil
}

// Override changes brightness as an outside agent would.
func (m *Memory) Override(v int) {
	m.setBrightness(v)
}

// FailWrites makes subsequent WriteBrightness calls return err. Nil clears it.
func (m *Memory) FailWrites(err error) {
	m.mu.Lock()
	m.writeErr = err
	m.mu.Unlock()
}

func (m *Memory) setBrightness(v int) {
	v = state.ClampBrightness(v)
	m.mu.Lock()
	old := m.brightness
	m.brightness = v
	watchers := m.snapshotWatchers()
	m.mu.Unlock()

	if old != v {
		notify(watchers, state.BrightnessChanged{Old: old, New: v})
	}
}

// ReadMode implements control.Gateway.
func (m *Memory) ReadMode() (state.Mode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode, nil
}

// WriteMode implements control.Gateway.
func (m *Memory) WriteMode(mode state.Mode) error {
	m.SetMode(mode)
	return nil
}

// SetMode changes the mode and notifies watchers.
func (m *Memory) SetMode(mode state.Mode) {
	m.mu.Lock()
	old := m.mode
	m.mode = mode
	watchers := m.snapshotWatchers()
	m.mu.Unlock()

	if old != mode {
		notify(watchers, state.ModeChanged{Old: old, New: mode})
	}
}

// ScreenOn reports the simulated screen power.
func (m *Memory) ScreenOn() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.screenOn, nil
}

// SetScreenOn changes the simulated screen power.
func (m *Memory) SetScreenOn(on bool) {
	m.mu.Lock()
	m.screenOn = on
	m.mu.Unlock()
}

// Watch implements state.Environment. Callbacks run synchronously on the
// goroutine that made the change.
func (m *Memory) Watch(onChange func(state.Event)) (func(), error) {
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	m.watchers[id] = onChange
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.watchers, id)
		m.mu.Unlock()
	}, nil
}

// snapshotWatchers must be called with m.mu held.
func (m *Memory) snapshotWatchers() []func(state.Event) {
	out := make([]func(state.Event), 0, len(m.watchers))
	for _, w := range m.watchers {
		out = append(out, w)
	}
	return out
}

func notify(watchers []func(state.Event), ev state.Event) {
	for _, w := range watchers {
		w(ev)
	}
}
