package state

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// Logger defines the logging interface used by the Store.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(l Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithLuxEpsilon sets the smallest lux difference treated as a change.
// Zero means exact equality; negative values are ignored.
func WithLuxEpsilon(eps float64) Option {
	return func(s *Store) {
		if eps >= 0 {
			s.luxEpsilon = eps
		}
	}
}

// WithInitial seeds the store. Values are clamped like setter input and a
// non-positive SenseInterval falls back to the default.
func WithInitial(snap Snapshot) Option {
	return func(s *Store) {
		snap.RelativeLevel = ClampLevel(snap.RelativeLevel)
		snap.Brightness = ClampBrightness(snap.Brightness)
		if snap.SenseInterval <= 0 {
			snap.SenseInterval = DefaultSenseInterval
		}
		s.snap = snap
	}
}

type subscription struct {
	handle   Handle
	observer Observer
	passive  bool
}

// pending is a queued event and the subscribers registered when it was
// committed.
type pending struct {
	ev   Event
	subs []subscription
}

// Store is the shared observable state.
//
// All public methods are safe for concurrent use.
type Store struct {
	mu          sync.Mutex // Protects every field below
	snap        Snapshot
	luxEpsilon  float64
	subs        []subscription // In subscription order
	nextHandle  Handle
	queue       []pending
	dispatching bool
	stopWatch   func()

	env    Environment
	logger Logger
}

// New creates a Store. env may be nil, in which case Brightness and Mode
// only change through the setters.
func New(env Environment, opts ...Option) *Store {
	s := &Store{
		snap:       defaultSnapshot(),
		luxEpsilon: DefaultLuxEpsilon,
		env:        env,
		logger:     noopLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetLogger sets the logger for the store.
func (s *Store) SetLogger(logger Logger) {
	s.mu.Lock()
	s.logger = logger
	s.mu.Unlock()
}

// Snapshot returns a copy of all values.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// RelativeLevel returns the user preference in [0,100].
func (s *Store) RelativeLevel() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.RelativeLevel
}

// Lux returns the last accepted reading, or UnknownLux.
func (s *Store) Lux() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.Lux
}

// Brightness returns the last applied brightness in [0,255].
func (s *Store) Brightness() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.Brightness
}

// Mode returns the mirrored device brightness mode.
func (s *Store) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.Mode
}

// SenseInterval returns the sampler debounce interval.
func (s *Store) SenseInterval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.SenseInterval
}

// ServiceEnabled reports whether the control loop is running.
func (s *Store) ServiceEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.ServiceEnabled
}

// LuxEpsilon returns the configured lux change threshold.
func (s *Store) LuxEpsilon() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.luxEpsilon
}

// SetRelativeLevel stores v clamped to [0,100]. It reports whether the value changed.
func (s *Store) SetRelativeLevel(v int) bool {
	v = ClampLevel(v)
	return s.commit(func(snap *Snapshot) Event {
		if snap.RelativeLevel == v {
			return nil
		}
		ev := RelativeLevelChanged{Old: snap.RelativeLevel, New: v}
		snap.RelativeLevel = v
		return ev
	})
}

// SetLux stores a reading. Differences within the lux epsilon are not
// changes, except to or from UnknownLux. NaN is ignored.
func (s *Store) SetLux(v float64) bool {
	if math.IsNaN(v) {
		return false
	}
	return s.commit(func(snap *Snapshot) Event {
		if s.sameLux(snap.Lux, v) {
			return nil
		}
		ev := LuxChanged{Old: snap.Lux, New: v}
		snap.Lux = v
		return ev
	})
}

// SetLuxIf is SetLux with a guard. valid runs with the store lock held,
// atomically with the write, and must not call back into the store. A
// writer that can be cancelled uses it so that a cancellation which
// completes before the write is never overwritten by it.
func (s *Store) SetLuxIf(v float64, valid func() bool) bool {
	if math.IsNaN(v) {
		return false
	}
	return s.commit(func(snap *Snapshot) Event {
		if !valid() || s.sameLux(snap.Lux, v) {
			return nil
		}
		ev := LuxChanged{Old: snap.Lux, New: v}
		snap.Lux = v
		return ev
	})
}

// sameLux must be called with s.mu held.
func (s *Store) sameLux(old, v float64) bool {
	if old == UnknownLux || v == UnknownLux {
		return old == v
	}
	return math.Abs(old-v) <= s.luxEpsilon
}

// SetBrightness stores v clamped to [0,255]. It reports whether the value changed.
func (s *Store) SetBrightness(v int) bool {
	v = ClampBrightness(v)
	return s.commit(func(snap *Snapshot) Event {
		if snap.Brightness == v {
			return nil
		}
		ev := BrightnessChanged{Old: snap.Brightness, New: v}
		snap.Brightness = v
		return ev
	})
}

// SetMode stores the device mode. It reports whether the value changed.
func (s *Store) SetMode(m Mode) bool {
	return s.commit(func(snap *Snapshot) Event {
		if snap.Mode == m {
			return nil
		}
		ev := ModeChanged{Old: snap.Mode, New: m}
		snap.Mode = m
		return ev
	})
}

// SetSenseInterval stores the debounce interval. Values that are not
// positive or exceed MaxSenseInterval are rejected with ErrInvalidInterval.
func (s *Store) SetSenseInterval(d time.Duration) (bool, error) {
	if d <= 0 || d > MaxSenseInterval {
		return false, fmt.Errorf("%w: %v", ErrInvalidInterval, d)
	}
	return s.commit(func(snap *Snapshot) Event {
		if snap.SenseInterval == d {
			return nil
		}
		ev := SenseIntervalChanged{Old: snap.SenseInterval, New: d}
		snap.SenseInterval = d
		return ev
	}), nil
}

// SetServiceEnabled records whether the control loop is running.
func (s *Store) SetServiceEnabled(v bool) bool {
	return s.commit(func(snap *Snapshot) Event {
		if snap.ServiceEnabled == v {
			return nil
		}
		ev := ServiceEnabledChanged{Old: snap.ServiceEnabled, New: v}
		snap.ServiceEnabled = v
		return ev
	})
}

// commit applies mutate under the lock; a non-nil event is queued and the
// queue drained.
func (s *Store) commit(mutate func(*Snapshot) Event) bool {
	s.mu.Lock()
	ev := mutate(&s.snap)
	if ev == nil {
		s.mu.Unlock()
		return false
	}
	subs := make([]subscription, len(s.subs))
	copy(subs, s.subs)
	s.queue = append(s.queue, pending{ev: ev, subs: subs})
	s.mu.Unlock()

	s.dispatch()
	return true
}

// dispatch drains the event queue unless another goroutine is already doing so.
// Each event goes to the subscribers of its commit that are still
// subscribed at delivery; later subscribers never see it.
func (s *Store) dispatch() {
	s.mu.Lock()
	if s.dispatching {
		s.mu.Unlock()
		return
	}
	s.dispatching = true

	for len(s.queue) > 0 {
		p := s.queue[0]
		s.queue[0] = pending{}
		s.queue = s.queue[1:]
		s.mu.Unlock()

		for _, sub := range p.subs {
			if s.subscribed(sub.handle) {
				s.deliver(sub, p.ev)
			}
		}

		s.mu.Lock()
	}

	s.queue = nil
	s.dispatching = false
	s.mu.Unlock()
}

func (s *Store) subscribed(h Handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subs {
		if sub.handle == h {
			return true
		}
	}
	return false
}

// deliver calls one observer, recovering from panics so the rest of the
// fan-out still happens.
func (s *Store) deliver(sub subscription, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			s.log().Error("observer panicked",
				"handle", uint64(sub.handle),
				"key", string(ev.Key()),
				"panic", fmt.Sprint(r),
			)
		}
	}()
	sub.observer(ev)
}

func (s *Store) log() Logger {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logger
}

// Subscribe registers an observer. The first subscriber activates the
// environment watch.
func (s *Store) Subscribe(o Observer) Handle {
	s.mu.Lock()
	h := s.add(o, false)
	first := s.activeCount() == 1
	s.mu.Unlock()

	if first {
		s.activate()
	}
	return h
}

// SubscribePassive registers an observer that receives every event but
// neither activates the environment watch nor counts in SubscriberCount.
// Recorders and API streams use it to follow the store without keeping
// it alive.
func (s *Store) SubscribePassive(o Observer) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.add(o, true)
}

// add must be called with s.mu held.
func (s *Store) add(o Observer, passive bool) Handle {
	s.nextHandle++
	h := s.nextHandle
	s.subs = append(s.subs, subscription{handle: h, observer: o, passive: passive})
	return h
}

// activeCount must be called with s.mu held.
func (s *Store) activeCount() int {
	n := 0
	for _, sub := range s.subs {
		if !sub.passive {
			n++
		}
	}
	return n
}

// Unsubscribe removes an observer. Unknown handles are ignored. Removing
// the last subscriber stops the environment watch.
func (s *Store) Unsubscribe(h Handle) {
	s.mu.Lock()
	idx := -1
	for i, sub := range s.subs {
		if sub.handle == h {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return
	}
	passive := s.subs[idx].passive
	s.subs = append(s.subs[:idx], s.subs[idx+1:]...)

	var stop func()
	if !passive && s.activeCount() == 0 {
		stop = s.stopWatch
		s.stopWatch = nil
	}
	s.mu.Unlock()

	if stop != nil {
		stop()
		s.log().Debug("environment watch stopped")
	}
}

// SubscriberCount returns the number of live, non-passive subscriptions.
func (s *Store) SubscriberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeCount()
}

// activate refreshes Brightness and Mode from the environment and starts
// watching it. It runs without the lock; a concurrent Unsubscribe or a
// second activation is detected afterwards and the extra watch discarded.
func (s *Store) activate() {
	if s.env == nil {
		return
	}
	logger := s.log()

	stop, err := s.env.Watch(s.applyExternal)
	if err != nil {
		logger.Warn("environment watch unavailable", "error", err)
		stop = nil
	}

	if stop != nil {
		s.mu.Lock()
		keep := s.activeCount() > 0 && s.stopWatch == nil
		if keep {
			s.stopWatch = stop
		}
		s.mu.Unlock()

		if !keep {
			stop()
			return
		}
	}

	if b, err := s.env.ReadBrightness(); err != nil {
		logger.Warn("reading brightness on activation", "error", err)
	} else {
		s.SetBrightness(b)
	}
	if m, err := s.env.ReadMode(); err != nil {
		logger.Warn("reading brightness mode on activation", "error", err)
	} else {
		s.SetMode(m)
	}
	logger.Debug("environment watch started")
}

// applyExternal writes an environment change through the normal setters.
func (s *Store) applyExternal(ev Event) {
	switch e := ev.(type) {
	case BrightnessChanged:
		s.SetBrightness(e.New)
	case ModeChanged:
		s.SetMode(e.New)
	default:
		s.log().Debug("ignoring environment event", "key", string(ev.Key()))
	}
}
