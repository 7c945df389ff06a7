// Package sampler turns a chatty light sensor feed into a rate-limited
// stream of lux updates.
//
// The Sampler cycles between Active (registered with the sensor) and
// Paused (unregistered, waiting out the sense interval). Every accepted
// reading is written to the store and immediately pauses sampling, so at
// most one reading per interval reaches the control loop.
package sampler

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sgnexus/autobright/internal/schedule"
	"github.com/sgnexus/autobright/internal/sensor"
)

// ErrStopped is returned by Activate after Stop.
var ErrStopped = errors.New("sampler: stopped")

// State is the sampler lifecycle state.
type State int

const (
	// Idle is not listening.
	Idle State = iota
	// Active is registered with the sensor source.
	Active
	// Paused is waiting for the debounce timer before re-registering.
	Paused
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Active:
		return "active"
	case Paused:
		return "paused"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Store is the part of the state store the sampler uses.
type Store interface {
	SetLuxIf(v float64, valid func() bool) bool
	SenseInterval() time.Duration
}

// Logger defines the logging interface used by the Sampler.
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

// Sampler debounces a sensor.Source into Store.SetLux calls.
//
// All public methods are safe for concurrent use. No lock is held while
// calling the source or writing to the store. The store takes s.mu inside
// its own lock when checking whether a reading is still current, so s.mu
// is never held while calling the store.
type Sampler struct {
	source sensor.Source
	store  Store
	sched  schedule.Scheduler

	mu           sync.Mutex
	state        State
	gen          uint64 // bumped on every transition; callbacks carry the gen they were armed with
	idles        uint64 // bumped by Deactivate and Stop only
	reg          sensor.Registration
	timer        schedule.Handle
	lastAccepted time.Time
	accepted     bool
	stopped      bool
	logger       Logger
}

// New creates an Idle sampler. A nil scheduler uses the wall clock.
func New(source sensor.Source, store Store, sched schedule.Scheduler) *Sampler {
	if sched == nil {
		sched = schedule.Real{}
	}
	return &Sampler{
		source: source,
		store:  store,
		sched:  sched,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the sampler.
func (s *Sampler) SetLogger(logger Logger) {
	s.mu.Lock()
	s.logger = logger
	s.mu.Unlock()
}

// State returns the current lifecycle state.
func (s *Sampler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Activate starts sampling. It is a no-op when already Active or Paused.
func (s *Sampler) Activate() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrStopped
	}
	if s.state != Idle {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	return s.register(Idle, 0)
}

// register moves from state `from` (with generation `fromGen` when Paused)
// to Active and registers with the source.
func (s *Sampler) register(from State, fromGen uint64) error {
	interval := s.store.SenseInterval()

	s.mu.Lock()
	if s.stopped || s.state != from || (from == Paused && s.gen != fromGen) {
		s.mu.Unlock()
		return nil
	}
	s.gen++
	g := s.gen
	s.state = Active
	s.timer = nil
	s.mu.Unlock()

	reg, err := s.source.Register(s.callback(g), interval)

	s.mu.Lock()
	if err != nil {
		if s.gen == g {
			s.gen++
			s.state = Idle
		}
		logger := s.logger
		s.mu.Unlock()
		logger.Warn("sensor registration failed", "error", err)
		return fmt.Errorf("registering sensor: %w", err)
	}
	if s.gen != g {
		// A reading, Deactivate or Stop got in before Register returned.
		s.mu.Unlock()
		s.source.Unregister(reg)
		return nil
	}
	s.reg = reg
	s.mu.Unlock()
	return nil
}

// Deactivate returns to Idle, cancelling a pending resume and dropping the
// sensor registration. Callbacks already in flight become no-ops.
func (s *Sampler) Deactivate() {
	s.mu.Lock()
	if s.state == Idle {
		s.mu.Unlock()
		return
	}
	reg, timer := s.toIdle()
	s.mu.Unlock()

	s.release(reg, timer)
}

// Stop deactivates permanently. Later Activate calls fail with ErrStopped.
func (s *Sampler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	reg, timer := s.toIdle()
	s.mu.Unlock()

	s.release(reg, timer)
}

// toIdle must be called with s.mu held.
func (s *Sampler) toIdle() (sensor.Registration, schedule.Handle) {
	s.gen++
	s.idles++
	s.state = Idle
	reg, timer := s.reg, s.timer
	s.reg, s.timer = nil, nil
	return reg, timer
}

func (s *Sampler) release(reg sensor.Registration, timer schedule.Handle) {
	if timer != nil {
		timer.Cancel()
	}
	if reg != nil {
		s.source.Unregister(reg)
	}
}

// callback returns the sensor callback for generation g.
func (s *Sampler) callback(g uint64) sensor.Callback {
	return func(r sensor.Reading) {
		interval := s.store.SenseInterval()

		s.mu.Lock()
		if s.stopped || s.state != Active || s.gen != g {
			logger := s.logger
			s.mu.Unlock()
			logger.Debug("dropping late sensor reading", "lux", r.Lux)
			return
		}

		now := s.sched.Now()
		if s.accepted && now.Sub(s.lastAccepted) < interval {
			logger := s.logger
			s.mu.Unlock()
			logger.Debug("dropping reading inside sense interval", "lux", r.Lux)
			return
		}
		s.accepted = true
		s.lastAccepted = now

		s.gen++
		pg := s.gen
		idles := s.idles
		s.state = Paused
		reg := s.reg
		s.reg = nil
		s.timer = s.sched.AfterFunc(interval, func() { s.resume(pg) })
		s.mu.Unlock()

		if reg != nil {
			s.source.Unregister(reg)
		}

		// Deactivate or Stop may have run since the lock was released; the
		// reading must not land after the loop has invalidated lux.
		s.store.SetLuxIf(r.Lux, func() bool { return s.notIdled(idles) })
	}
}

// notIdled reports whether Deactivate and Stop have not run since the
// idles count was taken. A resume in between does not count.
func (s *Sampler) notIdled(idles uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.stopped && s.idles == idles
}

// resume is the debounce timer body. A registration failure leaves the
// sampler Idle until the next Activate; register has already logged it.
func (s *Sampler) resume(pg uint64) {
	_ = s.register(Paused, pg)
}
