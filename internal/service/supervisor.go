package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sgnexus/autobright/internal/control"
	"github.com/sgnexus/autobright/internal/state"
)

// Loop is the part of control.Loop the supervisor drives.
type Loop interface {
	Start(ctx context.Context) error
	Stop()
	Running() bool
	Increase(ctx context.Context) error
	Decrease(ctx context.Context) error
	SetLevel(ctx context.Context, level int) error
	SetSenseInterval(ctx context.Context, d time.Duration) error
	SetScreenOn(on bool)
}

// Logger defines the logging interface used by the Supervisor.
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

// Status describes the supervised loop.
type Status struct {
	Running        bool           `json:"running"`
	ScreenOn       bool           `json:"screen_on"`
	LastStopReason string         `json:"last_stop_reason,omitempty"`
	LastStopAt     *time.Time     `json:"last_stop_at,omitempty"`
	Snapshot       state.Snapshot `json:"-"`
}

// Supervisor owns the control loop's lifecycle.
type Supervisor struct {
	store  *state.Store
	now    func() time.Time
	logger Logger

	mu         sync.Mutex
	loop       Loop
	screenOn   bool
	lastReason control.StopReason
	lastStopAt time.Time
}

// New creates a Supervisor for store. The loop is attached with Attach,
// because the loop itself needs the supervisor as its Lifecycle.
func New(store *state.Store) *Supervisor {
	return &Supervisor{
		store:    store,
		now:      time.Now,
		logger:   noopLogger{},
		screenOn: true,
	}
}

// Attach sets the supervised loop.
func (s *Supervisor) Attach(loop Loop) {
	s.mu.Lock()
	s.loop = loop
	s.mu.Unlock()
}

// SetLogger sets the logger for the supervisor.
func (s *Supervisor) SetLogger(logger Logger) {
	s.mu.Lock()
	s.logger = logger
	s.mu.Unlock()
}

func (s *Supervisor) get() (Loop, Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loop, s.logger
}

// LoopStopped implements control.Lifecycle.
func (s *Supervisor) LoopStopped(reason control.StopReason) {
	s.mu.Lock()
	s.lastReason = reason
	s.lastStopAt = s.now()
	logger := s.logger
	s.mu.Unlock()

	if reason.External() {
		logger.Info("brightness control handed back, enable again to resume", "reason", string(reason))
	}
}

// Enable starts the loop. Enabling a running loop is not an error.
func (s *Supervisor) Enable(ctx context.Context) error {
	loop, logger := s.get()
	if loop == nil {
		return fmt.Errorf("%w: no loop attached", control.ErrMissingDependency)
	}

	err := loop.Start(ctx)
	if errors.Is(err, control.ErrAlreadyRunning) {
		return nil
	}
	if err != nil {
		logger.Error("enabling brightness control", "error", err)
		return err
	}
	return nil
}

// Disable stops the loop. Disabling a stopped loop is a no-op.
func (s *Supervisor) Disable() {
	if loop, _ := s.get(); loop != nil {
		loop.Stop()
	}
}

// Increase raises the relative level by one step.
func (s *Supervisor) Increase(ctx context.Context) error {
	loop, _ := s.get()
	if loop == nil {
		return control.ErrMissingDependency
	}
	return loop.Increase(ctx)
}

// Decrease lowers the relative level by one step.
func (s *Supervisor) Decrease(ctx context.Context) error {
	loop, _ := s.get()
	if loop == nil {
		return control.ErrMissingDependency
	}
	return loop.Decrease(ctx)
}

// SetLevel sets the relative level.
func (s *Supervisor) SetLevel(ctx context.Context, level int) error {
	loop, _ := s.get()
	if loop == nil {
		return control.ErrMissingDependency
	}
	return loop.SetLevel(ctx, level)
}

// SetSenseInterval sets the sampler debounce interval.
func (s *Supervisor) SetSenseInterval(ctx context.Context, d time.Duration) error {
	loop, _ := s.get()
	if loop == nil {
		return control.ErrMissingDependency
	}
	return loop.SetSenseInterval(ctx, d)
}

// ScreenChanged forwards a screen power change to the loop. It is the
// display.PowerWatcher callback.
func (s *Supervisor) ScreenChanged(on bool) {
	s.mu.Lock()
	s.screenOn = on
	loop, logger := s.loop, s.logger
	s.mu.Unlock()

	logger.Debug("screen power changed", "on", on)
	if loop != nil {
		loop.SetScreenOn(on)
	}
}

// Status returns the current loop status.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	st := Status{
		ScreenOn:       s.screenOn,
		LastStopReason: string(s.lastReason),
	}
	if !s.lastStopAt.IsZero() {
		at := s.lastStopAt
		st.LastStopAt = &at
	}
	loop := s.loop
	s.mu.Unlock()

	if loop != nil {
		st.Running = loop.Running()
	}
	st.Snapshot = s.store.Snapshot()
	return st
}
