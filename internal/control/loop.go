package control

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sgnexus/autobright/internal/feedback"
	"github.com/sgnexus/autobright/internal/state"
	"github.com/sgnexus/autobright/internal/strategy"
)

// DefaultStep is the Increase/Decrease increment.
const DefaultStep = 10

// Deps are the collaborators of a Loop. Store, Gateway, Sampler and
// Strategy are required; the rest default to no-ops.
type Deps struct {
	Store     *state.Store
	Gateway   Gateway
	Sampler   Sampler
	Strategy  strategy.Strategy
	Prefs     Preferences
	Feedback  feedback.Sink
	Lifecycle Lifecycle
	Logger    Logger

	// Step is the Increase/Decrease increment. Zero means DefaultStep.
	Step int

	// Now stamps feedback signals. Nil means time.Now.
	Now func() time.Time
}

// trigger records what caused a recompute.
type trigger int

const (
	triggerStart trigger = iota
	triggerLevel
	triggerLux
	triggerScreen
)

// Loop is the brightness control loop. Create it with New; it is idle
// until Start.
type Loop struct {
	store     *state.Store
	gateway   Gateway
	sampler   Sampler
	strategy  strategy.Strategy
	prefs     Preferences
	feedback  feedback.Sink
	lifecycle Lifecycle
	logger    Logger
	step      int
	now       func() time.Time

	mu          sync.Mutex
	running     bool
	epoch       uint64 // bumped on every Start and stop; observers carry the epoch they belong to
	handle      state.Handle
	lastWritten int
	screenOn    bool
}

// New validates deps and returns an idle Loop.
func New(deps Deps) (*Loop, error) {
	switch {
	case deps.Store == nil:
		return nil, fmt.Errorf("%w: store", ErrMissingDependency)
	case deps.Gateway == nil:
		return nil, fmt.Errorf("%w: gateway", ErrMissingDependency)
	case deps.Sampler == nil:
		return nil, fmt.Errorf("%w: sampler", ErrMissingDependency)
	case deps.Strategy == nil:
		return nil, fmt.Errorf("%w: strategy", ErrMissingDependency)
	}

	l := &Loop{
		store:     deps.Store,
		gateway:   deps.Gateway,
		sampler:   deps.Sampler,
		strategy:  deps.Strategy,
		prefs:     deps.Prefs,
		feedback:  deps.Feedback,
		lifecycle: deps.Lifecycle,
		logger:    deps.Logger,
		step:      deps.Step,
		now:       deps.Now,
		screenOn:  true,
	}
	if l.prefs == nil {
		l.prefs = noopPreferences{}
	}
	if l.feedback == nil {
		l.feedback = feedback.Discard
	}
	if l.lifecycle == nil {
		l.lifecycle = LifecycleFunc(func(StopReason) {})
	}
	if l.logger == nil {
		l.logger = noopLogger{}
	}
	if l.step <= 0 {
		l.step = DefaultStep
	}
	if l.now == nil {
		l.now = time.Now
	}
	return l, nil
}

// Running reports whether the loop is active.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// Start takes control of the display.
//
// It restores the persisted preferences, forces manual mode, adopts the
// real brightness as the last written value, subscribes to the store,
// activates the sampler and applies an initial recompute. Failing to force
// manual mode aborts the start: without it the loop has no authority.
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return ErrAlreadyRunning
	}
	l.mu.Unlock()

	l.restorePreferences(ctx)

	if err := l.gateway.WriteMode(state.ModeManual); err != nil {
		return fmt.Errorf("forcing manual brightness mode: %w", err)
	}
	l.store.SetMode(state.ModeManual)

	if b, err := l.gateway.ReadBrightness(); err != nil {
		l.logger.Warn("reading brightness at start, keeping last known value", "error", err)
	} else {
		l.store.SetBrightness(b)
	}
	current := l.store.Brightness()

	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return ErrAlreadyRunning
	}
	l.running = true
	l.epoch++
	ep := l.epoch
	l.lastWritten = current
	l.mu.Unlock()

	l.store.SetServiceEnabled(true)
	h := l.store.Subscribe(l.observer(ep))

	l.mu.Lock()
	if l.epoch != ep {
		// Stopped by an event delivered during Subscribe.
		l.mu.Unlock()
		l.store.Unsubscribe(h)
		return ErrStartInterrupted
	}
	l.handle = h
	screenOn := l.screenOn
	l.mu.Unlock()

	if screenOn {
		if err := l.sampler.Activate(); err != nil {
			l.logger.Warn("activating sampler", "error", err)
		}
	}

	l.logger.Info("control loop started",
		"level", l.store.RelativeLevel(),
		"brightness", current,
		"sense_interval", l.store.SenseInterval().String(),
	)

	l.recompute(ep, triggerStart)
	return nil
}

// restorePreferences loads the persisted level and sense interval into the store.
func (l *Loop) restorePreferences(ctx context.Context) {
	level, err := l.prefs.Load(ctx, PrefRelativeLevel, l.store.RelativeLevel())
	if err != nil {
		l.logger.Warn("loading relative level preference", "error", err)
	} else {
		l.store.SetRelativeLevel(level)
	}

	ms, err := l.prefs.Load(ctx, PrefSenseIntervalMs, int(l.store.SenseInterval().Milliseconds()))
	if err != nil {
		l.logger.Warn("loading sense interval preference", "error", err)
		return
	}
	if _, err := l.store.SetSenseInterval(time.Duration(ms) * time.Millisecond); err != nil {
		l.logger.Warn("ignoring stored sense interval", "value_ms", ms, "error", err)
	}
}

// Stop releases the display. It is a no-op when not running.
func (l *Loop) Stop() {
	l.stop(ReasonRequested)
}

func (l *Loop) stop(reason StopReason) {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.running = false
	l.epoch++
	h := l.handle
	l.handle = 0
	level := l.lastWritten
	l.mu.Unlock()

	l.sampler.Deactivate()
	if h != 0 {
		l.store.Unsubscribe(h)
	}
	l.store.SetServiceEnabled(false)
	if l.store.SubscriberCount() == 0 {
		l.store.SetLux(state.UnknownLux)
	}

	if reason.External() {
		l.logger.Info("control loop stopped by external override", "reason", string(reason))
		l.feedback.Emit(feedback.Signal{
			Kind:       feedback.KindStoppedExternalOverride,
			Reason:     string(reason),
			Level:      l.store.RelativeLevel(),
			Brightness: l.store.Brightness(),
			At:         l.now(),
		})
	} else {
		l.logger.Info("control loop stopped", "reason", string(reason), "last_written", level)
	}

	l.lifecycle.LoopStopped(reason)
}

// observer returns the store observer for one run of the loop.
func (l *Loop) observer(ep uint64) state.Observer {
	return func(ev state.Event) {
		if !l.current(ep) {
			return
		}

		switch e := ev.(type) {
		case state.RelativeLevelChanged:
			l.recompute(ep, triggerLevel)
		case state.LuxChanged:
			l.recompute(ep, triggerLux)
		case state.ModeChanged:
			if e.New == state.ModeAutomatic {
				l.stop(ReasonModeAutomatic)
			}
		case state.BrightnessChanged:
			l.mu.Lock()
			written := l.lastWritten
			l.mu.Unlock()
			if e.New != written {
				l.logger.Debug("brightness changed outside the loop", "value", e.New, "last_written", written)
				l.stop(ReasonBrightnessOverride)
			}
		}
	}
}

// current reports whether ep is the live run.
func (l *Loop) current(ep uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running && l.epoch == ep
}

// recompute derives and applies the target brightness for the current state.
func (l *Loop) recompute(ep uint64, why trigger) {
	snap := l.store.Snapshot()

	var (
		target   int
		boundary feedback.Kind
	)
	switch snap.RelativeLevel {
	case state.MinLevel:
		target, boundary = state.MinBrightness, feedback.KindBoundaryMin
	case state.MaxLevel:
		target, boundary = state.MaxBrightness, feedback.KindBoundaryMax
	}

	if boundary != "" {
		l.sampler.Deactivate()
		if why == triggerLevel || why == triggerStart {
			l.feedback.Emit(feedback.Signal{
				Kind:       boundary,
				Level:      snap.RelativeLevel,
				Brightness: target,
				At:         l.now(),
			})
		}
	} else {
		l.ensureSampling(ep)
		if !snap.LuxKnown() {
			// Nothing to map yet; the first accepted reading recomputes.
			l.logger.Debug("no lux reading yet, keeping brightness", "level", snap.RelativeLevel)
			return
		}
		target = l.strategy.ComputeBrightness(snap)
	}

	l.apply(ep, target, snap.Brightness)
}

// ensureSampling activates the sampler unless the screen is off.
func (l *Loop) ensureSampling(ep uint64) {
	l.mu.Lock()
	ok := l.running && l.epoch == ep && l.screenOn
	l.mu.Unlock()
	if !ok {
		return
	}
	if err := l.sampler.Activate(); err != nil {
		l.logger.Warn("activating sampler", "error", err)
	}
}

// apply writes target through the gateway when it differs from current.
// lastWritten is updated before the write so the resulting store event is
// recognised as the loop's own; a failed write restores it.
func (l *Loop) apply(ep uint64, target, current int) {
	if target == current {
		return
	}

	l.mu.Lock()
	if !l.running || l.epoch != ep {
		l.mu.Unlock()
		return
	}
	prev := l.lastWritten
	l.lastWritten = target
	l.mu.Unlock()

	if err := l.gateway.WriteBrightness(target); err != nil {
		l.mu.Lock()
		if l.lastWritten == target {
			l.lastWritten = prev
		}
		l.mu.Unlock()
		l.logger.Warn("writing brightness failed", "target", target, "error", err)
		return
	}

	l.store.SetBrightness(target)
	l.logger.Debug("brightness applied", "value", target)
}

// Increase raises the relative level by one step and persists it.
func (l *Loop) Increase(ctx context.Context) error {
	return l.SetLevel(ctx, l.store.RelativeLevel()+l.step)
}

// Decrease lowers the relative level by one step and persists it.
func (l *Loop) Decrease(ctx context.Context) error {
	return l.SetLevel(ctx, l.store.RelativeLevel()-l.step)
}

// SetLevel stores level clamped to [0,100] and persists it. A running loop
// reacts through its store subscription.
func (l *Loop) SetLevel(ctx context.Context, level int) error {
	level = state.ClampLevel(level)
	l.store.SetRelativeLevel(level)
	if err := l.prefs.Save(ctx, PrefRelativeLevel, level); err != nil {
		return fmt.Errorf("saving relative level: %w", err)
	}
	return nil
}

// SetSenseInterval stores and persists a new debounce interval. It takes
// effect the next time the sampler pauses.
func (l *Loop) SetSenseInterval(ctx context.Context, d time.Duration) error {
	if _, err := l.store.SetSenseInterval(d); err != nil {
		return err
	}
	if err := l.prefs.Save(ctx, PrefSenseIntervalMs, int(d.Milliseconds())); err != nil {
		return fmt.Errorf("saving sense interval: %w", err)
	}
	return nil
}

// SetScreenOn pauses sensing while the screen is off and resumes it, with
// a recompute, when the screen comes back.
func (l *Loop) SetScreenOn(on bool) {
	l.mu.Lock()
	changed := l.screenOn != on
	l.screenOn = on
	running := l.running
	ep := l.epoch
	l.mu.Unlock()

	if !changed || !running {
		return
	}

	if !on {
		l.logger.Debug("screen off, pausing sensing")
		l.sampler.Deactivate()
		return
	}
	l.logger.Debug("screen on, resuming sensing")
	l.recompute(ep, triggerScreen)
}
