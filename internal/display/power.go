package display

import (
	"context"
	"time"
)

// PowerSource reports whether the screen is powered.
type PowerSource interface {
	ScreenOn() (bool, error)
}

// PowerWatcher polls a PowerSource and reports screen on/off transitions.
type PowerWatcher struct {
	source   PowerSource
	interval time.Duration
	onChange func(on bool)
	logger   Logger
}

// NewPowerWatcher creates a watcher that calls onChange with the initial
// power state and then on every transition.
func NewPowerWatcher(source PowerSource, interval time.Duration, onChange func(on bool)) *PowerWatcher {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &PowerWatcher{
		source:   source,
		interval: interval,
		onChange: onChange,
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the watcher.
func (w *PowerWatcher) SetLogger(logger Logger) {
	w.logger = logger
}

// Run polls until ctx is cancelled. Read errors are logged and the last
// known state is kept.
func (w *PowerWatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	var (
		known bool
		last  bool
	)
	check := func() {
		on, err := w.source.ScreenOn()
		if err != nil {
			w.logger.Debug("reading screen power", "error", err)
			return
		}
		if known && on == last {
			return
		}
		known, last = true, on
		w.logger.Info("screen power changed", "on", on)
		w.onChange(on)
	}

	check()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			check()
		}
	}
}
