package telemetry

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sgnexus/autobright/internal/feedback"
	"github.com/sgnexus/autobright/internal/history"
	"github.com/sgnexus/autobright/internal/infrastructure/mqtt"
	"github.com/sgnexus/autobright/internal/state"
)

const (
	defaultQueueSize    = 64
	historyWriteTimeout = 2 * time.Second
)

// MetricsWriter is the part of the InfluxDB client the Recorder uses.
type MetricsWriter interface {
	WriteLux(lux float64, at time.Time)
	WriteBrightness(brightness, level int, at time.Time)
	WriteControlEvent(kind, reason string, at time.Time)
}

// Publisher publishes JSON to MQTT.
type Publisher interface {
	PublishJSON(topic string, v any, retained bool) error
}

// HistoryWriter persists history entries.
type HistoryWriter interface {
	Record(ctx context.Context, e history.Entry) error
}

// Logger defines the logging interface used by the Recorder.
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

// Options configures a Recorder. Every sink is optional.
type Options struct {
	Metrics   MetricsWriter
	Publisher Publisher
	History   HistoryWriter
	Logger    Logger

	// QueueSize bounds pending records. Zero means 64.
	QueueSize int

	// Now stamps records. Nil means time.Now.
	Now func() time.Time
}

// record is one unit of queued work.
type record struct {
	ev     state.Event // nil for signals and the initial state
	signal *feedback.Signal
	snap   state.Snapshot
	at     time.Time
}

// Recorder mirrors store changes into the configured sinks.
type Recorder struct {
	store     *state.Store
	metrics   MetricsWriter
	publisher Publisher
	history   HistoryWriter
	logger    Logger
	now       func() time.Time

	queue   chan record
	dropped atomic.Uint64

	mu     sync.Mutex
	handle state.Handle
}

// New creates a Recorder for store. It does nothing until Start and Run.
func New(store *state.Store, opts Options) *Recorder {
	size := opts.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	r := &Recorder{
		store:     store,
		metrics:   opts.Metrics,
		publisher: opts.Publisher,
		history:   opts.History,
		logger:    opts.Logger,
		now:       opts.Now,
		queue:     make(chan record, size),
	}
	if r.logger == nil {
		r.logger = noopLogger{}
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// Start subscribes to the store and queues the current state so the
// retained MQTT topic is populated straight away. Calling Start twice is
// a no-op.
func (r *Recorder) Start() {
	r.mu.Lock()
	if r.handle != 0 {
		r.mu.Unlock()
		return
	}
	r.handle = r.store.SubscribePassive(r.observe)
	r.mu.Unlock()

	r.enqueue(record{snap: r.store.Snapshot(), at: r.now()})
}

// Stop unsubscribes from the store. Queued records are still processed
// by Run until its context ends.
func (r *Recorder) Stop() {
	r.mu.Lock()
	h := r.handle
	r.handle = 0
	r.mu.Unlock()

	if h != 0 {
		r.store.Unsubscribe(h)
	}
}

// Dropped returns how many records were discarded because the queue was full.
func (r *Recorder) Dropped() uint64 {
	return r.dropped.Load()
}

// Emit implements feedback.Sink so control signals reach InfluxDB.
func (r *Recorder) Emit(sig feedback.Signal) {
	s := sig
	at := sig.At
	if at.IsZero() {
		at = r.now()
	}
	r.enqueue(record{signal: &s, snap: r.store.Snapshot(), at: at})
}

func (r *Recorder) observe(ev state.Event) {
	r.enqueue(record{ev: ev, snap: r.store.Snapshot(), at: r.now()})
}

func (r *Recorder) enqueue(rec record) {
	select {
	case r.queue <- rec:
	default:
		if n := r.dropped.Add(1); n == 1 || n%100 == 0 {
			r.logger.Warn("telemetry queue full, dropping records", "dropped", n)
		}
	}
}

// Run processes queued records until ctx is cancelled. Records still
// queued at that point are flushed first.
func (r *Recorder) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			r.drain()
			return
		case rec := <-r.queue:
			r.process(rec)
		}
	}
}

func (r *Recorder) drain() {
	for {
		select {
		case rec := <-r.queue:
			r.process(rec)
		default:
			return
		}
	}
}

func (r *Recorder) process(rec record) {
	switch {
	case rec.signal != nil:
		if r.metrics != nil {
			r.metrics.WriteControlEvent(string(rec.signal.Kind), rec.signal.Reason, rec.at)
		}
		return
	case rec.ev == nil:
		r.publishState(rec)
		return
	}

	r.writeMetrics(rec)
	r.publishState(rec)
	r.writeHistory(rec)
}

func (r *Recorder) writeMetrics(rec record) {
	if r.metrics == nil {
		return
	}
	switch e := rec.ev.(type) {
	case state.LuxChanged:
		if e.New >= 0 {
			r.metrics.WriteLux(e.New, rec.at)
		}
	case state.BrightnessChanged, state.RelativeLevelChanged:
		r.metrics.WriteBrightness(rec.snap.Brightness, rec.snap.RelativeLevel, rec.at)
	}
}

func (r *Recorder) publishState(rec record) {
	if r.publisher == nil {
		return
	}
	topic := mqtt.Topics{}.State()
	if err := r.publisher.PublishJSON(topic, NewStatePayload(rec.snap, rec.at), true); err != nil {
		r.logger.Debug("publishing state", "topic", topic, "error", err)
	}
}

// writeHistory stores every change except lux, which arrives once per
// sense interval and is kept as a column of the other rows instead.
func (r *Recorder) writeHistory(rec record) {
	if r.history == nil {
		return
	}
	if _, ok := rec.ev.(state.LuxChanged); ok {
		return
	}

	oldValue, newValue := eventValues(rec.ev)
	ctx, cancel := context.WithTimeout(context.Background(), historyWriteTimeout)
	defer cancel()

	err := r.history.Record(ctx, history.Entry{
		RecordedAt: rec.at,
		Key:        string(rec.ev.Key()),
		OldValue:   oldValue,
		NewValue:   newValue,
		Level:      rec.snap.RelativeLevel,
		Lux:        rec.snap.Lux,
		Brightness: rec.snap.Brightness,
	})
	if err != nil {
		r.logger.Warn("recording brightness history", "key", string(rec.ev.Key()), "error", err)
	}
}

// eventValues renders the old and new values of ev as text.
func eventValues(ev state.Event) (oldValue, newValue string) {
	switch e := ev.(type) {
	case state.RelativeLevelChanged:
		return fmt.Sprint(e.Old), fmt.Sprint(e.New)
	case state.LuxChanged:
		return fmt.Sprint(e.Old), fmt.Sprint(e.New)
	case state.BrightnessChanged:
		return fmt.Sprint(e.Old), fmt.Sprint(e.New)
	case state.ModeChanged:
		return e.Old.String(), e.New.String()
	case state.SenseIntervalChanged:
		return e.Old.String(), e.New.String()
	case state.ServiceEnabledChanged:
		return fmt.Sprint(e.Old), fmt.Sprint(e.New)
	default:
		return "", fmt.Sprint(ev.Value())
	}
}
