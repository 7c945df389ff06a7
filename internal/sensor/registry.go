package sensor

import (
	"fmt"
	"runtime/debug"
	"sync"
)

// Logger defines the logging interface used by sensor sources.
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

// registry tracks callbacks for a Source. It never holds its lock while
// invoking a callback, so callbacks may Unregister themselves.
type registry struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]Callback
	closed bool
}

func newRegistry() *registry {
	return &registry{subs: make(map[uint64]Callback)}
}

// add stores cb and reports whether it is the first subscriber.
func (r *registry) add(cb Callback) (Registration, bool, error) {
	if cb == nil {
		return nil, false, fmt.Errorf("sensor: nil callback")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, false, ErrClosed
	}
	r.nextID++
	r.subs[r.nextID] = cb
	return registration(r.nextID), len(r.subs) == 1, nil
}

// remove drops reg and reports whether no subscribers remain. Unknown or
// already removed registrations report false.
func (r *registry) remove(reg Registration) bool {
	if reg == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.subs[reg.ID()]; !ok {
		return false
	}
	delete(r.subs, reg.ID())
	return len(r.subs) == 0
}

// close drops every subscriber and reports whether any were registered.
func (r *registry) close() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	had := len(r.subs) > 0
	r.closed = true
	r.subs = make(map[uint64]Callback)
	return had
}

func (r *registry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

// deliver calls every current subscriber with rd. A panicking callback is
// logged and the rest still run.
func (r *registry) deliver(rd Reading, logger Logger) {
	r.mu.Lock()
	subs := make([]Callback, 0, len(r.subs))
	for _, cb := range r.subs {
		subs = append(subs, cb)
	}
	r.mu.Unlock()

	for _, cb := range subs {
		safeCall(cb, rd, logger)
	}
}

func safeCall(cb Callback, rd Reading, logger Logger) {
	defer func() {
		if p := recover(); p != nil {
			logger.Error("sensor callback panicked",
				"panic", fmt.Sprint(p),
				"stack", string(debug.Stack()),
			)
		}
	}()
	cb(rd)
}
