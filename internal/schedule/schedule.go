// Package schedule provides cancellable one-shot tasks behind an interface
// so timing-sensitive components can be driven by a fake clock in tests.
package schedule

import (
	"sync"
	"time"
)

// Handle is a pending task.
type Handle interface {
	// Cancel prevents the task from running. It reports whether the task
	// was still pending; cancelling a fired or cancelled task is a no-op.
	Cancel() bool
}

// Scheduler runs functions after a delay.
type Scheduler interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Handle
}

// Real is the wall-clock Scheduler backed by time.AfterFunc.
type Real struct{}

// Now returns time.Now().
func (Real) Now() time.Time { return time.Now() }

// AfterFunc runs fn on its own goroutine after d.
func (Real) AfterFunc(d time.Duration, fn func()) Handle {
	return realHandle{t: time.AfterFunc(d, fn)}
}

type realHandle struct{ t *time.Timer }

func (h realHandle) Cancel() bool { return h.t.Stop() }

// Fake is a manually advanced Scheduler. Tasks run synchronously inside
// Advance, in deadline order, on the caller's goroutine.
type Fake struct {
	mu    sync.Mutex
	now   time.Time
	tasks []*fakeTask
}

type fakeTask struct {
	at        time.Time
	fn        func()
	cancelled bool
	fired     bool
	f         *Fake
}

// NewFake returns a Fake starting at start.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

// Now returns the fake time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// AfterFunc registers fn to run once the fake clock passes now+d.
func (f *Fake) AfterFunc(d time.Duration, fn func()) Handle {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTask{at: f.now.Add(d), fn: fn, f: f}
	f.tasks = append(f.tasks, t)
	return t
}

func (t *fakeTask) Cancel() bool {
	t.f.mu.Lock()
	defer t.f.mu.Unlock()
	if t.fired || t.cancelled {
		return false
	}
	t.cancelled = true
	return true
}

// Pending returns the number of tasks that have neither fired nor been cancelled.
func (f *Fake) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.tasks {
		if !t.fired && !t.cancelled {
			n++
		}
	}
	return n
}

// Advance moves the clock forward by d, running every task that comes due.
// Tasks scheduled by a running task are honoured if they fall within d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)
	f.mu.Unlock()

	for {
		f.mu.Lock()
		next := f.nextDue(target)
		if next == nil {
			f.now = target
			f.compact()
			f.mu.Unlock()
			return
		}
		next.fired = true
		if next.at.After(f.now) {
			f.now = next.at
		}
		fn := next.fn
		f.mu.Unlock()

		fn()
	}
}

// nextDue must be called with f.mu held.
func (f *Fake) nextDue(target time.Time) *fakeTask {
	var next *fakeTask
	for _, t := range f.tasks {
		if t.fired || t.cancelled || t.at.After(target) {
			continue
		}
		if next == nil || t.at.Before(next.at) {
			next = t
		}
	}
	return next
}

// compact must be called with f.mu held.
func (f *Fake) compact() {
	live := f.tasks[:0]
	for _, t := range f.tasks {
		if !t.fired && !t.cancelled {
			live = append(live, t)
		}
	}
	for i := len(live); i < len(f.tasks); i++ {
		f.tasks[i] = nil
	}
	f.tasks = live
}
