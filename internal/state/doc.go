// Package state holds the process-wide observable state shared by the
// autobright components.
//
// A single Store is created at process start and passed by reference to
// every component that needs it. Reads are plain typed getters. Writes go
// through typed setters that clamp or reject out-of-range input, drop
// no-op writes, and notify subscribers with a typed Event.
//
// # Delivery
//
// Events are delivered in write order through a single dispatch queue. The
// goroutine whose write finds the queue idle drains it; writes made while
// a fan-out is in progress (including writes from inside an observer) are
// appended to the queue and delivered after the current event has reached
// every subscriber. No lock is held while an observer runs.
//
// # Environment
//
// Brightness and Mode mirror the device. When the first subscriber arrives
// the Store re-reads both values from its Environment and starts watching
// for outside changes; when the last subscriber leaves the watch stops.
package state
