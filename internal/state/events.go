package state

import "time"

// Key names a Store value. It is used as the event name on external
// channels (MQTT topics, websocket messages, history rows).
type Key string

// Store keys.
const (
	KeyRelativeLevel  Key = "relative_level"
	KeyLux            Key = "lux"
	KeyBrightness     Key = "brightness"
	KeyMode           Key = "mode"
	KeySenseInterval  Key = "sense_interval"
	KeyServiceEnabled Key = "service_enabled"
)

// Event is a change notification. The concrete types below are the only
// implementations.
type Event interface {
	Key() Key
	// Value returns the new value in a JSON-friendly form.
	Value() any
	isEvent()
}

// RelativeLevelChanged is emitted when the user preference moves.
type RelativeLevelChanged struct{ Old, New int }

// LuxChanged is emitted when a new illuminance reading is accepted.
type LuxChanged struct{ Old, New float64 }

// BrightnessChanged is emitted when the applied brightness changes, either
// because the loop wrote it or because something outside did.
type BrightnessChanged struct{ Old, New int }

// ModeChanged is emitted when the device brightness mode flips.
type ModeChanged struct{ Old, New Mode }

// SenseIntervalChanged is emitted when the debounce interval changes.
type SenseIntervalChanged struct{ Old, New time.Duration }

// ServiceEnabledChanged is emitted when the control loop starts or stops.
type ServiceEnabledChanged struct{ Old, New bool }

func (RelativeLevelChanged) Key() Key  { return KeyRelativeLevel }
func (LuxChanged) Key() Key            { return KeyLux }
func (BrightnessChanged) Key() Key     { return KeyBrightness }
func (ModeChanged) Key() Key           { return KeyMode }
func (SenseIntervalChanged) Key() Key  { return KeySenseInterval }
func (ServiceEnabledChanged) Key() Key { return KeyServiceEnabled }

func (e RelativeLevelChanged) Value() any  { return e.New }
func (e LuxChanged) Value() any            { return e.New }
func (e BrightnessChanged) Value() any     { return e.New }
func (e ModeChanged) Value() any           { return e.New.String() }
func (e SenseIntervalChanged) Value() any  { return e.New.Milliseconds() }
func (e ServiceEnabledChanged) Value() any { return e.New }

func (RelativeLevelChanged) isEvent()  {}
func (LuxChanged) isEvent()            {}
func (BrightnessChanged) isEvent()     {}
func (ModeChanged) isEvent()           {}
func (SenseIntervalChanged) isEvent()  {}
func (ServiceEnabledChanged) isEvent() {}

// Observer receives events. It runs on whichever goroutine is draining the
// dispatch queue and may write back into the Store.
type Observer func(Event)

// Handle identifies a subscription.
type Handle uint64

// Environment is the outside world the Store mirrors Brightness and Mode from.
type Environment interface {
	ReadBrightness() (int, error)
	ReadMode() (Mode, error)

	// Watch reports outside changes as BrightnessChanged or ModeChanged
	// events (only New is meaningful) until stop is called.
	Watch(onChange func(Event)) (stop func(), err error)
}
