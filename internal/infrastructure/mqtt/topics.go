package mqtt

import "fmt"

// TopicPrefix is the root of every topic this daemon uses.
const TopicPrefix = "autobright"

// Topics provides builders for autobright MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.Event("boundary_max")
//	// Returns: "autobright/event/boundary_max"
type Topics struct{}

// State returns the retained topic carrying the full controller snapshot.
//
// Example: autobright/state
func (Topics) State() string {
	return TopicPrefix + "/state"
}

// Event returns the topic for a feedback signal of the given kind.
//
// Example: autobright/event/stopped_external_override
func (Topics) Event(kind string) string {
	return fmt.Sprintf("%s/event/%s", TopicPrefix, kind)
}

// Command returns the topic remote controls publish commands on.
//
// Example: autobright/command
func (Topics) Command() string {
	return TopicPrefix + "/command"
}

// SensorLux returns the default topic for remote illuminance readings.
//
// Example: autobright/sensor/lux
func (Topics) SensorLux() string {
	return TopicPrefix + "/sensor/lux"
}

// SystemStatus returns the retained online/offline status topic (also the LWT).
//
// Example: autobright/status
func (Topics) SystemStatus() string {
	return TopicPrefix + "/status"
}
