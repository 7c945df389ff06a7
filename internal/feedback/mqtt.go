package feedback

import (
	"github.com/sgnexus/autobright/internal/infrastructure/mqtt"
)

// Publisher is the part of the MQTT client MQTTSink needs.
type Publisher interface {
	PublishJSON(topic string, v any, retained bool) error
}

// MQTTSink publishes each signal to autobright/event/<kind>. Publish
// failures are logged and dropped.
type MQTTSink struct {
	Publisher Publisher
	Logger    Logger
}

type eventPayload struct {
	Signal
	Message string `json:"message"`
}

// Emit implements Sink.
func (m MQTTSink) Emit(sig Signal) {
	topic := mqtt.Topics{}.Event(string(sig.Kind))
	err := m.Publisher.PublishJSON(topic, eventPayload{Signal: sig, Message: sig.Message()}, false)
	if err != nil && m.Logger != nil {
		m.Logger.Error("publishing feedback signal", "topic", topic, "error", err)
	}
}
