package sensor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/sgnexus/autobright/internal/infrastructure/mqtt"
)

// Subscriber is the part of the MQTT client a remote source needs.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// MQTTSource receives illuminance readings published on an MQTT topic,
// for example by a zigbee2mqtt light sensor.
//
// The topic is subscribed while at least one callback is registered.
type MQTTSource struct {
	client Subscriber
	topic  string
	qos    byte
	now    func() time.Time
	reg    *registry

	subMu      sync.Mutex // held across broker calls
	subscribed bool

	mu     sync.Mutex
	logger Logger
}

// NewMQTTSource creates a source for topic.
func NewMQTTSource(client Subscriber, topic string, qos byte) *MQTTSource {
	return &MQTTSource{
		client: client,
		topic:  topic,
		qos:    qos,
		now:    time.Now,
		reg:    newRegistry(),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the source.
func (s *MQTTSource) SetLogger(logger Logger) {
	s.mu.Lock()
	s.logger = logger
	s.mu.Unlock()
}

func (s *MQTTSource) log() Logger {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logger
}

// Register implements Source. minInterval is ignored; the publisher decides
// the rate.
func (s *MQTTSource) Register(cb Callback, _ time.Duration) (Registration, error) {
	reg, first, err := s.reg.add(cb)
	if err != nil {
		return nil, err
	}
	if !first {
		return reg, nil
	}

	s.subMu.Lock()
	defer s.subMu.Unlock()
	if s.subscribed {
		return reg, nil
	}
	if err := s.client.Subscribe(s.topic, s.qos, s.handle); err != nil {
		s.reg.remove(reg)
		return nil, fmt.Errorf("subscribing to %s: %w", s.topic, err)
	}
	s.subscribed = true
	return reg, nil
}

// Unregister implements Source. Dropping the last registration
// unsubscribes from the broker in the background, so it is safe to call
// from inside a callback.
func (s *MQTTSource) Unregister(reg Registration) {
	if !s.reg.remove(reg) {
		return
	}
	go s.unsubscribeIdle()
}

// unsubscribeIdle drops the broker subscription unless a Register got in
// first.
func (s *MQTTSource) unsubscribeIdle() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if !s.subscribed || s.reg.count() > 0 {
		return
	}
	s.subscribed = false
	if err := s.client.Unsubscribe(s.topic); err != nil {
		s.log().Debug("unsubscribing sensor topic", "topic", s.topic, "error", err)
	}
}

// Close unsubscribes and rejects further registrations.
func (s *MQTTSource) Close() error {
	s.reg.close()
	s.subMu.Lock()
	defer s.subMu.Unlock()
	wasSubscribed := s.subscribed
	s.subscribed = false
	if wasSubscribed {
		return s.client.Unsubscribe(s.topic)
	}
	return nil
}

func (s *MQTTSource) handle(_ string, payload []byte) error {
	rd, err := ParsePayload(payload, s.now())
	if err != nil {
		return err
	}
	if s.reg.count() == 0 {
		return nil
	}
	s.reg.deliver(rd, s.log())
	return nil
}

// remotePayload is the JSON form of a remote reading. zigbee2mqtt devices
// report illuminance_lux (or only illuminance on some models).
type remotePayload struct {
	Lux            *float64  `json:"lux"`
	IlluminanceLux *float64  `json:"illuminance_lux"`
	Illuminance    *float64  `json:"illuminance"`
	Timestamp      time.Time `json:"timestamp"`
}

// ParsePayload decodes a remote reading: either a bare number or a JSON
// object with lux, illuminance_lux or illuminance and an optional RFC 3339
// timestamp. now stamps readings that carry no timestamp.
func ParsePayload(payload []byte, now time.Time) (Reading, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return Reading{}, fmt.Errorf("%w: empty", ErrInvalidPayload)
	}

	if trimmed[0] != '{' {
		v, err := strconv.ParseFloat(string(trimmed), 64)
		if err != nil {
			return Reading{}, fmt.Errorf("%w: %q", ErrInvalidPayload, trimmed)
		}
		return validReading(v, now)
	}

	var p remotePayload
	if err := json.Unmarshal(trimmed, &p); err != nil {
		return Reading{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	var lux *float64
	switch {
	case p.Lux != nil:
		lux = p.Lux
	case p.IlluminanceLux != nil:
		lux = p.IlluminanceLux
	case p.Illuminance != nil:
		lux = p.Illuminance
	default:
		return Reading{}, fmt.Errorf("%w: no illuminance field", ErrInvalidPayload)
	}
	ts := now
	if !p.Timestamp.IsZero() {
		ts = p.Timestamp
	}
	return validReading(*lux, ts)
}

func validReading(lux float64, ts time.Time) (Reading, error) {
	if math.IsNaN(lux) || math.IsInf(lux, 0) || lux < 0 {
		return Reading{}, fmt.Errorf("%w: lux %v", ErrInvalidPayload, lux)
	}
	return Reading{Lux: lux, Timestamp: ts}, nil
}
