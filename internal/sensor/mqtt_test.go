package sensor

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sgnexus/autobright/internal/infrastructure/mqtt"
)

type fakeSubscriber struct {
	mu           sync.Mutex
	handlers     map[string]mqtt.MessageHandler
	subscribes   int
	unsubscribes int
	subscribeErr error
	unsubscribed chan string
}

func newFakeSubscriber() *fakeSubscriber {
	return &fakeSubscriber{
		handlers:     make(map[string]mqtt.MessageHandler),
		unsubscribed: make(chan string, 8),
	}
}

func (f *fakeSubscriber) Subscribe(topic string, _ byte, h mqtt.MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribeErr != nil {
		return f.subscribeErr
	}
	f.subscribes++
	f.handlers[topic] = h
	return nil
}

func (f *fakeSubscriber) Unsubscribe(topic string) error {
	f.mu.Lock()
	f.unsubscribes++
	delete(f.handlers, topic)
	f.mu.Unlock()
	f.unsubscribed <- topic
	return nil
}

func (f *fakeSubscriber) publish(t *testing.T, topic, payload string) error {
	t.Helper()
	f.mu.Lock()
	h := f.handlers[topic]
	f.mu.Unlock()
	if h == nil {
		t.Fatalf("no handler for %s", topic)
	}
	return h(topic, []byte(payload))
}

// =============================================================================
// Payload parsing
// =============================================================================

func TestParsePayload(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	stamped := time.Date(2024, 5, 1, 11, 59, 0, 0, time.UTC)

	tests := []struct {
		name    string
		payload string
		want    Reading
		wantErr bool
	}{
		{name: "bare number", payload: "  250.5\n", want: Reading{Lux: 250.5, Timestamp: now}},
		{name: "lux object", payload: `{"lux": 80}`, want: Reading{Lux: 80, Timestamp: now}},
		{name: "with timestamp", payload: `{"lux": 80, "timestamp": "2024-05-01T11:59:00Z"}`, want: Reading{Lux: 80, Timestamp: stamped}},
		{name: "zigbee2mqtt", payload: `{"battery": 97, "illuminance": 21000, "illuminance_lux": 126}`, want: Reading{Lux: 126, Timestamp: now}},
		{name: "illuminance only", payload: `{"illuminance": 33}`, want: Reading{Lux: 33, Timestamp: now}},
		{name: "zero lux", payload: "0", want: Reading{Lux: 0, Timestamp: now}},
		{name: "empty", payload: "", wantErr: true},
		{name: "text", payload: "bright", wantErr: true},
		{name: "negative", payload: "-3", wantErr: true},
		{name: "no lux field", payload: `{"battery": 97}`, wantErr: true},
		{name: "broken json", payload: `{"lux": `, wantErr: true},
		{name: "NaN", payload: "NaN", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePayload([]byte(tt.payload), now)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidPayload) {
					t.Errorf("ParsePayload() error = %v, want ErrInvalidPayload", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParsePayload() error = %v", err)
			}
			if got.Lux != tt.want.Lux || !got.Timestamp.Equal(tt.want.Timestamp) {
				t.Errorf("ParsePayload() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

// =============================================================================
// Subscription lifecycle
// =============================================================================

func TestMQTTSource_SubscribesWhileRegistered(t *testing.T) {
	sub := newFakeSubscriber()
	s := NewMQTTSource(sub, "home/office/lux", 1)

	var got []float64
	reg, err := s.Register(func(r Reading) { got = append(got, r.Lux) }, time.Second)
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	reg2, err := s.Register(func(Reading) {}, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if sub.subscribes != 1 {
		t.Errorf("subscribes = %d, want 1", sub.subscribes)
	}

	if err := sub.publish(t, "home/office/lux", "120"); err != nil {
		t.Fatal(err)
	}
	if err := sub.publish(t, "home/office/lux", "garbage"); !errors.Is(err, ErrInvalidPayload) {
		t.Errorf("handler error = %v, want ErrInvalidPayload", err)
	}
	if len(got) != 1 || got[0] != 120 {
		t.Errorf("readings = %v, want [120]", got)
	}

	s.Unregister(reg)
	s.Unregister(reg2)

	select {
	case topic := <-sub.unsubscribed:
		if topic != "home/office/lux" {
			t.Errorf("unsubscribed %q", topic)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("topic never unsubscribed")
	}
}

func TestMQTTSource_SubscribeFailure(t *testing.T) {
	sub := newFakeSubscriber()
	sub.subscribeErr = mqtt.ErrNotConnected
	s := NewMQTTSource(sub, "autobright/sensor/lux", 1)

	if _, err := s.Register(func(Reading) {}, 0); !errors.Is(err, mqtt.ErrNotConnected) {
		t.Fatalf("Register() error = %v, want ErrNotConnected", err)
	}

	sub.mu.Lock()
	sub.subscribeErr = nil
	sub.mu.Unlock()
	if _, err := s.Register(func(Reading) {}, 0); err != nil {
		t.Fatalf("Register() retry error = %v", err)
	}
	if sub.subscribes != 1 {
		t.Errorf("subscribes = %d, want 1", sub.subscribes)
	}
}

func TestMQTTSource_Close(t *testing.T) {
	sub := newFakeSubscriber()
	s := NewMQTTSource(sub, "autobright/sensor/lux", 0)
	if _, err := s.Register(func(Reading) {}, 0); err != nil {
		t.Fatal(err)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if sub.unsubscribes != 1 {
		t.Errorf("unsubscribes = %d, want 1", sub.unsubscribes)
	}
	if _, err := s.Register(func(Reading) {}, 0); !errors.Is(err, ErrClosed) {
		t.Errorf("Register() after Close error = %v, want ErrClosed", err)
	}
}

func TestMQTTSource_CallbackPanicRecovered(t *testing.T) {
	sub := newFakeSubscriber()
	s := NewMQTTSource(sub, "t", 0)

	called := false
	if _, err := s.Register(func(Reading) { panic("boom") }, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Register(func(Reading) { called = true }, 0); err != nil {
		t.Fatal(err)
	}

	if err := sub.publish(t, "t", "5"); err != nil {
		t.Fatal(err)
	}
	if !called {
		t.Error("second callback skipped after panic")
	}
}
