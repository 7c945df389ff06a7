package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sgnexus/autobright/internal/control"
	"github.com/sgnexus/autobright/internal/infrastructure/mqtt"
	"github.com/sgnexus/autobright/internal/state"
)

// =============================================================================
// Test helpers
// =============================================================================

// fakeLoop records calls made by the supervisor.
type fakeLoop struct {
	mu       sync.Mutex
	running  bool
	startErr error
	calls    []string
	level    int
	interval time.Duration
	screen   []bool
	lc       control.Lifecycle
}

func (f *fakeLoop) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeLoop) Start(context.Context) error {
	f.record("start")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	if f.running {
		return control.ErrAlreadyRunning
	}
	f.running = true
	return nil
}

func (f *fakeLoop) Stop() {
	f.record("stop")
	f.mu.Lock()
	was := f.running
	f.running = false
	lc := f.lc
	f.mu.Unlock()
	if was && lc != nil {
		lc.LoopStopped(control.ReasonRequested)
	}
}

func (f *fakeLoop) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *fakeLoop) Increase(context.Context) error {
	f.record("increase")
	return nil
}

func (f *fakeLoop) Decrease(context.Context) error {
	f.record("decrease")
	return nil
}

func (f *fakeLoop) SetLevel(_ context.Context, level int) error {
	f.record("set_level")
	f.mu.Lock()
	f.level = level
	f.mu.Unlock()
	return nil
}

func (f *fakeLoop) SetSenseInterval(_ context.Context, d time.Duration) error {
	f.record("set_sense_interval")
	f.mu.Lock()
	f.interval = d
	f.mu.Unlock()
	return nil
}

func (f *fakeLoop) SetScreenOn(on bool) {
	f.mu.Lock()
	f.screen = append(f.screen, on)
	f.mu.Unlock()
}

func (f *fakeLoop) allCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func newSupervisor(t *testing.T) (*Supervisor, *fakeLoop) {
	t.Helper()
	s := New(state.New(nil))
	s.now = func() time.Time { return time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC) }
	loop := &fakeLoop{lc: s}
	s.Attach(loop)
	return s, loop
}

var _ control.Lifecycle = (*Supervisor)(nil)

// =============================================================================
// Lifecycle
// =============================================================================

func TestSupervisor_EnableDisable(t *testing.T) {
	s, loop := newSupervisor(t)
	ctx := context.Background()

	if err := s.Enable(ctx); err != nil {
		t.Fatalf("Enable() error = %v", err)
	}
	if err := s.Enable(ctx); err != nil {
		t.Errorf("second Enable() error = %v, want nil", err)
	}
	if !s.Status().Running {
		t.Error("Status().Running = false after Enable")
	}

	s.Disable()
	st := s.Status()
	if st.Running {
		t.Error("Status().Running = true after Disable")
	}
	if st.LastStopReason != string(control.ReasonRequested) || st.LastStopAt == nil {
		t.Errorf("Status() = %+v, want requested stop recorded", st)
	}
	if got := loop.allCalls(); len(got) != 3 {
		t.Errorf("calls = %v", got)
	}
}

func TestSupervisor_EnableError(t *testing.T) {
	s, loop := newSupervisor(t)
	loop.startErr = errors.New("permission denied")

	if err := s.Enable(context.Background()); err == nil {
		t.Error("Enable() error = nil, want start failure")
	}
}

func TestSupervisor_NoLoop(t *testing.T) {
	s := New(state.New(nil))
	if err := s.Enable(context.Background()); !errors.Is(err, control.ErrMissingDependency) {
		t.Errorf("Enable() error = %v, want ErrMissingDependency", err)
	}
	if err := s.Increase(context.Background()); !errors.Is(err, control.ErrMissingDependency) {
		t.Errorf("Increase() error = %v, want ErrMissingDependency", err)
	}
	s.Disable()
	s.ScreenChanged(false)
	if s.Status().Running {
		t.Error("Status().Running = true without a loop")
	}
}

func TestSupervisor_ExternalStopRecorded(t *testing.T) {
	s, _ := newSupervisor(t)
	s.LoopStopped(control.ReasonBrightnessOverride)

	if got := s.Status().LastStopReason; got != "brightness_override" {
		t.Errorf("LastStopReason = %q, want brightness_override", got)
	}
}

func TestSupervisor_ScreenChanged(t *testing.T) {
	s, loop := newSupervisor(t)
	s.ScreenChanged(false)
	s.ScreenChanged(true)

	if len(loop.screen) != 2 || loop.screen[0] || !loop.screen[1] {
		t.Errorf("screen calls = %v, want [false true]", loop.screen)
	}
	if !s.Status().ScreenOn {
		t.Error("Status().ScreenOn = false")
	}
}

// =============================================================================
// Commands
// =============================================================================

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    string
		wantErr error
	}{
		{name: "bare name", payload: "increase", want: CommandIncrease},
		{name: "bare name with whitespace", payload: " Decrease\n", want: CommandDecrease},
		{name: "json", payload: `{"command":"enable"}`, want: CommandEnable},
		{name: "set level", payload: `{"command":"set_level","level":70}`, want: CommandSetLevel},
		{name: "set level without level", payload: `{"command":"set_level"}`, wantErr: ErrInvalidCommand},
		{name: "sense interval", payload: `{"command":"set_sense_interval","interval_ms":1500}`, want: CommandSetSenseInterval},
		{name: "sense interval zero", payload: `{"command":"set_sense_interval","interval_ms":0}`, wantErr: ErrInvalidCommand},
		{name: "sense interval too long", payload: `{"command":"set_sense_interval","interval_ms":9223372036854775807}`, wantErr: ErrInvalidCommand},
		{name: "empty", payload: "  ", wantErr: ErrInvalidCommand},
		{name: "bad json", payload: `{"command":`, wantErr: ErrInvalidCommand},
		{name: "missing name", payload: `{"level":3}`, wantErr: ErrInvalidCommand},
		{name: "unknown", payload: "reboot", wantErr: ErrUnknownCommand},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := ParseCommand([]byte(tt.payload))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("ParseCommand() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseCommand() error = %v", err)
			}
			if cmd.Name != tt.want {
				t.Errorf("Name = %q, want %q", cmd.Name, tt.want)
			}
		})
	}
}

func TestSupervisor_HandleCommand(t *testing.T) {
	s, loop := newSupervisor(t)

	payloads := []string{
		"enable",
		"increase",
		"decrease",
		`{"command":"set_level","level":70}`,
		`{"command":"set_sense_interval","interval_ms":1500}`,
		"disable",
	}
	for _, p := range payloads {
		if err := s.HandleCommand("autobright/command", []byte(p)); err != nil {
			t.Fatalf("HandleCommand(%s) error = %v", p, err)
		}
	}

	want := []string{"start", "increase", "decrease", "set_level", "set_sense_interval", "stop"}
	got := loop.allCalls()
	if len(got) != len(want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("call %d = %s, want %s", i, got[i], want[i])
		}
	}
	if loop.level != 70 || loop.interval != 1500*time.Millisecond {
		t.Errorf("level = %d interval = %v", loop.level, loop.interval)
	}

	if err := s.HandleCommand("autobright/command", []byte("reboot")); !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("HandleCommand(reboot) error = %v, want ErrUnknownCommand", err)
	}
}

type fakeSubscriber struct {
	topic   string
	qos     byte
	handler mqtt.MessageHandler
	err     error
}

func (f *fakeSubscriber) Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error {
	f.topic, f.qos, f.handler = topic, qos, handler
	return f.err
}

func TestSupervisor_SubscribeCommands(t *testing.T) {
	s, loop := newSupervisor(t)
	sub := &fakeSubscriber{}

	if err := s.SubscribeCommands(sub, 1); err != nil {
		t.Fatalf("SubscribeCommands() error = %v", err)
	}
	if sub.topic != "autobright/command" || sub.qos != 1 {
		t.Errorf("subscribed to %s qos %d", sub.topic, sub.qos)
	}

	if err := sub.handler(sub.topic, []byte("increase")); err != nil {
		t.Fatal(err)
	}
	if got := loop.allCalls(); len(got) != 1 || got[0] != "increase" {
		t.Errorf("calls = %v", got)
	}

	failing := &fakeSubscriber{err: errors.New("not connected")}
	if err := s.SubscribeCommands(failing, 1); err == nil {
		t.Error("SubscribeCommands() error = nil for failing subscriber")
	}
}

type fakeCommandClient struct {
	healthErr error
	topics    map[string]bool
}

func (f *fakeCommandClient) HealthCheck(context.Context) error { return f.healthErr }

func (f *fakeCommandClient) HasSubscription(topic string) bool { return f.topics[topic] }

func TestCommandCheck(t *testing.T) {
	tests := []struct {
		name    string
		client  *fakeCommandClient
		wantErr error
	}{
		{
			name:   "connected and subscribed",
			client: &fakeCommandClient{topics: map[string]bool{"autobright/command": true}},
		},
		{
			name:    "subscription lost",
			client:  &fakeCommandClient{topics: map[string]bool{"autobright/sensor/lux": true}},
			wantErr: ErrNotSubscribed,
		},
		{
			name:    "broker down",
			client:  &fakeCommandClient{healthErr: mqtt.ErrNotConnected},
			wantErr: mqtt.ErrNotConnected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CommandCheck{Client: tt.client}.HealthCheck(context.Background())
			if tt.wantErr == nil && err != nil {
				t.Errorf("HealthCheck() error = %v, want nil", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("HealthCheck() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

// =============================================================================
// Maintenance
// =============================================================================

type fakePruner struct {
	mu      sync.Mutex
	cutoffs []time.Time
	err     error
}

func (f *fakePruner) Prune(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoffs = append(f.cutoffs, cutoff)
	return 3, f.err
}

func (f *fakePruner) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cutoffs)
}

func TestSupervisor_RunHistoryRetention(t *testing.T) {
	s, _ := newSupervisor(t)
	p := &fakePruner{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.RunHistoryRetention(ctx, p, 24*time.Hour, 5*time.Millisecond)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for p.count() < 2 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for prune runs")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done

	want := time.Date(2024, 2, 29, 9, 0, 0, 0, time.UTC)
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.cutoffs[0].Equal(want) {
		t.Errorf("cutoff = %v, want %v", p.cutoffs[0], want)
	}
}

func TestSupervisor_RunHistoryRetentionDisabled(t *testing.T) {
	s, _ := newSupervisor(t)
	p := &fakePruner{}

	s.RunHistoryRetention(context.Background(), p, 0, time.Millisecond)

	if p.count() != 0 {
		t.Errorf("pruned %d times with retention disabled", p.count())
	}
}
