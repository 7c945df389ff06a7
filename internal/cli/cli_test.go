package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/viper"

	"github.com/sgnexus/autobright/internal/api"
	"github.com/sgnexus/autobright/internal/history"
	"github.com/sgnexus/autobright/internal/infrastructure/config"
	"github.com/sgnexus/autobright/internal/infrastructure/logging"
	"github.com/sgnexus/autobright/internal/service"
	"github.com/sgnexus/autobright/internal/state"
)

// ============================================================================
// Test daemon
// ============================================================================

// fakeController applies commands straight to the store.
type fakeController struct {
	store *state.Store

	mu        sync.Mutex
	running   bool
	enableErr error
}

func (f *fakeController) Status() service.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return service.Status{Running: f.running, ScreenOn: true}
}

func (f *fakeController) Enable(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.enableErr != nil {
		return f.enableErr
	}
	f.running = true
	return nil
}

func (f *fakeController) Disable() {
	f.mu.Lock()
	f.running = false
	f.mu.Unlock()
}

func (f *fakeController) Increase(context.Context) error {
	f.store.SetRelativeLevel(f.store.RelativeLevel() + 10)
	return nil
}

func (f *fakeController) Decrease(context.Context) error {
	f.store.SetRelativeLevel(f.store.RelativeLevel() - 10)
	return nil
}

func (f *fakeController) SetLevel(_ context.Context, level int) error {
	f.store.SetRelativeLevel(level)
	return nil
}

func (f *fakeController) SetSenseInterval(_ context.Context, d time.Duration) error {
	_, err := f.store.SetSenseInterval(d)
	return err
}

type fakeHistory struct {
	entries []history.Entry
}

func (f *fakeHistory) Recent(_ context.Context, limit int) ([]history.Entry, error) {
	if limit > 0 && limit < len(f.entries) {
		return f.entries[:limit], nil
	}
	return f.entries, nil
}

type testDaemon struct {
	url   string
	store *state.Store
	ctrl  *fakeController
	hist  *fakeHistory
}

// startDaemon serves the real API router over a fresh store.
func startDaemon(t *testing.T) *testDaemon {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	store := state.New(nil, state.WithInitial(state.Snapshot{
		RelativeLevel: 50,
		Lux:           state.UnknownLux,
		Brightness:    128,
		SenseInterval: 2 * time.Second,
	}))
	d := &testDaemon{
		store: store,
		ctrl:  &fakeController{store: store},
		hist:  &fakeHistory{},
	}

	srv, err := api.New(api.Deps{
		WS:         config.WebSocketConfig{MaxMessageSize: 4096, PingInterval: 30, PongTimeout: 10},
		Logger:     logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test"),
		Store:      store,
		Controller: d.ctrl,
		History:    d.hist,
		Version:    "test",
	})
	if err != nil {
		t.Fatalf("api.New() error: %v", err)
	}

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	d.url = ts.URL
	return d
}

// executeCommand runs autobrightctl against d and returns captured output.
func executeCommand(t *testing.T, d *testDaemon, args ...string) (string, error) {
	t.Helper()

	buf := new(bytes.Buffer)
	root := NewRootCommand()
	root.SetOut(buf)
	root.SetErr(buf)
	if d != nil {
		args = append([]string{"--server", d.url}, args...)
	}
	root.SetArgs(args)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := root.ExecuteContext(ctx)
	return buf.String(), err
}

// ============================================================================
// Command tree
// ============================================================================

func TestRootCommand(t *testing.T) {
	root := NewRootCommand()
	if root.Use != "autobrightctl" {
		t.Errorf("Use = %q, want autobrightctl", root.Use)
	}

	want := []string{"status", "up", "down", "set", "interval", "enable", "disable", "history", "watch"}
	have := make(map[string]bool)
	for _, cmd := range root.Commands() {
		have[cmd.Name()] = true
	}
	for _, name := range want {
		if !have[name] {
			t.Errorf("expected subcommand %q not found", name)
		}
	}
}

// ============================================================================
// Status and level
// ============================================================================

func TestStatus_Text(t *testing.T) {
	d := startDaemon(t)

	out, err := executeCommand(t, d, "status")
	if err != nil {
		t.Fatalf("status error: %v", err)
	}
	for _, want := range []string{"stopped", "50%", "128/255", "unknown", "2s"} {
		if !strings.Contains(out, want) {
			t.Errorf("output should contain %q:\n%s", want, out)
		}
	}
}

func TestStatus_JSON(t *testing.T) {
	d := startDaemon(t)
	d.store.SetLux(312.5)

	out, err := executeCommand(t, d, "status", "--json")
	if err != nil {
		t.Fatalf("status error: %v", err)
	}

	var st api.StateResponse
	if err := json.Unmarshal([]byte(out), &st); err != nil {
		t.Fatalf("unmarshal: %v\n%s", err, out)
	}
	if st.State.Lux == nil || *st.State.Lux != 312.5 {
		t.Errorf("lux = %v, want 312.5", st.State.Lux)
	}
}

func TestUpDown(t *testing.T) {
	d := startDaemon(t)

	if _, err := executeCommand(t, d, "up"); err != nil {
		t.Fatalf("up error: %v", err)
	}
	if got := d.store.RelativeLevel(); got != 60 {
		t.Errorf("after up level = %d, want 60", got)
	}

	if _, err := executeCommand(t, d, "decrease"); err != nil {
		t.Fatalf("decrease error: %v", err)
	}
	if _, err := executeCommand(t, d, "down"); err != nil {
		t.Fatalf("down error: %v", err)
	}
	if got := d.store.RelativeLevel(); got != 40 {
		t.Errorf("after two downs level = %d, want 40", got)
	}
}

func TestSet(t *testing.T) {
	tests := []struct {
		name    string
		arg     string
		wantErr bool
		want    int
	}{
		{"valid", "80", false, 80},
		{"zero", "0", false, 0},
		{"not a number", "bright", true, 50},
		{"too high", "150", true, 50},
		{"negative", "-1", true, 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := startDaemon(t)

			_, err := executeCommand(t, d, "set", "--", tt.arg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("set %s error = %v, wantErr %v", tt.arg, err, tt.wantErr)
			}
			if got := d.store.RelativeLevel(); got != tt.want {
				t.Errorf("level = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestInterval(t *testing.T) {
	d := startDaemon(t)

	if _, err := executeCommand(t, d, "interval", "500ms"); err != nil {
		t.Fatalf("interval error: %v", err)
	}
	if got := d.store.SenseInterval(); got != 500*time.Millisecond {
		t.Errorf("sense interval = %v, want 500ms", got)
	}

	for _, bad := range []string{"soon", "0s", "100us"} {
		if _, err := executeCommand(t, d, "interval", bad); err == nil {
			t.Errorf("interval %s should fail", bad)
		}
	}
}

// ============================================================================
// Service
// ============================================================================

func TestEnableDisable(t *testing.T) {
	d := startDaemon(t)

	out, err := executeCommand(t, d, "enable")
	if err != nil {
		t.Fatalf("enable error: %v", err)
	}
	if !strings.Contains(out, "running") {
		t.Errorf("enable output should report running:\n%s", out)
	}

	if _, err := executeCommand(t, d, "stop"); err != nil {
		t.Fatalf("stop error: %v", err)
	}
	if d.ctrl.Status().Running {
		t.Error("controller should be stopped")
	}
}

func TestEnable_DaemonError(t *testing.T) {
	d := startDaemon(t)
	d.ctrl.enableErr = errors.New("brightness mode is locked")

	_, err := executeCommand(t, d, "enable")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.Status != 503 || apiErr.Code != api.ErrCodeUnavailable {
		t.Errorf("APIError = %+v, want 503 unavailable", apiErr)
	}
	if !strings.Contains(apiErr.Error(), "locked") {
		t.Errorf("Error() = %q, want the daemon message", apiErr.Error())
	}
}

// ============================================================================
// History
// ============================================================================

func TestHistory(t *testing.T) {
	d := startDaemon(t)
	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	d.hist.entries = []history.Entry{
		{ID: 3, RecordedAt: at, Key: "brightness", OldValue: "100", NewValue: "140", Level: 50, Lux: 320, Brightness: 140},
		{ID: 2, RecordedAt: at, Key: "relative_level", OldValue: "40", NewValue: "50", Level: 50, Lux: -1, Brightness: 100},
		{ID: 1, RecordedAt: at, Key: "service_enabled", OldValue: "false", NewValue: "true", Level: 40, Lux: -1, Brightness: 100},
	}

	out, err := executeCommand(t, d, "history", "-n", "2")
	if err != nil {
		t.Fatalf("history error: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want header + 2:\n%s", len(lines), out)
	}
	if !strings.HasPrefix(lines[0], "TIME") {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.Contains(lines[1], "brightness") || !strings.Contains(lines[1], "320.0") {
		t.Errorf("first row = %q, want the brightness change with lux", lines[1])
	}
	if !strings.Contains(lines[2], " - ") {
		t.Errorf("second row = %q, want unknown lux shown as -", lines[2])
	}
}

func TestHistory_Empty(t *testing.T) {
	d := startDaemon(t)

	out, err := executeCommand(t, d, "history")
	if err != nil {
		t.Fatalf("history error: %v", err)
	}
	if !strings.Contains(out, "No history recorded") {
		t.Errorf("output = %q", out)
	}
}

func TestHistory_NegativeLimit(t *testing.T) {
	d := startDaemon(t)

	if _, err := executeCommand(t, d, "history", "--limit", "-3"); err == nil {
		t.Error("negative limit should fail")
	}
}

// ============================================================================
// Connection and configuration
// ============================================================================

func TestUnreachable(t *testing.T) {
	d := startDaemon(t)
	ts := httptest.NewServer(nil)
	d.url = ts.URL
	ts.Close()

	_, err := executeCommand(t, d, "status")
	if !errors.Is(err, ErrUnreachable) {
		t.Errorf("error = %v, want ErrUnreachable", err)
	}
}

func TestServerFromEnv(t *testing.T) {
	d := startDaemon(t)
	t.Setenv("AUTOBRIGHT_SERVER", d.url)

	if _, err := executeCommand(t, nil, "up"); err != nil {
		t.Fatalf("up error: %v", err)
	}
	if got := d.store.RelativeLevel(); got != 60 {
		t.Errorf("level = %d, want 60", got)
	}
}

func TestServerFromConfigFile(t *testing.T) {
	d := startDaemon(t)
	path := filepath.Join(t.TempDir(), "ctl.yaml")
	if err := os.WriteFile(path, []byte("server: "+d.url+"\ntimeout: 2s\n"), 0600); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	if _, err := executeCommand(t, nil, "--config", path, "set", "30"); err != nil {
		t.Fatalf("set error: %v", err)
	}
	if got := d.store.RelativeLevel(); got != 30 {
		t.Errorf("level = %d, want 30", got)
	}
}

func TestMissingExplicitConfig(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	if _, err := executeCommand(t, nil, "--config", "/nonexistent/ctl.yaml", "status"); err == nil {
		t.Error("an explicit config file that does not exist should fail")
	}
}

func TestNewClient(t *testing.T) {
	tests := []struct {
		server  string
		wantErr bool
		wantWS  string
	}{
		{"http://127.0.0.1:8765", false, "ws://127.0.0.1:8765/api/v1/ws"},
		{"http://localhost:8765/", false, "ws://localhost:8765/api/v1/ws"},
		{"https://panel.lan", false, "wss://panel.lan/api/v1/ws"},
		{"127.0.0.1:8765", true, ""},
		{"ftp://host", true, ""},
	}

	for _, tt := range tests {
		c, err := NewClient(tt.server, time.Second)
		if (err != nil) != tt.wantErr {
			t.Errorf("NewClient(%q) error = %v, wantErr %v", tt.server, err, tt.wantErr)
			continue
		}
		if err == nil && c.WebSocketURL() != tt.wantWS {
			t.Errorf("WebSocketURL() = %q, want %q", c.WebSocketURL(), tt.wantWS)
		}
	}
}

// ============================================================================
// Rendering
// ============================================================================

func TestLevelBar(t *testing.T) {
	tests := []struct {
		level      int
		wantFilled int
	}{
		{0, 0},
		{50, 10},
		{100, 20},
		{7, 1},
	}

	for _, tt := range tests {
		bar := levelBar(tt.level)
		if got := strings.Count(bar, "█"); got != tt.wantFilled {
			t.Errorf("levelBar(%d) filled = %d, want %d", tt.level, got, tt.wantFilled)
		}
		if got := strings.Count(bar, "█") + strings.Count(bar, "░"); got != levelBarWidth {
			t.Errorf("levelBar(%d) width = %d, want %d", tt.level, got, levelBarWidth)
		}
	}
}

func TestRenderState_StopReason(t *testing.T) {
	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	st := &api.StateResponse{
		Service: service.Status{LastStopReason: "brightness_override", LastStopAt: &at, ScreenOn: false},
	}
	st.State.Mode = "manual"

	out := renderState(st)
	for _, want := range []string{"stopped", "brightness_override", "Screen", "off"} {
		if !strings.Contains(out, want) {
			t.Errorf("output should contain %q:\n%s", want, out)
		}
	}
}

// fakeEvents replays messages, then fails with err.
type fakeEvents struct {
	msgs []api.WSMessage
	err  error
}

func (f *fakeEvents) ReadJSON(v any) error {
	if len(f.msgs) == 0 {
		return f.err
	}
	data, err := json.Marshal(f.msgs[0])
	if err != nil {
		return err
	}
	f.msgs = f.msgs[1:]
	return json.Unmarshal(data, v)
}

func TestStream(t *testing.T) {
	events := &fakeEvents{
		msgs: []api.WSMessage{
			{Type: api.WSTypePong},
			{Type: api.WSTypeEvent, EventType: api.ChannelState, Timestamp: "t1",
				Payload: map[string]any{"key": "brightness", "value": 140}},
			{Type: api.WSTypeEvent, EventType: api.ChannelFeedback, Timestamp: "t2",
				Payload: map[string]any{"kind": "boundary_max", "message": "Max brightness set"}},
		},
		err: &websocket.CloseError{Code: websocket.CloseNormalClosure},
	}

	a := &app{v: viper.New()}
	var buf bytes.Buffer
	notCancelled := func() error { return nil }
	if err := a.stream(notCancelled, events, &buf); err != nil {
		t.Fatalf("stream error: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2:\n%s", len(lines), buf.String())
	}
	if !strings.Contains(lines[0], "brightness") || !strings.Contains(lines[0], "140") {
		t.Errorf("state line = %q", lines[0])
	}
	if !strings.Contains(lines[1], "Max brightness set") {
		t.Errorf("feedback line = %q", lines[1])
	}
}

func TestStream_ReadError(t *testing.T) {
	a := &app{v: viper.New()}
	events := &fakeEvents{err: errors.New("connection reset")}

	err := a.stream(func() error { return nil }, events, &bytes.Buffer{})
	if err == nil {
		t.Fatal("stream should report an unexpected read error")
	}

	// The same failure after cancellation is a clean exit.
	err = a.stream(func() error { return context.Canceled }, events, &bytes.Buffer{})
	if err != nil {
		t.Errorf("stream after cancel = %v, want nil", err)
	}
}
