package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sgnexus/autobright/internal/api"
	"github.com/sgnexus/autobright/internal/history"
)

// ErrUnreachable is returned when the daemon cannot be contacted.
var ErrUnreachable = errors.New("cli: daemon unreachable")

// APIError is a non-2xx response from the daemon.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("daemon returned %d", e.Status)
	}
	return fmt.Sprintf("daemon returned %d: %s", e.Status, e.Message)
}

// HistoryResponse is the body of GET /history.
type HistoryResponse struct {
	Entries []history.Entry `json:"entries"`
	Count   int             `json:"count"`
}

// Client talks to the daemon's HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the daemon at server, for example
// http://127.0.0.1:8765.
func NewClient(server string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(server)
	if err != nil {
		return nil, fmt.Errorf("parsing server address: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("server address %q must start with http:// or https://", server)
	}
	return &Client{
		baseURL: strings.TrimRight(server, "/") + "/api/v1",
		http:    &http.Client{Timeout: timeout},
	}, nil
}

// WebSocketURL returns the ws:// address of the event stream.
func (c *Client) WebSocketURL(channels ...string) string {
	u := c.baseURL + "/ws"
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	default:
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	if len(channels) > 0 {
		u += "?channels=" + url.QueryEscape(strings.Join(channels, ","))
	}
	return u
}

// State returns the current controller state.
func (c *Client) State(ctx context.Context) (*api.StateResponse, error) {
	var resp api.StateResponse
	if err := c.do(ctx, http.MethodGet, "/state", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Increase raises the relative level by one step.
func (c *Client) Increase(ctx context.Context) (*api.StateResponse, error) {
	return c.mutate(ctx, http.MethodPost, "/level/increase", nil)
}

// Decrease lowers the relative level by one step.
func (c *Client) Decrease(ctx context.Context) (*api.StateResponse, error) {
	return c.mutate(ctx, http.MethodPost, "/level/decrease", nil)
}

// SetLevel sets the relative level.
func (c *Client) SetLevel(ctx context.Context, level int) (*api.StateResponse, error) {
	return c.mutate(ctx, http.MethodPut, "/level/", api.LevelRequest{Level: &level})
}

// SetSenseInterval sets the sampler debounce interval.
func (c *Client) SetSenseInterval(ctx context.Context, d time.Duration) (*api.StateResponse, error) {
	return c.mutate(ctx, http.MethodPut, "/sense-interval", api.SenseIntervalRequest{IntervalMs: int(d.Milliseconds())})
}

// Enable starts the control loop.
func (c *Client) Enable(ctx context.Context) (*api.StateResponse, error) {
	return c.mutate(ctx, http.MethodPost, "/service/start", nil)
}

// Disable stops the control loop.
func (c *Client) Disable(ctx context.Context) (*api.StateResponse, error) {
	return c.mutate(ctx, http.MethodPost, "/service/stop", nil)
}

// History returns up to limit history entries, newest first. Zero uses
// the daemon's default.
func (c *Client) History(ctx context.Context, limit int) (*HistoryResponse, error) {
	path := "/history"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var resp HistoryResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) mutate(ctx context.Context, method, path string, body any) (*api.StateResponse, error) {
	var resp api.StateResponse
	if err := c.do(ctx, method, path, body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		var e api.Error
		if json.NewDecoder(resp.Body).Decode(&e) == nil {
			apiErr.Code = e.Code
			apiErr.Message = e.Message
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
