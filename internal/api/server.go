package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/sgnexus/autobright/internal/feedback"
	"github.com/sgnexus/autobright/internal/history"
	"github.com/sgnexus/autobright/internal/infrastructure/config"
	"github.com/sgnexus/autobright/internal/infrastructure/logging"
	"github.com/sgnexus/autobright/internal/service"
	"github.com/sgnexus/autobright/internal/state"
	"github.com/sgnexus/autobright/internal/telemetry"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Controller is the part of the service supervisor the API drives.
type Controller interface {
	Status() service.Status
	Enable(ctx context.Context) error
	Disable()
	Increase(ctx context.Context) error
	Decrease(ctx context.Context) error
	SetLevel(ctx context.Context, level int) error
	SetSenseInterval(ctx context.Context, d time.Duration) error
}

// HistoryReader reads brightness history.
type HistoryReader interface {
	Recent(ctx context.Context, limit int) ([]history.Entry, error)
}

// HealthChecker is implemented by infrastructure with an active health probe.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config     config.APIConfig
	WS         config.WebSocketConfig
	Logger     *logging.Logger
	Store      *state.Store
	Controller Controller
	History    HistoryReader            // optional
	Health     map[string]HealthChecker // optional, reported by /health
	Version    string
}

// Server is the HTTP API server.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg        config.APIConfig
	wsCfg      config.WebSocketConfig
	logger     *logging.Logger
	store      *state.Store
	controller Controller
	history    HistoryReader
	health     map[string]HealthChecker
	version    string
	hub        *Hub
	server     *http.Server
	listener   net.Listener
	handle     state.Handle
	cancel     context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("state store is required")
	}
	if deps.Controller == nil {
		return nil, fmt.Errorf("controller is required")
	}

	s := &Server{
		cfg:        deps.Config,
		wsCfg:      deps.WS,
		logger:     deps.Logger,
		store:      deps.Store,
		controller: deps.Controller,
		history:    deps.History,
		health:     deps.Health,
		version:    deps.Version,
	}
	s.hub = NewHub(s.wsCfg, s.logger)
	return s, nil
}

// FeedbackSink returns a sink that broadcasts control loop signals on the
// feedback.signal channel.
func (s *Server) FeedbackSink() feedback.Sink {
	return feedback.SinkFunc(func(sig feedback.Signal) {
		s.hub.Broadcast(ChannelFeedback, feedbackPayload{Signal: sig, Message: sig.Message()})
	})
}

// Handler returns the HTTP handler with all routes and middleware.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub, follows the state store for broadcasts and
// launches the HTTP listener in a background goroutine. The listener is
// bound before Start returns, so a port conflict is reported here.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.hub.Run(srvCtx)
	s.handle = s.store.SubscribePassive(s.broadcastState)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		s.store.Unsubscribe(s.handle)
		s.cancel()
		return fmt.Errorf("listening on %s: %w", s.server.Addr, err)
	}
	s.listener = ln
	s.logger.Info("API server listening", "address", ln.Addr().String())

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound listener address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	s.store.Unsubscribe(s.handle)
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}

// broadcastState relays a store change to state.changed subscribers.
func (s *Server) broadcastState(ev state.Event) {
	s.hub.Broadcast(ChannelState, stateChangedPayload{
		Key:   string(ev.Key()),
		Value: ev.Value(),
		State: telemetry.NewStatePayload(s.store.Snapshot(), time.Now()),
	})
}
