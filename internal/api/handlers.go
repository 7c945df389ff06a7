package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/sgnexus/autobright/internal/feedback"
	"github.com/sgnexus/autobright/internal/control"
	"github.com/sgnexus/autobright/internal/service"
	"github.com/sgnexus/autobright/internal/state"
	"github.com/sgnexus/autobright/internal/telemetry"
)

const (
	// healthCheckTimeout bounds each dependency check in /health.
	healthCheckTimeout = 2 * time.Second

	maxSenseIntervalMs = int(state.MaxSenseInterval / time.Millisecond)
)

// StateResponse is returned by /state and by every mutating endpoint.
type StateResponse struct {
	State   telemetry.StatePayload `json:"state"`
	Service service.Status         `json:"service"`
}

// LevelRequest is the body of PUT /level.
type LevelRequest struct {
	Level *int `json:"level"`
}

// SenseIntervalRequest is the body of PUT /sense-interval.
type SenseIntervalRequest struct {
	IntervalMs int `json:"interval_ms"`
}

// stateChangedPayload is the state.changed WebSocket payload.
type stateChangedPayload struct {
	Key   string                 `json:"key"`
	Value any                    `json:"value"`
	State telemetry.StatePayload `json:"state"`
}

// feedbackPayload is the feedback.signal WebSocket payload.
type feedbackPayload struct {
	feedback.Signal
	Message string `json:"message"`
}

// handleHealth reports the server and dependency health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(s.health))
	healthy := true
	for name, hc := range s.health {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := hc.HealthCheck(ctx)
		cancel()
		if err != nil {
			checks[name] = err.Error()
			healthy = false
			continue
		}
		checks[name] = "ok"
	}

	status, code := "ok", http.StatusOK
	if !healthy {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":  status,
		"version": s.version,
		"checks":  checks,
	})
}

// handleGetState returns the current controller state.
func (s *Server) handleGetState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.stateResponse())
}

func (s *Server) stateResponse() StateResponse {
	st := s.controller.Status()
	return StateResponse{
		State:   telemetry.NewStatePayload(s.store.Snapshot(), time.Now()),
		Service: st,
	}
}

// handleSetLevel sets the relative level. Values outside [0,100] are clamped.
func (s *Server) handleSetLevel(w http.ResponseWriter, r *http.Request) {
	var req LevelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Level == nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "level is required")
		return
	}

	if err := s.controller.SetLevel(r.Context(), *req.Level); err != nil {
		s.logger.Warn("setting level", "level", *req.Level, "error", err)
		writeInternalError(w, "level applied but not saved: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.stateResponse())
}

// handleIncrease raises the relative level by one step.
func (s *Server) handleIncrease(w http.ResponseWriter, r *http.Request) {
	s.stepLevel(w, r, s.controller.Increase)
}

// handleDecrease lowers the relative level by one step.
func (s *Server) handleDecrease(w http.ResponseWriter, r *http.Request) {
	s.stepLevel(w, r, s.controller.Decrease)
}

func (s *Server) stepLevel(w http.ResponseWriter, r *http.Request, step func(context.Context) error) {
	if err := step(r.Context()); err != nil {
		s.logger.Warn("stepping level", "error", err)
		writeInternalError(w, "level applied but not saved: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.stateResponse())
}

// handleSetSenseInterval changes the sampler debounce interval.
func (s *Server) handleSetSenseInterval(w http.ResponseWriter, r *http.Request) {
	var req SenseIntervalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.IntervalMs <= 0 || req.IntervalMs > maxSenseIntervalMs {
		writeError(w, http.StatusBadRequest, ErrCodeValidation,
			fmt.Sprintf("interval_ms must be between 1 and %d", maxSenseIntervalMs))
		return
	}

	err := s.controller.SetSenseInterval(r.Context(), time.Duration(req.IntervalMs)*time.Millisecond)
	switch {
	case err == nil:
	case errors.Is(err, state.ErrInvalidInterval):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	default:
		s.logger.Warn("setting sense interval", "interval_ms", req.IntervalMs, "error", err)
		writeInternalError(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.stateResponse())
}

// handleServiceStart starts the control loop.
func (s *Server) handleServiceStart(w http.ResponseWriter, r *http.Request) {
	if err := s.controller.Enable(r.Context()); err != nil {
		if errors.Is(err, control.ErrStartInterrupted) {
			writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
			return
		}
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.stateResponse())
}

// handleServiceStop stops the control loop.
func (s *Server) handleServiceStop(w http.ResponseWriter, _ *http.Request) {
	s.controller.Disable()
	writeJSON(w, http.StatusOK, s.stateResponse())
}

// handleNotFound answers unknown routes with a structured error.
func handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, "no route for "+r.Method+" "+r.URL.Path)
}

// handleHistory returns recent brightness history, newest first.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "history is not available")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeBadRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	entries, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("reading brightness history", "error", err)
		writeInternalError(w, "failed to read history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}
