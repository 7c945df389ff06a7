package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.NotFound(handleNotFound)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/state", s.handleGetState)

		r.Route("/level", func(r chi.Router) {
			r.Put("/", s.handleSetLevel)
			r.Post("/increase", s.handleIncrease)
			r.Post("/decrease", s.handleDecrease)
		})

		r.Put("/sense-interval", s.handleSetSenseInterval)

		r.Route("/service", func(r chi.Router) {
			r.Post("/start", s.handleServiceStart)
			r.Post("/stop", s.handleServiceStop)
		})

		r.Get("/history", s.handleHistory)
		r.Get("/ws", s.handleWebSocket)
	})

	return r
}
