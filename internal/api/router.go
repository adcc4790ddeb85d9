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
	r.Use(s.bodySizeLimitMiddleware)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/status", s.handleStatus)

		r.Route("/messages", func(r chi.Router) {
			r.Get("/", s.handleGetMessages)
			r.Post("/", s.handleSendMessage)
			r.Delete("/", s.handleClearMessages)
		})

		r.Route("/topics", func(r chi.Router) {
			r.Get("/", s.handleListTopics)
		})

		r.Route("/subscriptions", func(r chi.Router) {
			r.Get("/", s.handleListSubscriptions)
			r.Post("/", s.handleSubscribe)
			r.Delete("/", s.handleUnsubscribe)
		})

		// WebSocket stream (live messages + topic activity)
		r.Get(s.cfg.WebSocket.Path, s.handleWebSocket)
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
