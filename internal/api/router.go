package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// defaultWSPath is used when the WebSocket path is not configured.
const defaultWSPath = "/ws"

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)

	wsPath := s.wsCfg.Path
	if wsPath == "" {
		wsPath = defaultWSPath
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)
		r.Get("/state-root", s.handleStateRoot)

		r.Get("/devices/{id}", s.handleGetDevice)

		r.Route("/groups/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetGroup)
			r.Get("/members", s.handleListMembers)
		})

		r.Route("/schedules", func(r chi.Router) {
			r.Get("/due", s.handleDueSchedules)
			r.Get("/{id}", s.handleGetSchedule)
		})

		r.Route("/journal", func(r chi.Router) {
			r.Get("/", s.handleListJournal)
			r.Get("/{seq}", s.handleGetJournalEntry)
		})

		r.Get(wsPath, s.handleWebSocket)
	})

	return r
}

// handleHealth returns the server health status with the ledger position.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"height":  s.ledger.Height(),
	})
}
