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

	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Prometheus exposition (no auth; scraped by the lab collector)
		if s.metrics != nil {
			r.Method(http.MethodGet, "/metrics", s.metrics)
		}

		// Agent registration authenticates with the shared agent key,
		// not an operator token: agents heartbeat long before any
		// operator logs in.
		r.Post("/devices/register", s.handleRegisterDevice)

		// Operator routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Route("/devices", func(r chi.Router) {
				r.Get("/", s.handleListDevices)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetDevice)
					r.Post("/pair", s.handlePairDevice)
					r.Post("/unpair", s.handleUnpairDevice)

					// Proxied SUT capability routes
					r.Get("/screenshot", s.handleScreenshot)
					r.Post("/action", s.handleAction)
					r.Post("/launch", s.handleLaunch)
					r.Post("/check-process", s.handleCheckProcess)
					r.Post("/kill-process", s.handleKillProcess)
					r.Get("/display/modes", s.handleDisplayModes)
					r.Post("/display/mode", s.handleSetDisplayMode)
				})
			})

			r.Route("/jobs", func(r chi.Router) {
				r.Post("/", s.handleSubmitJob)
				r.Get("/{id}", s.handleGetJob)
			})

			r.Route("/queue", func(r chi.Router) {
				r.Get("/stats", s.handleQueueStats)
				r.Get("/health", s.handleQueueHealth)
			})

			r.Route("/runs", func(r chi.Router) {
				r.Post("/", s.handleSubmitRun)
				r.Get("/", s.handleListRuns)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetRun)
					r.Post("/stop", s.handleStopRun)
					r.Get("/logs", s.handleRunLogs)
				})
			})

			r.Route("/campaigns", func(r chi.Router) {
				r.Post("/", s.handleSubmitCampaign)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetCampaign)
					r.Post("/stop", s.handleStopCampaign)
				})
			})

			// Audit trail of control-plane mutations
			if s.audit != nil {
				r.Get("/audit", s.handleAuditLog)
			}

			// WebSocket event stream (token accepted via query parameter
			// since browsers cannot set headers on WS upgrade requests)
			r.Get("/ws", s.handleWebSocket)
		})
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
