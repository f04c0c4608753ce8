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

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Auth endpoints (no auth required)
		r.Post("/auth/login", s.handleLogin)

		// WebSocket upgrade. Browsers cannot set Authorization headers
		// on WebSocket requests, so auth is a single-use ticket from
		// POST /auth/ws-ticket, validated in the handler.
		r.Get("/ws", s.handleWebSocket)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			// WS ticket requires a valid token
			r.Post("/auth/ws-ticket", s.handleWSTicket)

			// Device fleet
			r.Route("/devices", func(r chi.Router) {
				r.Get("/", s.handleListDevices)
				r.Get("/stats", s.handleDeviceStats)

				r.Route("/{hostname}", func(r chi.Router) {
					r.Get("/", s.handleGetDevice)
					r.Delete("/", s.handleDeleteDevice)
					r.Post("/open", s.handleOpenDoor)
					r.Post("/userlist", s.handleRequestUserList)
					r.Post("/sync", s.handleSyncDevice)
				})
			})

			// Users and permissions
			r.Route("/users", func(r chi.Router) {
				r.Get("/", s.handleListUsers)
				r.Post("/", s.handleCreateUser)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetUser)
					r.Patch("/", s.handleUpdateUser)
					r.Delete("/", s.handleDeleteUser)

					r.Get("/permissions", s.handleListPermissions)
					r.Put("/permissions/{hostname}", s.handleSetPermission)
					r.Delete("/permissions/{hostname}", s.handleDeletePermission)
				})
			})

			// Access log
			r.Route("/access-logs", func(r chi.Router) {
				r.Get("/", s.handleListAccessLogs)
				r.Get("/stats", s.handleAccessLogStats)
			})

			// Card-detection session
			r.Route("/detection", func(r chi.Router) {
				r.Post("/start", s.handleStartDetection)
				r.Get("/", s.handlePeekDetection)
				r.Delete("/", s.handleStopDetection)
			})
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
