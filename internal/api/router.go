package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter assembles the route tree. Permission checks happen inside
// the handlers; the auth group only establishes identity.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		// Public endpoints.
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)
		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/refresh", s.handleRefresh)

		// WebSocket upgrade authenticates via single-use ticket, not a
		// Bearer header, because browsers cannot set upgrade headers.
		r.Get("/ws", s.handleWebSocket)

		// Authenticated endpoints.
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Get("/auth/me", s.handleMe)
			r.Post("/auth/logout", s.handleLogout)
			r.Post("/auth/password", s.handleChangeOwnPassword)
			r.Post("/auth/ws-ticket", s.handleWSTicket)

			r.Route("/displays", func(r chi.Router) {
				r.Get("/", s.handleListDisplays)
				r.Post("/", s.handleCreateDisplay)
				r.Get("/stats", s.handleDisplayStats)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetDisplay)
					r.Put("/", s.handleUpdateDisplay)
					r.Delete("/", s.handleDeleteDisplay)
					r.Get("/state", s.handleGetDisplayState)
					r.Post("/commands", s.handleDisplayCommand)
					r.Get("/capabilities", s.handleGetCapabilities)
					r.Post("/capabilities/refresh", s.handleRefreshCapabilities)
					r.Get("/history", s.handleGetDisplayHistory)
					r.Get("/metrics", s.handleGetDisplayMetrics)
				})
			})

			r.Route("/presets", func(r chi.Router) {
				r.Get("/", s.handleListPresets)
				r.Post("/", s.handleCreatePreset)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetPreset)
					r.Put("/", s.handleUpdatePreset)
					r.Delete("/", s.handleDeletePreset)
					r.Post("/apply", s.handleApplyPreset)
					r.Get("/applications", s.handleListApplications)
				})
			})

			r.Route("/users", func(r chi.Router) {
				r.Get("/", s.handleListUsers)
				r.Post("/", s.handleCreateUser)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetUser)
					r.Put("/", s.handleUpdateUser)
					r.Delete("/", s.handleDeleteUser)
					r.Put("/password", s.handleResetUserPassword)
					r.Get("/sessions", s.handleListUserSessions)
					r.Delete("/sessions", s.handleRevokeUserSessions)
				})
			})

			r.Get("/audit", s.handleListAudit)
		})
	})

	return r
}

// handleHealth answers liveness probes.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": s.version,
	})
}
