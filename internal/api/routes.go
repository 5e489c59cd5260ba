package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers the presence trigger and status routes.
// All routes require authentication via auth middleware. Any authenticated
// caller may act on any user id; which callers may reach these routes is
// decided by the upstream gateway.
func RegisterRoutes(r chi.Router, handler *PresenceHandler, authMiddleware func(next http.Handler) http.Handler) {
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)

		// GET /api/v1/presence/status - Registry counts and last events
		r.Get("/presence/status", handler.Status)

		r.Post("/presence/{userID}/login", handler.Login)
		r.Post("/presence/{userID}/logout", handler.Logout)
		r.Post("/presence/{userID}/force-logout", handler.ForceLogout)

		// POST /api/v1/events - Named event to every global subscriber
		r.Post("/events", handler.Broadcast)
		r.Post("/events/users/{userID}", handler.SendToUser)
	})
}
