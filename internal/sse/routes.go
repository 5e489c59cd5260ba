package sse

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers the stream routes with the Chi router.
// subscribeLimit, when non-nil, throttles new subscriptions.
func RegisterRoutes(r chi.Router, handler *Handler, subscribeLimit func(http.Handler) http.Handler) {
	streams := r.With()
	if subscribeLimit != nil {
		streams = r.With(subscribeLimit)
	}

	// GET /api/v1/events/presence - system-wide presence changes
	streams.Get("/events/presence", handler.HandlePresence)

	// GET /api/v1/events/stream - per-user events
	// - Query parameter: ?token=<jwt_token>
	// - Authorization header: Bearer <jwt_token>
	streams.Get("/events/stream", handler.HandleStream)
}
