// Package sse serves the presence event streams over Server-Sent Events.
package sse

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/welldanyogia/presence-stream/internal/auth"
	"github.com/welldanyogia/presence-stream/internal/logger"
	"github.com/welldanyogia/presence-stream/internal/middleware"
	"github.com/welldanyogia/presence-stream/internal/presence"
)

// Config holds SSE endpoint configuration.
type Config struct {
	RetryInterval time.Duration // Default: 5 seconds
}

// DefaultConfig returns the default SSE configuration.
func DefaultConfig() Config {
	return Config{
		RetryInterval: 5 * time.Second,
	}
}

// Handler serves the global presence stream and the per-user stream.
type Handler struct {
	config       Config
	directory    *presence.Directory
	tokenService *auth.TokenService
	logger       *slog.Logger
}

// NewHandler creates a new SSE handler.
func NewHandler(config Config, directory *presence.Directory, tokenService *auth.TokenService, log *slog.Logger) *Handler {
	return &Handler{
		config:       config,
		directory:    directory,
		tokenService: tokenService,
		logger:       logger.WithComponent(log, "sse"),
	}
}

// HandlePresence streams system-wide presence changes. No authentication.
func (h *Handler) HandlePresence(w http.ResponseWriter, r *http.Request) {
	if h.directory.Closed() {
		h.writeUnavailable(w)
		return
	}

	h.serve(w, r, "presence", func(stream *Stream, id string) error {
		return h.directory.Subscribe(r.Context(), id, stream)
	})
}

// HandleStream streams events addressed to the authenticated user.
// It supports authentication via query parameter (token) or Authorization header.
func (h *Handler) HandleStream(w http.ResponseWriter, r *http.Request) {
	// Rejected before any registry mutation
	userID, err := h.authenticate(r)
	if err != nil {
		h.writeUnauthorized(w)
		return
	}

	if h.directory.Closed() {
		h.writeUnavailable(w)
		return
	}

	h.serve(w, r, "user", func(stream *Stream, id string) error {
		return h.directory.SubscribeUser(r.Context(), userID, id, stream)
	})
}

func (h *Handler) serve(w http.ResponseWriter, r *http.Request, prefix string, subscribe func(*Stream, string) error) {
	log := logger.WithCorrelationID(r.Context(), h.logger)

	stream := NewStream(w, r)
	// Long-lived: the server's write timeout would cut the stream.
	_ = stream.ClearDeadlines()

	if err := stream.Open(h.config.RetryInterval); err != nil {
		log.Warn("Failed to open event stream", "remote_addr", r.RemoteAddr, "error", err)
		stream.Close()
		return
	}

	id := presence.NewSubscriberID(prefix)
	if err := subscribe(stream, id); err != nil {
		log.Warn("Subscribe failed", "subscriber_id", id, "error", err)
		stream.Close()
		return
	}

	select {
	case <-r.Context().Done():
		// Client disconnected
	case <-stream.Done():
		// Closed by the server (heartbeat failure or shutdown)
	}

	// Cleanup; nothing writes to w after this returns.
	stream.Close()
	log.Debug("Event stream ended", "subscriber_id", id)
}

// authenticate validates the access token from the "token" query parameter
// (EventSource cannot set headers) or the Authorization header.
func (h *Handler) authenticate(r *http.Request) (string, error) {
	if h.tokenService == nil {
		return "", ErrInvalidToken
	}

	tokenString := r.URL.Query().Get("token")
	if tokenString == "" {
		tokenString, _ = middleware.BearerToken(r)
	}
	if tokenString == "" {
		return "", ErrInvalidToken
	}

	claims, err := h.tokenService.ValidateAccessToken(tokenString)
	if err != nil {
		return "", ErrInvalidToken
	}
	return claims.UserID(), nil
}

// writeUnauthorized writes a 401 Unauthorized response.
func (h *Handler) writeUnauthorized(w http.ResponseWriter) {
	writeJSONError(w, http.StatusUnauthorized, "AUTH_TOKEN_INVALID", "Invalid or missing authentication token")
}

func (h *Handler) writeUnavailable(w http.ResponseWriter) {
	writeJSONError(w, http.StatusServiceUnavailable, "SERVICE_SHUTTING_DOWN", "Event streams are closed")
}

func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"timestamp": time.Now().UTC(),
	})
}
