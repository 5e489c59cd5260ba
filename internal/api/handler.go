package api

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	appctx "github.com/welldanyogia/presence-stream/internal/context"
	"github.com/welldanyogia/presence-stream/internal/events"
	"github.com/welldanyogia/presence-stream/internal/presence"
	"github.com/welldanyogia/presence-stream/internal/repository"
	"github.com/welldanyogia/presence-stream/internal/sanitizer"
)

// Error codes for presence operations
const (
	CodeValidationError   = "VALIDATION_ERROR"
	CodeUserNotFound      = "USER_NOT_FOUND"
	CodeInternalError     = "INTERNAL_ERROR"
	CodeStatusUnavailable = "STATUS_UNAVAILABLE"
)

// DefaultForceLogoutMessage is pushed when the caller gives no notice text.
const DefaultForceLogoutMessage = "Your session was ended by an administrator"

// maxBodyBytes caps trigger request bodies
const maxBodyBytes = 64 << 10

// APIResponse represents the standard API response format
type APIResponse struct {
	Success   bool      `json:"success"`
	Data      any       `json:"data,omitempty"`
	Error     *APIError `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// APIError represents the error detail in API response
type APIError struct {
	Code    string              `json:"code"`
	Message string              `json:"message"`
	Details map[string][]string `json:"details,omitempty"`
}

// PresenceStore persists the online flag.
type PresenceStore interface {
	SetOnline(ctx context.Context, id uuid.UUID, online bool) error
}

// SessionRevoker drops every session of a user.
type SessionRevoker interface {
	DeleteByUserID(ctx context.Context, userID uuid.UUID) (int64, error)
}

// Notifier is the live side of the handler. *presence.Directory satisfies it.
type Notifier interface {
	BroadcastPresence(evt events.PresenceEvent) presence.BroadcastReport
	BroadcastRaw(eventName string, payload any) presence.BroadcastReport
	BroadcastToUser(userID, eventName string, payload any) presence.BroadcastReport
	CountForUser(userID string) int
	Status() (presence.Status, error)
}

// PresenceHandler serves the broadcast trigger and status endpoints
type PresenceHandler struct {
	users     PresenceStore
	sessions  SessionRevoker
	notifier  Notifier
	sanitizer *sanitizer.TextSanitizer
	logger    *slog.Logger
	now       func() time.Time
}

// NewPresenceHandler creates a new PresenceHandler instance
func NewPresenceHandler(users PresenceStore, sessions SessionRevoker, notifier Notifier, logger *slog.Logger) *PresenceHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PresenceHandler{
		users:     users,
		sessions:  sessions,
		notifier:  notifier,
		sanitizer: sanitizer.NewTextSanitizer(sanitizer.DefaultMaxLength),
		logger:    logger,
		now:       time.Now,
	}
}

// Login handles POST /api/v1/presence/{userID}/login
func (h *PresenceHandler) Login(w http.ResponseWriter, r *http.Request) {
	h.setPresence(w, r, true)
}

// Logout handles POST /api/v1/presence/{userID}/logout
func (h *PresenceHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.setPresence(w, r, false)
}

func (h *PresenceHandler) setPresence(w http.ResponseWriter, r *http.Request, online bool) {
	userID, ok := h.parseUserID(w, r)
	if !ok {
		return
	}

	if err := h.users.SetOnline(r.Context(), userID, online); err != nil {
		h.writeStoreError(w, err, userID, "Failed to update presence")
		return
	}

	evt := presence.NewPresenceEvent(userID.String(), online, h.now())
	report := h.notifier.BroadcastPresence(evt)

	h.logger.Info("Presence changed",
		"actor_id", actorOf(r),
		"user_id", evt.UserID,
		"online", online,
		"delivered", report.Delivered,
	)

	h.writeSuccess(w, http.StatusOK, PresenceChangeResponse{
		UserID:    evt.UserID,
		Online:    online,
		Timestamp: evt.Timestamp,
		Attempted: report.Attempted,
		Delivered: report.Delivered,
	})
}

// ForceLogout handles POST /api/v1/presence/{userID}/force-logout
func (h *PresenceHandler) ForceLogout(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.parseUserID(w, r)
	if !ok {
		return
	}

	var req ForceLogoutRequest
	if !h.decode(w, r, &req, true) {
		return
	}

	message := h.sanitizer.Clean(req.Message)
	if message == "" {
		message = DefaultForceLogoutMessage
	}

	revoked, err := h.sessions.DeleteByUserID(r.Context(), userID)
	if err != nil {
		h.logger.Error("Failed to revoke sessions", "error", err, "user_id", userID)
		h.writeError(w, http.StatusInternalServerError, CodeInternalError, "Failed to revoke sessions", nil)
		return
	}

	if err := h.users.SetOnline(r.Context(), userID, false); err != nil {
		h.writeStoreError(w, err, userID, "Failed to update presence")
		return
	}

	id := userID.String()
	listening := h.notifier.CountForUser(id) > 0
	notified := h.notifier.BroadcastToUser(id, events.TypeForceLogout, events.ForceLogoutEvent{Message: message})
	h.notifier.BroadcastPresence(presence.NewPresenceEvent(id, false, h.now()))

	h.logger.Info("User force-logged out",
		"actor_id", actorOf(r),
		"user_id", id,
		"sessions_revoked", revoked,
		"tabs_notified", notified.Delivered,
	)

	h.writeSuccess(w, http.StatusOK, ForceLogoutResponse{
		UserID:          id,
		SessionsRevoked: revoked,
		WasListening:    listening,
		TabsNotified:    notified.Delivered,
	})
}

// SendToUser handles POST /api/v1/events/users/{userID}
func (h *PresenceHandler) SendToUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.parseUserID(w, r)
	if !ok {
		return
	}

	var req EventRequest
	if !h.decode(w, r, &req, false) {
		return
	}

	report := h.notifier.BroadcastToUser(userID.String(), req.Event, payloadOf(req))
	h.logReport(r, report, "user_id", userID.String())
	h.writeReport(w, report)
}

// Broadcast handles POST /api/v1/events
func (h *PresenceHandler) Broadcast(w http.ResponseWriter, r *http.Request) {
	var req EventRequest
	if !h.decode(w, r, &req, false) {
		return
	}

	report := h.notifier.BroadcastRaw(req.Event, payloadOf(req))
	h.logReport(r, report)
	h.writeReport(w, report)
}

// Status handles GET /api/v1/presence/status
func (h *PresenceHandler) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.notifier.Status()
	if err != nil {
		h.logger.Error("Failed to build presence status", "error", err)
		h.writeError(w, http.StatusServiceUnavailable, CodeStatusUnavailable, "Presence status is unavailable", nil)
		return
	}
	h.writeSuccess(w, http.StatusOK, status)
}

// actorOf returns the authenticated caller id set by the auth middleware.
func actorOf(r *http.Request) string {
	actor, _ := appctx.ExtractUserID(r.Context())
	return actor
}

func (h *PresenceHandler) logReport(r *http.Request, report presence.BroadcastReport, args ...any) {
	args = append([]any{
		"actor_id", actorOf(r),
		"event", report.Event,
		"attempted", report.Attempted,
		"delivered", report.Delivered,
		"failed", len(report.Failures),
	}, args...)
	h.logger.Info("Event triggered", args...)
}

func payloadOf(req EventRequest) any {
	if len(req.Payload) == 0 {
		return nil
	}
	return req.Payload
}

func (h *PresenceHandler) parseUserID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid user ID", map[string][]string{
			"user_id": {"user_id must be a valid UUID"},
		})
		return uuid.Nil, false
	}
	return userID, true
}

// decode reads and validates a JSON body. allowEmpty accepts a missing body.
func (h *PresenceHandler) decode(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.writeError(w, http.StatusRequestEntityTooLarge, CodeValidationError, "Request body too large", nil)
		return false
	}

	if len(bytes.TrimSpace(body)) > 0 || !allowEmpty {
		if err := json.Unmarshal(body, dst); err != nil {
			h.writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid request body", nil)
			return false
		}
	}

	if err := validate.Struct(dst); err != nil {
		h.writeError(w, http.StatusBadRequest, CodeValidationError, "Validation failed", validationDetails(err))
		return false
	}
	return true
}

func (h *PresenceHandler) writeStoreError(w http.ResponseWriter, err error, userID uuid.UUID, message string) {
	if errors.Is(err, repository.ErrUserNotFound) {
		h.writeError(w, http.StatusNotFound, CodeUserNotFound, "User not found", nil)
		return
	}
	h.logger.Error(message, "error", err, "user_id", userID)
	h.writeError(w, http.StatusInternalServerError, CodeInternalError, message, nil)
}

func (h *PresenceHandler) writeReport(w http.ResponseWriter, report presence.BroadcastReport) {
	if report.Err != nil {
		h.writeError(w, http.StatusBadRequest, CodeValidationError, "Event could not be encoded", map[string][]string{
			"payload": {report.Err.Error()},
		})
		return
	}
	h.writeSuccess(w, http.StatusOK, BroadcastResponse{
		Event:     report.Event,
		Attempted: report.Attempted,
		Delivered: report.Delivered,
		Failed:    len(report.Failures),
	})
}

// writeSuccess writes a success JSON response
func (h *PresenceHandler) writeSuccess(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := APIResponse{
		Success:   true,
		Data:      data,
		Timestamp: h.now().UTC(),
	}

	_ = json.NewEncoder(w).Encode(response)
}

// writeError writes an error JSON response
func (h *PresenceHandler) writeError(w http.ResponseWriter, statusCode int, code, message string, details map[string][]string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := APIResponse{
		Success: false,
		Error: &APIError{
			Code:    code,
			Message: message,
			Details: details,
		},
		Timestamp: h.now().UTC(),
	}

	_ = json.NewEncoder(w).Encode(response)
}
