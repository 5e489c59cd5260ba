package api

import (
	"github.com/goccy/go-json"
)

// ForceLogoutRequest is the body of POST /presence/{userID}/force-logout.
// An empty body uses the default notice.
type ForceLogoutRequest struct {
	Message string `json:"message" validate:"max=2000"`
}

// EventRequest is the body of the raw and per-user event triggers.
type EventRequest struct {
	Event   string          `json:"event" validate:"required,max=64,event_name"`
	Payload json.RawMessage `json:"payload"`
}

// PresenceChangeResponse reports a login or logout broadcast
type PresenceChangeResponse struct {
	UserID    string `json:"user_id"`
	Online    bool   `json:"online"`
	Timestamp string `json:"timestamp"`
	Attempted int    `json:"attempted"`
	Delivered int    `json:"delivered"`
}

// ForceLogoutResponse reports the outcome of a forced logout
type ForceLogoutResponse struct {
	UserID          string `json:"user_id"`
	SessionsRevoked int64  `json:"sessions_revoked"`
	WasListening    bool   `json:"was_listening"`
	TabsNotified    int    `json:"tabs_notified"`
}

// BroadcastResponse summarizes one fan-out
type BroadcastResponse struct {
	Event     string `json:"event"`
	Attempted int    `json:"attempted"`
	Delivered int    `json:"delivered"`
	Failed    int    `json:"failed"`
}
