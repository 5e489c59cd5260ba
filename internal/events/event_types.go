package events

// Event names
const (
	TypeConnected   = "connected"
	TypePresence    = "presence"
	TypeSnapshot    = "snapshot"
	TypeForceLogout = "force_logout"
)

// PresenceEvent is broadcast when a user's online state changes.
type PresenceEvent struct {
	UserID    string `json:"userId"`
	Online    bool   `json:"online"`
	Timestamp string `json:"timestamp"`
}

// PresenceState is one entry of the initial snapshot.
type PresenceState struct {
	ID     string `json:"id"`
	Online bool   `json:"online"`
}

// ConnectedEvent is sent to a subscriber right after registration.
type ConnectedEvent struct {
	SubscriberID string `json:"subscriberId"`
	Message      string `json:"message"`
}

// ForceLogoutEvent tells every tab of a user to drop its session.
type ForceLogoutEvent struct {
	Message string `json:"message"`
}
