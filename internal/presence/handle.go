// Package presence tracks live streaming subscribers and pushes presence
// changes and named events to them.
package presence

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrDirectoryClosed is returned when subscribing after Shutdown.
	ErrDirectoryClosed = errors.New("presence directory is closed")

	// ErrEmptySubscriberID is returned when a subscriber has no id.
	ErrEmptySubscriberID = errors.New("subscriber id is required")

	// ErrEmptyUserID is returned when a per-user subscription has no user id.
	ErrEmptyUserID = errors.New("user id is required")

	// ErrStatusUnavailable is returned when the status report cannot be built.
	ErrStatusUnavailable = errors.New("presence status unavailable")
)

// Writable is the only capability the registry and broadcaster need.
type Writable interface {
	Write(frame string) error
}

// Closer is implemented by handles the directory may close on failure or shutdown.
type Closer interface {
	Close() error
}

// Signals exposes transport close/error notifications. The returned func
// detaches the listener.
type Signals interface {
	OnClose(fn func()) (detach func())
	OnError(fn func(err error)) (detach func())
}

// DeadlineClearer is implemented by handles whose transport applies
// read/write deadlines that would reap an idle stream.
type DeadlineClearer interface {
	ClearDeadlines() error
}

// RemoteAddresser reports the peer address for diagnostics.
type RemoteAddresser interface {
	RemoteAddr() string
}

func remoteAddrOf(h Writable) string {
	if ra, ok := h.(RemoteAddresser); ok {
		return ra.RemoteAddr()
	}
	return ""
}

// NewSubscriberID returns prefix-<unix millis>-<8 hex chars>.
func NewSubscriberID(prefix string) string {
	suffix := uuid.New().String()[:8]
	if prefix == "" {
		prefix = "sub"
	}
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixMilli(), suffix)
}
