// Package events defines the named events pushed to live subscribers and
// their payloads.
package events

import (
	"bytes"
	"errors"
	"strings"

	"github.com/goccy/go-json"
)

// ErrEmptyEventName is returned when an event is built without a name.
var ErrEmptyEventName = errors.New("event name is required")

// Event is a named payload encoded once and written to every recipient.
type Event struct {
	Name string
	Data []byte
}

// New encodes payload and returns an Event ready for fan-out.
// A nil payload is encoded as JSON null.
func New(name string, payload any) (Event, error) {
	if strings.TrimSpace(name) == "" {
		return Event{}, ErrEmptyEventName
	}

	if raw, ok := payload.(json.RawMessage); ok && len(raw) > 0 {
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			return Event{}, err
		}
		return Event{Name: name, Data: buf.Bytes()}, nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{Name: name, Data: data}, nil
}
