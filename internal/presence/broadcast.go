package presence

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/welldanyogia/presence-stream/internal/events"
	"github.com/welldanyogia/presence-stream/internal/metrics"
)

// DeliveryFailure is one subscriber's failed write.
type DeliveryFailure struct {
	SubscriberID string
	RemoteAddr   string
	Err          error
}

// BroadcastReport summarizes one fan-out. A failed subscriber never stops
// delivery to the others; it is listed in Failures instead.
type BroadcastReport struct {
	Event     string
	Attempted int
	Delivered int
	Failures  []DeliveryFailure
	// Err is set when the event could not be encoded; nothing was written.
	Err error
}

// Broadcaster fans events out to registry entries. Delivery is best-effort
// and at-most-once; writes to one handle keep their issue order.
type Broadcaster struct {
	registry *Registry
	logger   *slog.Logger
}

// NewBroadcaster creates a Broadcaster over registry.
func NewBroadcaster(registry *Registry, logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		registry: registry,
		logger:   logger,
	}
}

// NewPresenceEvent builds a presence change stamped with t in RFC 3339 UTC.
func NewPresenceEvent(userID string, online bool, t time.Time) events.PresenceEvent {
	return events.PresenceEvent{
		UserID:    userID,
		Online:    online,
		Timestamp: t.UTC().Format(time.RFC3339),
	}
}

// BroadcastPresence sends a presence event to every global subscriber.
func (b *Broadcaster) BroadcastPresence(evt events.PresenceEvent) BroadcastReport {
	return b.BroadcastRaw(events.TypePresence, evt)
}

// BroadcastRaw sends an arbitrary named event to every global subscriber.
func (b *Broadcaster) BroadcastRaw(eventName string, payload any) BroadcastReport {
	return b.fanOut(eventName, payload, b.registry.globalEntries(), "")
}

// BroadcastToUser sends a named event to every subscriber of userID.
// No subscribers is not an error; check CountForUser if that matters.
func (b *Broadcaster) BroadcastToUser(userID, eventName string, payload any) BroadcastReport {
	return b.fanOut(eventName, payload, b.registry.userEntries(userID), userID)
}

func (b *Broadcaster) fanOut(eventName string, payload any, targets []entry, userID string) BroadcastReport {
	report := BroadcastReport{Event: eventName}

	evt, err := events.New(eventName, payload)
	if err != nil {
		b.logger.Error("Failed to encode event", "event", eventName, "error", err)
		report.Err = err
		return report
	}

	if len(targets) == 0 {
		return report // No subscribers, not an error
	}

	frame := FormatFrame(evt)
	for _, target := range targets {
		report.Attempted++
		if err := safeWrite(target.handle, frame); err != nil {
			remote := remoteAddrOf(target.handle)
			report.Failures = append(report.Failures, DeliveryFailure{
				SubscriberID: target.id,
				RemoteAddr:   remote,
				Err:          err,
			})
			metrics.WriteFailures.WithLabelValues("broadcast").Inc()
			b.logger.Warn("Broadcast write failed",
				"event", eventName,
				"subscriber_id", target.id,
				"user_id", userID,
				"remote_addr", remote,
				"error", err,
			)
			continue
		}
		report.Delivered++
	}

	if report.Delivered > 0 {
		metrics.FramesSent.WithLabelValues(eventName).Add(float64(report.Delivered))
	}
	return report
}

// safeWrite turns a panicking handle into an error so the loop keeps going.
func safeWrite(h Writable, frame string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("write panicked: %v", r)
		}
	}()
	return h.Write(frame)
}
