package presence

import (
	"strconv"
	"strings"
	"time"

	"github.com/welldanyogia/presence-stream/internal/events"
)

// KeepAliveFrame is a comment-only frame. Clients ignore it.
const KeepAliveFrame = ": keep-alive\n\n"

// FormatFrame renders an event as event-stream text:
// event: <name>\ndata: <json>\n\n
func FormatFrame(evt events.Event) string {
	var b strings.Builder
	b.Grow(len(evt.Name) + len(evt.Data) + 16)
	b.WriteString("event: ")
	b.WriteString(sanitizeLine(evt.Name))
	b.WriteString("\ndata: ")
	b.Write(evt.Data)
	b.WriteString("\n\n")
	return b.String()
}

// RetryFrame tells EventSource clients how long to wait before reconnecting.
func RetryFrame(d time.Duration) string {
	return "retry: " + strconv.FormatInt(d.Milliseconds(), 10) + "\n\n"
}

// sanitizeLine keeps an event name from breaking the framing.
func sanitizeLine(s string) string {
	if !strings.ContainsAny(s, "\r\n") {
		return s
	}
	return strings.NewReplacer("\r", "", "\n", "").Replace(s)
}
