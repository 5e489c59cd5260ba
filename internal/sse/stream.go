package sse

import (
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/welldanyogia/presence-stream/internal/presence"
)

// Stream adapts one event-stream HTTP response to the presence handle
// capabilities. Writes are serialized and flushed one at a time; after Close
// nothing touches the ResponseWriter again, so the handler may return.
type Stream struct {
	w          http.ResponseWriter
	rc         *http.ResponseController
	remoteAddr string

	mu     sync.Mutex // serializes writes and guards closed
	closed bool

	listenersMu sync.Mutex
	nextID      int
	onClose     map[int]func()
	onError     map[int]func(error)

	closeOnce sync.Once
	done      chan struct{}
}

// NewStream wraps w. Nothing is written until Open.
func NewStream(w http.ResponseWriter, r *http.Request) *Stream {
	return &Stream{
		w:          w,
		rc:         http.NewResponseController(w),
		remoteAddr: r.RemoteAddr,
		onClose:    make(map[int]func()),
		onError:    make(map[int]func(error)),
		done:       make(chan struct{}),
	}
}

// Open sends the event-stream headers and the reconnect hint.
func (s *Stream) Open(retry time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no") // Disable nginx buffering
	s.w.WriteHeader(http.StatusOK)

	if retry > 0 {
		if _, err := io.WriteString(s.w, presence.RetryFrame(retry)); err != nil {
			return err
		}
	}
	if err := s.rc.Flush(); err != nil {
		if errors.Is(err, http.ErrNotSupported) {
			return ErrStreamingNotSupported
		}
		return err
	}
	return nil
}

// Write sends one frame and flushes it.
func (s *Stream) Write(frame string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrConnectionClosed
	}

	_, err := io.WriteString(s.w, frame)
	if err == nil {
		err = s.rc.Flush()
	}
	s.mu.Unlock()

	if err != nil {
		s.emitError(err)
	}
	return err
}

// Close marks the stream closed and fires close listeners once.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		close(s.done)

		s.listenersMu.Lock()
		listeners := make([]func(), 0, len(s.onClose))
		for _, fn := range s.onClose {
			listeners = append(listeners, fn)
		}
		s.onClose = make(map[int]func())
		s.listenersMu.Unlock()

		for _, fn := range listeners {
			fn()
		}
	})
	return nil
}

// Done is closed when the stream is closed.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// IsClosed returns true if the stream is closed.
func (s *Stream) IsClosed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// OnClose registers fn to run when the stream closes. It runs at once if the
// stream is already closed.
func (s *Stream) OnClose(fn func()) func() {
	if s.IsClosed() {
		fn()
		return func() {}
	}

	s.listenersMu.Lock()
	id := s.nextID
	s.nextID++
	s.onClose[id] = fn
	s.listenersMu.Unlock()

	// Close may have run between the check and the insert.
	if s.IsClosed() {
		s.listenersMu.Lock()
		_, pending := s.onClose[id]
		delete(s.onClose, id)
		s.listenersMu.Unlock()
		if pending {
			fn()
		}
	}

	return func() {
		s.listenersMu.Lock()
		defer s.listenersMu.Unlock()
		delete(s.onClose, id)
	}
}

// OnError registers fn to run on write failures.
func (s *Stream) OnError(fn func(error)) func() {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()

	id := s.nextID
	s.nextID++
	s.onError[id] = fn
	return func() {
		s.listenersMu.Lock()
		defer s.listenersMu.Unlock()
		delete(s.onError, id)
	}
}

func (s *Stream) emitError(err error) {
	s.listenersMu.Lock()
	listeners := make([]func(error), 0, len(s.onError))
	for _, fn := range s.onError {
		listeners = append(listeners, fn)
	}
	s.listenersMu.Unlock()

	for _, fn := range listeners {
		fn(err)
	}
}

// ClearDeadlines lifts the server's read and write timeouts for this
// connection. Writers that cannot set deadlines report http.ErrNotSupported.
func (s *Stream) ClearDeadlines() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrConnectionClosed
	}
	return errors.Join(
		s.rc.SetWriteDeadline(time.Time{}),
		s.rc.SetReadDeadline(time.Time{}),
	)
}

// RemoteAddr returns the client address.
func (s *Stream) RemoteAddr() string {
	return s.remoteAddr
}
