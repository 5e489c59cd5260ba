package sse

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// syncRecorder is a goroutine-safe ResponseWriter with Flush.
type syncRecorder struct {
	mu      sync.Mutex
	header  http.Header
	status  int
	body    bytes.Buffer
	flushes int
	failErr error
}

func newSyncRecorder() *syncRecorder {
	return &syncRecorder{header: make(http.Header)}
}

func (r *syncRecorder) Header() http.Header {
	return r.header
}

func (r *syncRecorder) WriteHeader(status int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status == 0 {
		r.status = status
	}
}

func (r *syncRecorder) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failErr != nil {
		return 0, r.failErr
	}
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.body.Write(p)
}

func (r *syncRecorder) Flush() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushes++
}

func (r *syncRecorder) String() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.body.String()
}

func (r *syncRecorder) Status() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

func (r *syncRecorder) fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failErr = err
}

// plainWriter cannot flush.
type plainWriter struct {
	header http.Header
}

func (p *plainWriter) Header() http.Header         { return p.header }
func (p *plainWriter) Write(b []byte) (int, error) { return len(b), nil }
func (p *plainWriter) WriteHeader(int)             {}

func TestStream_OpenWritesHeadersAndRetry(t *testing.T) {
	rec := newSyncRecorder()
	s := NewStream(rec, httptest.NewRequest(http.MethodGet, "/events/presence", nil))

	if err := s.Open(5 * time.Second); err != nil {
		t.Fatalf("open failed: %v", err)
	}

	if got := rec.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Errorf("unexpected content type %q", got)
	}
	if got := rec.Header().Get("Cache-Control"); got != "no-cache" {
		t.Errorf("unexpected cache control %q", got)
	}
	if got := rec.Header().Get("X-Accel-Buffering"); got != "no" {
		t.Errorf("unexpected X-Accel-Buffering %q", got)
	}
	if rec.String() != "retry: 5000\n\n" {
		t.Errorf("unexpected body %q", rec.String())
	}
	if rec.Status() != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Status())
	}
}

func TestStream_OpenWithoutFlusher(t *testing.T) {
	w := &plainWriter{header: make(http.Header)}
	s := NewStream(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if err := s.Open(time.Second); !errors.Is(err, ErrStreamingNotSupported) {
		t.Errorf("expected ErrStreamingNotSupported, got %v", err)
	}
}

func TestStream_WriteAfterClose(t *testing.T) {
	rec := newSyncRecorder()
	s := NewStream(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if err := s.Write("event: a\ndata: 1\n\n"); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	s.Close()

	if err := s.Write("event: b\ndata: 2\n\n"); !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("expected ErrConnectionClosed, got %v", err)
	}
	if strings.Contains(rec.String(), "event: b") {
		t.Error("nothing may be written after close")
	}
	if err := s.ClearDeadlines(); !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("expected ErrConnectionClosed from ClearDeadlines, got %v", err)
	}
}

func TestStream_CloseListenersRunOnce(t *testing.T) {
	s := NewStream(newSyncRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	calls := 0
	s.OnClose(func() { calls++ })
	detached := 0
	detach := s.OnClose(func() { detached++ })
	detach()

	s.Close()
	s.Close()

	if calls != 1 {
		t.Errorf("expected close listener once, got %d", calls)
	}
	if detached != 0 {
		t.Error("detached listener must not run")
	}
	select {
	case <-s.Done():
	default:
		t.Error("expected Done closed")
	}

	late := 0
	s.OnClose(func() { late++ })
	if late != 1 {
		t.Errorf("listener added after close should run at once, got %d", late)
	}
}

func TestStream_WriteErrorNotifiesListeners(t *testing.T) {
	rec := newSyncRecorder()
	rec.fail(errors.New("broken pipe"))
	s := NewStream(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	var got error
	s.OnError(func(err error) { got = err })

	if err := s.Write(": keep-alive\n\n"); err == nil {
		t.Fatal("expected write error")
	}
	if got == nil || got.Error() != "broken pipe" {
		t.Errorf("expected listener to see the write error, got %v", got)
	}
	if s.IsClosed() {
		t.Error("a write error alone does not close the stream")
	}
}

func TestStream_ConcurrentWritesKeepFramesIntact(t *testing.T) {
	rec := newSyncRecorder()
	s := NewStream(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Write("event: tick\ndata: {}\n\n")
		}()
	}
	wg.Wait()

	frames := strings.Split(strings.TrimSuffix(rec.String(), "\n\n"), "\n\n")
	if len(frames) != 20 {
		t.Fatalf("expected 20 frames, got %d", len(frames))
	}
	for _, frame := range frames {
		if frame != "event: tick\ndata: {}" {
			t.Fatalf("interleaved frame %q", frame)
		}
	}
}

func TestStream_RemoteAddr(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.10:4242"

	if got := NewStream(newSyncRecorder(), req).RemoteAddr(); got != "192.0.2.10:4242" {
		t.Errorf("unexpected remote addr %q", got)
	}
}
