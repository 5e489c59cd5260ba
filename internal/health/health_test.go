package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

type fakeStreams struct {
	closed bool
	count  int
}

func (f *fakeStreams) Closed() bool     { return f.closed }
func (f *fakeStreams) CountGlobal() int { return f.count }

func TestHealth_Healthy(t *testing.T) {
	h := NewHandler(Config{DB: fakePinger{}, Streams: &fakeStreams{count: 3}, Version: "1.0.0"})

	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if resp.Status != "healthy" || resp.Services["database"].Status != "up" || resp.Services["streams"].Status != "up" {
		t.Errorf("unexpected response %+v", resp)
	}
	if resp.Version != "1.0.0" {
		t.Errorf("unexpected version %q", resp.Version)
	}
}

func TestHealth_DatabaseDown(t *testing.T) {
	h := NewHandler(Config{DB: fakePinger{err: errors.New("connection refused")}})

	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	var resp HealthResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Services["database"].Error != "connection refused" {
		t.Errorf("unexpected database status %+v", resp.Services["database"])
	}
}

func TestReadiness(t *testing.T) {
	streams := &fakeStreams{}
	h := NewHandler(Config{DB: fakePinger{}, Streams: streams})

	rec := httptest.NewRecorder()
	h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected ready, got %d", rec.Code)
	}

	h.SetReady(false)
	rec = httptest.NewRecorder()
	h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected not ready after SetReady(false), got %d", rec.Code)
	}

	h.SetReady(true)
	streams.closed = true
	rec = httptest.NewRecorder()
	h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected not ready once streams are shut down, got %d", rec.Code)
	}
}

func TestLiveness(t *testing.T) {
	h := NewHandler(Config{})

	rec := httptest.NewRecorder()
	h.Liveness(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp LivenessResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if !resp.Alive {
		t.Error("expected alive")
	}
}
