package presence

import (
	"errors"
	"testing"
)

func TestLifecycle_CloseRemovesGlobal(t *testing.T) {
	r := NewRegistry()
	lc := NewLifecycle(r, NewDiagnostics(), discardLogger())
	h := newFakeHandle()

	r.AddGlobal("g1", h)
	calls := 0
	_, bound := lc.BindGlobal(h, "g1", func() { calls++ })
	if !bound {
		t.Fatal("expected handle with signals to bind")
	}

	h.emitClose()

	if r.CountGlobal() != 0 {
		t.Error("expected global subscriber removed on close")
	}
	if calls != 1 {
		t.Errorf("expected onCleanup once, got %d", calls)
	}
}

func TestLifecycle_ErrorOnlyLogs(t *testing.T) {
	r := NewRegistry()
	lc := NewLifecycle(r, NewDiagnostics(), discardLogger())
	h := newFakeHandle()

	r.AddForUser("u1", "s1", h)
	calls := 0
	lc.BindUser(h, "u1", "s1", func() { calls++ })

	h.emitError(errors.New("write: connection reset"))

	if r.CountForUser("u1") != 1 {
		t.Error("an error signal must not remove the subscriber")
	}
	if calls != 0 {
		t.Errorf("expected no cleanup on error, got %d", calls)
	}
}

// Feature: presence-stream, Property 3: Idempotent Cleanup
// close, error, close again, and a direct cleanup call result in exactly one
// removal and one onCleanup run, and every listener is detached.
func TestProperty3_IdempotentCleanup(t *testing.T) {
	r := NewRegistry()
	d := NewDiagnostics()
	lc := NewLifecycle(r, d, discardLogger())

	h := newFakeHandle()
	other := newFakeHandle()
	r.AddForUser("u1", "s1", h)
	r.AddForUser("u1", "s2", other)
	d.RecordAdd("u1", "s1", "")

	calls := 0
	cleanup, _ := lc.BindUser(h, "u1", "s1", func() { calls++ })

	h.emitClose()
	h.emitError(errors.New("late error"))
	h.emitClose()
	cleanup()

	if calls != 1 {
		t.Fatalf("expected onCleanup exactly once, got %d", calls)
	}
	if r.CountForUser("u1") != 1 {
		t.Fatalf("expected only s1 removed, count=%d", r.CountForUser("u1"))
	}
	if h.listenerCount() != 0 {
		t.Errorf("expected listeners detached, %d remain", h.listenerCount())
	}

	rec, _ := d.Get("u1")
	if rec.LastClose == nil {
		t.Error("expected close recorded in diagnostics")
	}
}

func TestLifecycle_WithoutSignals(t *testing.T) {
	r := NewRegistry()
	lc := NewLifecycle(r, NewDiagnostics(), discardLogger())
	h := &writeOnly{}

	r.AddGlobal("g1", h)
	cleanup, bound := lc.BindGlobal(h, "g1", nil)
	if bound {
		t.Fatal("a plain writer cannot bind signals")
	}

	cleanup()
	cleanup()
	if r.CountGlobal() != 0 {
		t.Error("explicit cleanup should remove the subscriber")
	}
}
