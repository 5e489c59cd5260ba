package presence

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestHeartbeat_WritesKeepAlive(t *testing.T) {
	h := newFakeHandle()
	hb := StartHeartbeat(h, "s1", 5*time.Millisecond, discardLogger(), nil)
	defer hb.Stop()

	waitFor(t, time.Second, func() bool { return hb.Ticks() >= 3 })

	for _, frame := range h.snapshotFrames() {
		if frame != KeepAliveFrame {
			t.Fatalf("unexpected frame %q", frame)
		}
	}

	h.mu.Lock()
	cleared := h.cleared
	h.mu.Unlock()
	if cleared < 3 {
		t.Errorf("expected deadlines cleared before each write, got %d", cleared)
	}
}

func TestHeartbeat_ClearDeadlineErrorIsIgnored(t *testing.T) {
	h := newFakeHandle()
	h.clearErr = errors.New("not supported")
	hb := StartHeartbeat(h, "s1", 5*time.Millisecond, discardLogger(), nil)
	defer hb.Stop()

	waitFor(t, time.Second, func() bool { return hb.Ticks() >= 2 })
}

func TestHeartbeat_StopIsIdempotent(t *testing.T) {
	h := newFakeHandle()
	hb := StartHeartbeat(h, "s1", time.Hour, discardLogger(), nil)

	hb.Stop()
	hb.Stop()

	select {
	case <-hb.Done():
	case <-time.After(time.Second):
		t.Fatal("heartbeat loop did not exit")
	}
	if !hb.Stopped() {
		t.Error("expected Stopped to report true")
	}
	if h.writeCount() != 0 {
		t.Errorf("expected no writes, got %d", h.writeCount())
	}
}

// Feature: presence-stream, Property 2: Heartbeat Self-Cancel
// *For any* handle whose writes always fail, the heartbeat attempts exactly
// one write, stops itself and runs its failure hook exactly once.
func TestProperty2_HeartbeatSelfCancel(t *testing.T) {
	for i := 0; i < 20; i++ {
		h := newFakeHandle()
		h.setFailing(true)

		var failures atomic.Int32
		hb := StartHeartbeat(h, "s1", time.Millisecond, discardLogger(), func(err error) {
			if !errors.Is(err, errBrokenPipe) {
				t.Errorf("unexpected error %v", err)
			}
			failures.Add(1)
		})

		select {
		case <-hb.Done():
		case <-time.After(time.Second):
			t.Fatal("heartbeat did not stop after a failed write")
		}

		// Give a stray tick a chance to show up.
		time.Sleep(10 * time.Millisecond)

		if n := h.writeCount(); n != 1 {
			t.Fatalf("expected exactly 1 write attempt, got %d", n)
		}
		if n := failures.Load(); n != 1 {
			t.Fatalf("expected failure hook once, got %d", n)
		}
		if !hb.Stopped() {
			t.Fatal("expected heartbeat stopped")
		}
	}
}

func TestHeartbeat_ExternalStopSuppressesFailureHook(t *testing.T) {
	h := newFakeHandle()
	var called atomic.Bool
	hb := StartHeartbeat(h, "s1", time.Hour, discardLogger(), func(error) { called.Store(true) })

	hb.Stop()
	h.setFailing(true)

	// A beat after Stop does not write and does not report.
	if hb.beat() {
		t.Error("beat after stop should end the loop")
	}
	if called.Load() {
		t.Error("failure hook must not run after an external stop")
	}
	if h.writeCount() != 0 {
		t.Errorf("expected no writes after stop, got %d", h.writeCount())
	}
}
