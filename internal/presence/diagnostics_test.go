package presence

import (
	"errors"
	"testing"
	"time"
)

func TestDiagnostics_AddThenClose(t *testing.T) {
	d := NewDiagnostics()
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	now := base
	d.now = func() time.Time { return now }

	d.RecordAdd("u1", "s1", "1.2.3.4:80")
	now = base.Add(1500 * time.Millisecond)
	lived := d.RecordClose("u1")

	if lived != 1500*time.Millisecond {
		t.Errorf("expected 1.5s, got %v", lived)
	}

	rec, ok := d.Get("u1")
	if !ok {
		t.Fatal("expected record for u1")
	}
	if rec.LastDurationMs != 1500 {
		t.Errorf("expected 1500ms, got %d", rec.LastDurationMs)
	}
	if rec.LastSubscriberID != "s1" || rec.LastRemoteAddr != "1.2.3.4:80" {
		t.Errorf("unexpected record %+v", rec)
	}
	if rec.LastAdd == nil || rec.LastClose == nil {
		t.Error("expected add and close times")
	}
}

func TestDiagnostics_HeartbeatErrorWithoutUserIsDropped(t *testing.T) {
	d := NewDiagnostics()
	d.RecordHeartbeatError("", "ctx", "", errors.New("boom"))

	if len(d.Snapshot()) != 0 {
		t.Error("expected no records for an empty user id")
	}
}

func TestDiagnostics_HeartbeatError(t *testing.T) {
	d := NewDiagnostics()
	d.RecordHeartbeatError("u1", "s9", "5.6.7.8:1", errors.New("reset by peer"))

	rec, _ := d.Get("u1")
	if rec.LastHeartbeatError != "reset by peer" {
		t.Errorf("unexpected error text %q", rec.LastHeartbeatError)
	}
	if rec.LastHeartbeatContext != "s9" {
		t.Errorf("unexpected context %q", rec.LastHeartbeatContext)
	}
	if rec.LastHeartbeatErrorAt == nil {
		t.Error("expected error timestamp")
	}
}

func TestDiagnostics_SnapshotIsCopy(t *testing.T) {
	d := NewDiagnostics()
	d.RecordAdd("u1", "s1", "")

	snap := d.Snapshot()
	rec := snap["u1"]
	*rec.LastAdd = time.Time{}

	again, _ := d.Get("u1")
	if again.LastAdd.IsZero() {
		t.Error("mutating a snapshot must not affect the store")
	}
}
