package presence

import (
	"sync"
	"time"
)

// Record is the per-user diagnostics entry. Records are created on the first
// event for a user and never deleted.
type Record struct {
	LastAdd              *time.Time `json:"lastAdd,omitempty"`
	LastClose            *time.Time `json:"lastClose,omitempty"`
	LastDurationMs       int64      `json:"lastDurationMs,omitempty"`
	LastRemoteAddr       string     `json:"lastRemoteAddr,omitempty"`
	LastSubscriberID     string     `json:"lastSubscriberId,omitempty"`
	LastHeartbeatError   string     `json:"lastHeartbeatError,omitempty"`
	LastHeartbeatErrorAt *time.Time `json:"lastHeartbeatErrorAt,omitempty"`
	LastHeartbeatContext string     `json:"lastHeartbeatContext,omitempty"`
}

func (r Record) clone() Record {
	out := r
	out.LastAdd = cloneTime(r.LastAdd)
	out.LastClose = cloneTime(r.LastClose)
	out.LastHeartbeatErrorAt = cloneTime(r.LastHeartbeatErrorAt)
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// Diagnostics keeps the last add/close/heartbeat-failure per user.
type Diagnostics struct {
	mu      sync.Mutex
	records map[string]*Record
	now     func() time.Time
}

// NewDiagnostics creates an empty Diagnostics store.
func NewDiagnostics() *Diagnostics {
	return &Diagnostics{
		records: make(map[string]*Record),
		now:     time.Now,
	}
}

// recordLocked returns the record for userID, creating it if needed.
// Caller must hold the lock.
func (d *Diagnostics) recordLocked(userID string) *Record {
	rec, exists := d.records[userID]
	if !exists {
		rec = &Record{}
		d.records[userID] = rec
	}
	return rec
}

// RecordAdd notes a new subscriber for userID.
func (d *Diagnostics) RecordAdd(userID, subscriberID, remoteAddr string) {
	if userID == "" {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	rec := d.recordLocked(userID)
	rec.LastAdd = &now
	rec.LastSubscriberID = subscriberID
	if remoteAddr != "" {
		rec.LastRemoteAddr = remoteAddr
	}
}

// RecordClose notes a closed subscriber and returns how long it lived,
// measured from the user's last add.
func (d *Diagnostics) RecordClose(userID string) time.Duration {
	if userID == "" {
		return 0
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	rec := d.recordLocked(userID)
	rec.LastClose = &now

	var lived time.Duration
	if rec.LastAdd != nil {
		lived = now.Sub(*rec.LastAdd)
	}
	rec.LastDurationMs = lived.Milliseconds()
	return lived
}

// RecordHeartbeatError notes a failed keep-alive write.
// Failures without a user context are dropped.
func (d *Diagnostics) RecordHeartbeatError(userID, contextID, remoteAddr string, err error) {
	if userID == "" || err == nil {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	rec := d.recordLocked(userID)
	rec.LastHeartbeatError = err.Error()
	rec.LastHeartbeatErrorAt = &now
	rec.LastHeartbeatContext = contextID
	if remoteAddr != "" {
		rec.LastRemoteAddr = remoteAddr
	}
}

// Get returns a copy of the record for userID.
func (d *Diagnostics) Get(userID string) (Record, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	rec, exists := d.records[userID]
	if !exists {
		return Record{}, false
	}
	return rec.clone(), true
}

// Snapshot returns copies of all records.
func (d *Diagnostics) Snapshot() map[string]Record {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make(map[string]Record, len(d.records))
	for userID, rec := range d.records {
		out[userID] = rec.clone()
	}
	return out
}
