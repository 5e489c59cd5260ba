package presence

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/welldanyogia/presence-stream/internal/events"
	applog "github.com/welldanyogia/presence-stream/internal/logger"
	"github.com/welldanyogia/presence-stream/internal/metrics"
)

// Config holds presence directory configuration.
type Config struct {
	HeartbeatInterval time.Duration // Default: 7 seconds
	Snapshot          SnapshotConfig
}

// DefaultConfig returns the default presence configuration.
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval: DefaultHeartbeatInterval,
		Snapshot:          DefaultSnapshotConfig(),
	}
}

// Status is the read-only view served to operational tooling.
type Status struct {
	GlobalCount   int               `json:"globalCount"`
	PerUserCounts map[string]int    `json:"perUserCounts"`
	LastEvents    map[string]Record `json:"lastEvents"`
	SnapshotState string            `json:"snapshotBreaker"`
}

// lease is one subscriber's registration lifetime. Its heartbeat is stopped
// only through release, which runs once.
type lease struct {
	id     string
	userID string // empty for global subscribers
	handle Writable

	mu        sync.Mutex
	heartbeat *Heartbeat
	cleanup   func()
	released  bool
}

// onReleased stops the heartbeat; it runs inside the lifecycle cleanup.
func (l *lease) onReleased() {
	l.mu.Lock()
	l.released = true
	hb := l.heartbeat
	l.mu.Unlock()

	if hb != nil {
		hb.Stop()
	}
}

// attach installs the heartbeat, stopping it at once if the lease was
// released while it was starting.
func (l *lease) attach(hb *Heartbeat) {
	l.mu.Lock()
	l.heartbeat = hb
	released := l.released
	l.mu.Unlock()

	if released {
		hb.Stop()
	}
}

func (l *lease) release() {
	l.mu.Lock()
	cleanup := l.cleanup
	l.mu.Unlock()

	if cleanup != nil {
		cleanup()
	}
}

func (l *lease) heartbeatDone() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.heartbeat == nil {
		return nil
	}
	return l.heartbeat.Done()
}

// Directory owns the registries, heartbeats and diagnostics for the life of
// the process. Create it at startup and call Shutdown on exit.
type Directory struct {
	config      Config
	registry    *Registry
	diagnostics *Diagnostics
	lifecycle   *Lifecycle
	broadcaster *Broadcaster
	snapshots   *SnapshotProvider
	logger      *slog.Logger

	// registerMu serializes register so replacing a reused id and inserting
	// the new lease happen as one step.
	registerMu sync.Mutex

	mu     sync.Mutex
	leases map[string]*lease // subscriberID -> lease
	closed bool
}

// NewDirectory creates a Directory. store may be nil, in which case new
// global subscribers receive an empty snapshot.
func NewDirectory(config Config, store OnlineLister, logger *slog.Logger) *Directory {
	if config.HeartbeatInterval <= 0 {
		config.HeartbeatInterval = DefaultHeartbeatInterval
	}
	logger = applog.WithComponent(logger, "presence")

	registry := NewRegistry()
	diagnostics := NewDiagnostics()

	return &Directory{
		config:      config,
		registry:    registry,
		diagnostics: diagnostics,
		lifecycle:   NewLifecycle(registry, diagnostics, logger),
		broadcaster: NewBroadcaster(registry, logger),
		snapshots:   NewSnapshotProvider(store, config.Snapshot, logger),
		logger:      logger,
		leases:      make(map[string]*lease),
	}
}

// Subscribe registers h as a global subscriber, starts its heartbeat, binds
// its lifecycle and pushes the connected frame and the initial snapshot.
// A failed snapshot leaves the subscriber registered.
func (d *Directory) Subscribe(ctx context.Context, id string, h Writable) error {
	if id == "" {
		return ErrEmptySubscriberID
	}

	l, err := d.register(id, "", h)
	if err != nil {
		return err
	}

	d.sendConnected(l)
	d.pushSnapshot(ctx, l)
	return nil
}

// SubscribeUser registers h under userID. The caller has already
// authenticated userID.
func (d *Directory) SubscribeUser(ctx context.Context, userID, id string, h Writable) error {
	if userID == "" {
		return ErrEmptyUserID
	}
	if id == "" {
		return ErrEmptySubscriberID
	}

	l, err := d.register(id, userID, h)
	if err != nil {
		return err
	}

	d.sendConnected(l)
	return nil
}

func (d *Directory) register(id, userID string, h Writable) (*lease, error) {
	d.registerMu.Lock()
	defer d.registerMu.Unlock()

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, ErrDirectoryClosed
	}
	prev := d.leases[id]
	d.mu.Unlock()

	// Last registration wins for a reused id.
	if prev != nil {
		prev.release()
	}

	l := &lease{id: id, userID: userID, handle: h}
	scope := metrics.ScopeGlobal

	onCleanup := func() {
		d.forget(l)
		l.onReleased()
		metrics.SubscribersActive.WithLabelValues(scope).Dec()
	}

	var cleanup func()
	var bound bool
	if userID == "" {
		d.registry.AddGlobal(id, h)
		metrics.SubscribersActive.WithLabelValues(scope).Inc()
		cleanup, bound = d.lifecycle.BindGlobal(h, id, onCleanup)
	} else {
		scope = metrics.ScopeUser
		d.registry.AddForUser(userID, id, h)
		d.diagnostics.RecordAdd(userID, id, remoteAddrOf(h))
		metrics.SubscribersActive.WithLabelValues(scope).Inc()
		cleanup, bound = d.lifecycle.BindUser(h, userID, id, onCleanup)
	}

	l.mu.Lock()
	l.cleanup = cleanup
	l.mu.Unlock()

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		cleanup()
		return nil, ErrDirectoryClosed
	}
	d.leases[id] = l
	d.mu.Unlock()

	l.attach(StartHeartbeat(h, id, d.config.HeartbeatInterval, d.logger, func(err error) {
		d.heartbeatFailed(l, err)
	}))

	if !bound {
		d.logger.Warn("Subscriber handle has no close signal; caller must release it",
			"subscriber_id", id,
			"user_id", userID,
		)
	}

	d.logger.Info("Subscriber registered",
		"subscriber_id", id,
		"user_id", userID,
		"remote_addr", remoteAddrOf(h),
	)
	return l, nil
}

// forget drops the lease from the index if it is still the current one for its id.
func (d *Directory) forget(l *lease) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.leases[l.id] == l {
		delete(d.leases, l.id)
	}
}

// heartbeatFailed runs on the heartbeat goroutine after it stopped itself.
func (d *Directory) heartbeatFailed(l *lease, err error) {
	d.diagnostics.RecordHeartbeatError(l.userID, l.id, remoteAddrOf(l.handle), err)

	if c, ok := l.handle.(Closer); ok {
		if cerr := c.Close(); cerr != nil {
			d.logger.Debug("Closing failed subscriber", "subscriber_id", l.id, "error", cerr)
		}
	}
	l.release()
}

func (d *Directory) sendConnected(l *lease) {
	d.sendTo(l, events.TypeConnected, events.ConnectedEvent{
		SubscriberID: l.id,
		Message:      "Connected to presence stream",
	})
}

func (d *Directory) pushSnapshot(ctx context.Context, l *lease) {
	states, err := d.snapshots.BuildInitialSnapshot(ctx)
	if err != nil {
		metrics.SnapshotFailures.Inc()
		d.logger.Warn("Initial snapshot unavailable, subscriber continues without it",
			"subscriber_id", l.id,
			"error", err,
		)
		return
	}
	d.sendTo(l, events.TypeSnapshot, states)
}

// sendTo writes one event to a single subscriber.
func (d *Directory) sendTo(l *lease, eventName string, payload any) {
	evt, err := events.New(eventName, payload)
	if err != nil {
		d.logger.Error("Failed to encode event", "event", eventName, "error", err)
		return
	}

	if err := safeWrite(l.handle, FormatFrame(evt)); err != nil {
		metrics.WriteFailures.WithLabelValues("direct").Inc()
		d.logger.Warn("Direct write failed",
			"event", eventName,
			"subscriber_id", l.id,
			"remote_addr", remoteAddrOf(l.handle),
			"error", err,
		)
		return
	}
	metrics.FramesSent.WithLabelValues(eventName).Inc()
}

// Release ends a subscription explicitly. It reports whether id was registered.
func (d *Directory) Release(id string) bool {
	d.mu.Lock()
	l := d.leases[id]
	d.mu.Unlock()

	if l == nil {
		return false
	}
	l.release()
	return true
}

// BroadcastPresence sends a presence change to every global subscriber.
func (d *Directory) BroadcastPresence(evt events.PresenceEvent) BroadcastReport {
	return d.broadcaster.BroadcastPresence(evt)
}

// BroadcastRaw sends a named event to every global subscriber.
func (d *Directory) BroadcastRaw(eventName string, payload any) BroadcastReport {
	return d.broadcaster.BroadcastRaw(eventName, payload)
}

// BroadcastToUser sends a named event to every subscriber of userID.
func (d *Directory) BroadcastToUser(userID, eventName string, payload any) BroadcastReport {
	return d.broadcaster.BroadcastToUser(userID, eventName, payload)
}

// CountGlobal returns the number of global subscribers.
func (d *Directory) CountGlobal() int {
	return d.registry.CountGlobal()
}

// CountForUser returns the number of subscribers for userID.
func (d *Directory) CountForUser(userID string) int {
	return d.registry.CountForUser(userID)
}

// Registry exposes the underlying registry for read-only queries.
func (d *Directory) Registry() *Registry {
	return d.registry
}

// Diagnostics exposes the per-user diagnostics store.
func (d *Directory) Diagnostics() *Diagnostics {
	return d.diagnostics
}

// Closed reports whether Shutdown has been called.
func (d *Directory) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Status returns registry sizes and per-user diagnostics. It never panics.
func (d *Directory) Status() (status Status, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Building presence status failed", "panic", fmt.Sprint(r))
			status = Status{}
			err = ErrStatusUnavailable
		}
	}()

	return Status{
		GlobalCount:   d.registry.CountGlobal(),
		PerUserCounts: d.registry.UserCounts(),
		LastEvents:    d.diagnostics.Snapshot(),
		SnapshotState: d.snapshots.BreakerState(),
	}, nil
}

// Shutdown closes every live handle, releases every lease and waits for the
// heartbeats to exit or ctx to end. Subscribing afterwards fails with
// ErrDirectoryClosed.
func (d *Directory) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	leases := make([]*lease, 0, len(d.leases))
	for _, l := range d.leases {
		leases = append(leases, l)
	}
	d.mu.Unlock()

	d.logger.Info("Shutting down presence directory", "subscribers", len(leases))

	for _, l := range leases {
		if c, ok := l.handle.(Closer); ok {
			_ = c.Close()
		}
		l.release()
	}

	for _, l := range leases {
		done := l.heartbeatDone()
		if done == nil {
			continue
		}
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
