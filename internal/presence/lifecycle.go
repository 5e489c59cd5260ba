package presence

import (
	"log/slog"
	"sync"
)

// Lifecycle ties registry membership to the liveness of a handle's transport.
// The close signal is authoritative: it removes the subscriber and runs the
// caller's cleanup. The error signal is only logged.
type Lifecycle struct {
	registry    *Registry
	diagnostics *Diagnostics
	logger      *slog.Logger
}

// NewLifecycle creates a Lifecycle over registry and diagnostics.
func NewLifecycle(registry *Registry, diagnostics *Diagnostics, logger *slog.Logger) *Lifecycle {
	if logger == nil {
		logger = slog.Default()
	}
	return &Lifecycle{
		registry:    registry,
		diagnostics: diagnostics,
		logger:      logger,
	}
}

// binding runs its cleanup once and detaches the signal listeners it tracks.
type binding struct {
	once      sync.Once
	mu        sync.Mutex
	finished  bool
	detachers []func()
}

// track remembers a detach func, or runs it at once if cleanup already happened.
func (b *binding) track(detach func()) {
	b.mu.Lock()
	if b.finished {
		b.mu.Unlock()
		detach()
		return
	}
	b.detachers = append(b.detachers, detach)
	b.mu.Unlock()
}

func (b *binding) run(fn func()) {
	b.once.Do(func() {
		fn()

		b.mu.Lock()
		b.finished = true
		detachers := b.detachers
		b.detachers = nil
		b.mu.Unlock()

		for _, detach := range detachers {
			detach()
		}
	})
}

// BindGlobal wires h's close signal to removal of id from the global registry
// followed by onCleanup. It returns the idempotent cleanup closure and whether
// h exposed Signals at all; when it did not, the caller must invoke cleanup.
func (lc *Lifecycle) BindGlobal(h Writable, id string, onCleanup func()) (cleanup func(), bound bool) {
	b := &binding{}
	cleanup = func() {
		b.run(func() {
			lc.registry.RemoveGlobal(id)
			if onCleanup != nil {
				onCleanup()
			}
			lc.logger.Debug("Global subscriber released", "subscriber_id", id)
		})
	}
	return cleanup, lc.bind(h, b, cleanup, id, "")
}

// BindUser is BindGlobal for the per-user registry. It also records the close
// and the connection's lifetime in diagnostics.
func (lc *Lifecycle) BindUser(h Writable, userID, id string, onCleanup func()) (cleanup func(), bound bool) {
	b := &binding{}
	cleanup = func() {
		b.run(func() {
			lc.registry.RemoveForUser(userID, id)
			lived := lc.diagnostics.RecordClose(userID)
			if onCleanup != nil {
				onCleanup()
			}
			lc.logger.Debug("User subscriber released",
				"subscriber_id", id,
				"user_id", userID,
				"duration", lived,
			)
		})
	}
	return cleanup, lc.bind(h, b, cleanup, id, userID)
}

func (lc *Lifecycle) bind(h Writable, b *binding, cleanup func(), id, userID string) bool {
	signals, ok := h.(Signals)
	if !ok {
		return false
	}

	b.track(signals.OnError(func(err error) {
		lc.logger.Warn("Subscriber transport error",
			"subscriber_id", id,
			"user_id", userID,
			"remote_addr", remoteAddrOf(h),
			"error", err,
		)
	}))
	b.track(signals.OnClose(cleanup))
	return true
}
