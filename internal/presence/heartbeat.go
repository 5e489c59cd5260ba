package presence

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/welldanyogia/presence-stream/internal/metrics"
)

// DefaultHeartbeatInterval is used when no interval is configured.
const DefaultHeartbeatInterval = 7 * time.Second

// heartbeatLogEvery controls how often a healthy heartbeat logs at debug level.
const heartbeatLogEvery = 30

// Heartbeat writes keep-alive frames to one handle on a fixed interval so
// idle-timeout proxies do not reap the stream. It stops itself on the first
// failed write.
type Heartbeat struct {
	handle    Writable
	contextID string
	interval  time.Duration
	logger    *slog.Logger
	onFailure func(err error)

	ticks    atomic.Int64
	stopped  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// StartHeartbeat starts the keep-alive loop for h. onFailure runs at most
// once, after the heartbeat has stopped itself, and never after an external Stop.
func StartHeartbeat(h Writable, contextID string, interval time.Duration, logger *slog.Logger, onFailure func(err error)) *Heartbeat {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	if logger == nil {
		logger = slog.Default()
	}

	hb := &Heartbeat{
		handle:    h,
		contextID: contextID,
		interval:  interval,
		logger:    logger,
		onFailure: onFailure,
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}
	go hb.run()
	return hb
}

// Stop cancels the heartbeat. It is idempotent and does not wait for the
// loop to exit; use Done for that.
func (hb *Heartbeat) Stop() {
	hb.halt()
}

// halt stops the heartbeat and reports whether this call did it.
func (hb *Heartbeat) halt() bool {
	first := false
	hb.stopOnce.Do(func() {
		first = true
		hb.stopped.Store(true)
		close(hb.stopCh)
	})
	return first
}

// Stopped reports whether the heartbeat has been cancelled.
func (hb *Heartbeat) Stopped() bool {
	return hb.stopped.Load()
}

// Ticks returns the number of keep-alive frames written.
func (hb *Heartbeat) Ticks() int64 {
	return hb.ticks.Load()
}

// Done is closed once the loop goroutine has exited.
func (hb *Heartbeat) Done() <-chan struct{} {
	return hb.done
}

func (hb *Heartbeat) run() {
	defer close(hb.done)

	ticker := time.NewTicker(hb.interval)
	defer ticker.Stop()

	for {
		select {
		case <-hb.stopCh:
			return
		case <-ticker.C:
			if !hb.beat() {
				return
			}
		}
	}
}

// beat writes one keep-alive frame. It returns false when the loop should exit.
func (hb *Heartbeat) beat() bool {
	if hb.stopped.Load() {
		return false
	}

	// Best effort: a handle whose transport re-arms deadlines gets them cleared
	// before every write.
	if dc, ok := hb.handle.(DeadlineClearer); ok {
		_ = dc.ClearDeadlines()
	}

	if err := hb.handle.Write(KeepAliveFrame); err != nil {
		if !hb.halt() {
			// Stopped externally while writing; cleanup is someone else's.
			return false
		}

		metrics.WriteFailures.WithLabelValues("heartbeat").Inc()
		hb.logger.Warn("Heartbeat write failed, stopping",
			"subscriber_id", hb.contextID,
			"remote_addr", remoteAddrOf(hb.handle),
			"ticks", hb.ticks.Load(),
			"error", err,
		)

		if hb.onFailure != nil {
			hb.onFailure(err)
		}
		return false
	}

	n := hb.ticks.Add(1)
	metrics.HeartbeatTicks.Inc()
	if n%heartbeatLogEvery == 0 {
		hb.logger.Debug("Heartbeat alive",
			"subscriber_id", hb.contextID,
			"remote_addr", remoteAddrOf(hb.handle),
			"ticks", n,
		)
	}
	return true
}
