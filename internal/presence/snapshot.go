package presence

import (
	"context"
	"log/slog"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/welldanyogia/presence-stream/internal/events"
)

// OnlineLister is the external user store's "who is flagged online" query.
type OnlineLister interface {
	ListOnlineUserIDs(ctx context.Context) ([]string, error)
}

// SnapshotConfig tunes the snapshot query and its circuit breaker.
type SnapshotConfig struct {
	Timeout          time.Duration // per query; 0 disables the extra deadline
	FailureThreshold uint32        // consecutive failures before the breaker opens
	OpenTimeout      time.Duration // how long the breaker stays open
}

// DefaultSnapshotConfig returns the default snapshot configuration.
func DefaultSnapshotConfig() SnapshotConfig {
	return SnapshotConfig{
		Timeout:          3 * time.Second,
		FailureThreshold: 5,
		OpenTimeout:      30 * time.Second,
	}
}

// SnapshotProvider builds the initial presence view for new subscribers.
type SnapshotProvider struct {
	store   OnlineLister
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker[[]string]
	logger  *slog.Logger
}

// NewSnapshotProvider creates a SnapshotProvider. A nil store yields empty snapshots.
func NewSnapshotProvider(store OnlineLister, cfg SnapshotConfig, logger *slog.Logger) *SnapshotProvider {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = DefaultSnapshotConfig().FailureThreshold
	}

	threshold := cfg.FailureThreshold
	settings := gobreaker.Settings{
		Name:        "presence-snapshot",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Snapshot breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	}

	return &SnapshotProvider{
		store:   store,
		timeout: cfg.Timeout,
		breaker: gobreaker.NewCircuitBreaker[[]string](settings),
		logger:  logger,
	}
}

// BuildInitialSnapshot returns every user currently flagged online.
func (p *SnapshotProvider) BuildInitialSnapshot(ctx context.Context) ([]events.PresenceState, error) {
	if p.store == nil {
		return []events.PresenceState{}, nil
	}

	ids, err := p.breaker.Execute(func() ([]string, error) {
		queryCtx := ctx
		if p.timeout > 0 {
			var cancel context.CancelFunc
			queryCtx, cancel = context.WithTimeout(ctx, p.timeout)
			defer cancel()
		}
		return p.store.ListOnlineUserIDs(queryCtx)
	})
	if err != nil {
		return nil, err
	}

	states := make([]events.PresenceState, 0, len(ids))
	for _, id := range ids {
		states = append(states, events.PresenceState{ID: id, Online: true})
	}
	return states, nil
}

// BreakerState reports the circuit breaker state for diagnostics.
func (p *SnapshotProvider) BreakerState() string {
	return p.breaker.State().String()
}
