package metrics

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DBStatsCollector samples connection statistics from the pgx pool and the
// database/sql handle underneath sqlx.
type DBStatsCollector struct {
	pgxPool  *pgxpool.Pool
	sqlDB    *sql.DB
	logger   *slog.Logger
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewDBStatsCollector creates a new database stats collector. Either source may be nil.
func NewDBStatsCollector(pgxPool *pgxpool.Pool, sqlDB *sql.DB, logger *slog.Logger) *DBStatsCollector {
	if logger == nil {
		logger = slog.Default()
	}
	return &DBStatsCollector{
		pgxPool: pgxPool,
		sqlDB:   sqlDB,
		logger:  logger,
		stopCh:  make(chan struct{}),
	}
}

// Start begins collecting database statistics at regular intervals
func (c *DBStatsCollector) Start(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				return
			}
		}
	}()

	c.logger.Info("Database stats collector started", "interval", interval)
}

// Stop stops the database stats collector. Safe to call more than once.
func (c *DBStatsCollector) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
		c.logger.Info("Database stats collector stopped")
	})
}

func (c *DBStatsCollector) collect() {
	if c.pgxPool != nil {
		stat := c.pgxPool.Stat()
		DBConnectionsOpen.WithLabelValues("pgx").Set(float64(stat.TotalConns()))
		DBConnectionsInUse.WithLabelValues("pgx").Set(float64(stat.AcquiredConns()))
		DBConnectionsIdle.WithLabelValues("pgx").Set(float64(stat.IdleConns()))
	}

	if c.sqlDB != nil {
		stats := c.sqlDB.Stats()
		DBConnectionsOpen.WithLabelValues("sqlx").Set(float64(stats.OpenConnections))
		DBConnectionsInUse.WithLabelValues("sqlx").Set(float64(stats.InUse))
		DBConnectionsIdle.WithLabelValues("sqlx").Set(float64(stats.Idle))
	}
}

// RecordQueryDuration records the duration of a database query
func RecordQueryDuration(operation string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// TimeQuery is a helper function to time database queries
// Usage: defer metrics.TimeQuery("list_online_users")()
func TimeQuery(operation string) func() {
	start := time.Now()
	return func() {
		RecordQueryDuration(operation, time.Since(start))
	}
}

// PingDatabase checks database connectivity and records the result
func PingDatabase(ctx context.Context, pool *pgxpool.Pool) error {
	start := time.Now()
	err := pool.Ping(ctx)
	RecordQueryDuration("ping", time.Since(start))
	return err
}
