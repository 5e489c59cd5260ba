package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/welldanyogia/presence-stream/internal/metrics"
)

// SessionRepository defines the session operations behind a forced logout
type SessionRepository interface {
	DeleteByUserID(ctx context.Context, userID uuid.UUID) (int64, error)
}

// sessionRepository implements SessionRepository using PostgreSQL
type sessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a new SessionRepository instance
func NewSessionRepository(pool *pgxpool.Pool) SessionRepository {
	return &sessionRepository{pool: pool}
}

// DeleteByUserID revokes every session of a user and returns how many were removed
func (r *sessionRepository) DeleteByUserID(ctx context.Context, userID uuid.UUID) (int64, error) {
	defer metrics.TimeQuery("delete_sessions")()

	query := `DELETE FROM sessions WHERE user_id = $1`

	result, err := r.pool.Exec(ctx, query, userID)
	if err != nil {
		return 0, fmt.Errorf("delete sessions: %w", err)
	}
	return result.RowsAffected(), nil
}
