package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/welldanyogia/presence-stream/internal/metrics"
)

// Common errors
var (
	ErrUserNotFound = errors.New("user not found")
)

// UserRepository defines the presence-related user data access
type UserRepository interface {
	ListOnlineUserIDs(ctx context.Context) ([]string, error)
	SetOnline(ctx context.Context, id uuid.UUID, online bool) error
}

// UserRepo implements UserRepository using PostgreSQL
type UserRepo struct {
	db *sqlx.DB
}

// NewUserRepo creates a new UserRepo instance
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

// ListOnlineUserIDs returns every user currently flagged online, most
// recently seen first.
func (r *UserRepo) ListOnlineUserIDs(ctx context.Context) ([]string, error) {
	defer metrics.TimeQuery("list_online_users")()

	query := `
		SELECT id, last_seen_at
		FROM users
		WHERE is_online = TRUE AND is_active = TRUE
		ORDER BY last_seen_at DESC NULLS LAST
	`

	var rows []OnlineUser
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("list online users: %w", err)
	}
	return onlineIDs(rows), nil
}

// SetOnline updates a user's online flag and stamps last_seen_at.
func (r *UserRepo) SetOnline(ctx context.Context, id uuid.UUID, online bool) error {
	defer metrics.TimeQuery("set_online")()

	query := `
		UPDATE users
		SET is_online = $2, last_seen_at = NOW(), updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, id, online)
	if err != nil {
		return fmt.Errorf("set online: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func onlineIDs(rows []OnlineUser) []string {
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID.String())
	}
	return ids
}
