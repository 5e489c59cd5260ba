package repository

import (
	"time"

	"github.com/google/uuid"
)

// OnlineUser is one row of the "who is online" query.
type OnlineUser struct {
	ID         uuid.UUID  `db:"id"`
	LastSeenAt *time.Time `db:"last_seen_at"`
}
