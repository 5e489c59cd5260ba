package repository_test

import (
	"github.com/welldanyogia/presence-stream/internal/api"
	"github.com/welldanyogia/presence-stream/internal/presence"
	"github.com/welldanyogia/presence-stream/internal/repository"
)

// The stores expose exactly what the presence directory and the trigger
// handlers consume.
var (
	_ presence.OnlineLister     = (*repository.UserRepo)(nil)
	_ api.PresenceStore         = (*repository.UserRepo)(nil)
	_ api.SessionRevoker        = repository.NewSessionRepository(nil)
	_ repository.UserRepository = (*repository.UserRepo)(nil)
)
