// Package context holds the request-context keys shared by middleware and handlers.
package context

import (
	"context"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

// UserIDKey carries the id of the authenticated caller.
const UserIDKey ContextKey = "user_id"

// WithUserID returns a copy of ctx carrying the authenticated user ID
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// ExtractUserID extracts the user ID from the request context
func ExtractUserID(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(UserIDKey).(string)
	return userID, ok && userID != ""
}
