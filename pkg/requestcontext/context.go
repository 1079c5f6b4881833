// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values. Values are set by middleware and consumed by
// handlers and services without either side importing net/http.
package requestcontext

import "context"

type userIDKey struct{}

// ContextKeyUserID is exported for tests that need context.WithValue directly.
var ContextKeyUserID = userIDKey{}

// WithUserID stores the authenticated user's ID in the context.
func WithUserID(ctx context.Context, userID string) context.Context {
	if userID == "" {
		return ctx
	}
	return context.WithValue(ctx, ContextKeyUserID, userID)
}

// UserID returns the authenticated user's ID, or "" when unauthenticated.
func UserID(ctx context.Context) string {
	userID, _ := ctx.Value(ContextKeyUserID).(string)
	return userID
}
