package auth

import "context"

type contextKey struct{}

// WithUserID returns a context carrying the authenticated user's id.
func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, contextKey{}, userID)
}

// UserID returns the authenticated user's id, or 0 if the context carries none.
func UserID(ctx context.Context) int64 {
	id, ok := ctx.Value(contextKey{}).(int64)
	if !ok {
		return 0
	}
	return id
}
