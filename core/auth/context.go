package auth

import (
	"context"

	"incident-desk/core/store"
)

type contextKey string

const SessionContextKey contextKey = "session"

// Credentials is the login payload.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// SessionFromContext returns the session the middleware attached, if any.
func SessionFromContext(ctx context.Context) (*store.SessionRecord, bool) {
	sr, ok := ctx.Value(SessionContextKey).(*store.SessionRecord)
	return sr, ok && sr != nil
}

func WithSession(ctx context.Context, sr *store.SessionRecord) context.Context {
	return context.WithValue(ctx, SessionContextKey, sr)
}
