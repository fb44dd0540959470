package middleware

import (
	"context"
	"errors"

	"connectrpc.com/connect"
)

// SessionHeader carries the bill session ID on every call after CreateSession.
const SessionHeader = "Splitit-Session"

// ErrMissingSession is returned when a call needs a session but has none.
var ErrMissingSession = errors.New("missing " + SessionHeader + " header")

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

// SessionIDKey is the context key for the caller's session ID.
const SessionIDKey contextKey = "session_id"

// GetSessionID extracts the session ID from the context.
// Returns empty string if not found.
func GetSessionID(ctx context.Context) string {
	id, _ := ctx.Value(SessionIDKey).(string)
	return id
}

// WithSessionID returns a context carrying the session ID.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, SessionIDKey, id)
}

// SessionInterceptor copies the session header into the request context.
// Procedures listed in open may be called without one; every other call
// without the header fails with CodeUnauthenticated.
func SessionInterceptor(open ...string) connect.UnaryInterceptorFunc {
	exempt := make(map[string]bool, len(open))
	for _, p := range open {
		exempt[p] = true
	}
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			id := req.Header().Get(SessionHeader)
			if id == "" {
				if !exempt[req.Spec().Procedure] {
					return nil, connect.NewError(connect.CodeUnauthenticated, ErrMissingSession)
				}
				return next(ctx, req)
			}
			return next(WithSessionID(ctx, id), req)
		}
	}
}
