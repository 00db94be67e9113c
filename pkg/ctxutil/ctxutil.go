package ctxutil

import (
	"context"
)

type ctxKey string

const (
	adminKey     ctxKey = "admin"
	requestIDKey ctxKey = "request_id"
	signalIDKey  ctxKey = "signal_id"
)

// WithAdmin marks the context as authenticated with the admin token.
func WithAdmin(ctx context.Context) context.Context {
	return context.WithValue(ctx, adminKey, true)
}

// IsAdmin reports whether the context was marked by WithAdmin.
func IsAdmin(ctx context.Context) bool {
	v, _ := ctx.Value(adminKey).(bool)
	return v
}

// WithRequestID stores the request ID in the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromCtx extracts the request ID from the context.
// Returns an empty string if absent.
func RequestIDFromCtx(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithSignalID stores the signal being processed, for log correlation in
// background work that has no request ID.
func WithSignalID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, signalIDKey, id)
}

// SignalIDFromCtx extracts the signal ID from the context.
func SignalIDFromCtx(ctx context.Context) string {
	id, _ := ctx.Value(signalIDKey).(string)
	return id
}
