// Package ctxlog carries a *slog.Logger in a context.Context so that the
// assembly pipeline can log without threading a logger argument through
// every call.
package ctxlog

import (
	"context"
	"log/slog"
)

// key is unexported so no other package can collide with this context entry.
type key struct{}

// WithLogger returns a context carrying logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, key{}, logger)
}

// FromContext returns the logger carried by ctx, falling back to
// slog.Default for contexts that never passed through WithLogger (tests,
// library use).
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(key{}).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}
