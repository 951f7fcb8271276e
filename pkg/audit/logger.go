package audit

import (
	"context"
)

// Logger is the append-only audit sink. Implementations must tolerate
// being called from request paths: Append either records the event or
// returns an error, and callers treat failures as non-fatal.
type Logger interface {
	// Append records an audit event
	Append(ctx context.Context, event *Event) error

	// Close closes the logger and flushes any buffered events
	Close() error
}

// contextKey is the type for context keys
type contextKey string

// loggerKey is the context key for the audit logger
const loggerKey contextKey = "audit_logger"

// WithLogger adds an audit logger to the context
func WithLogger(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext retrieves the audit logger from context, falling back to
// a no-op logger when none is set.
func FromContext(ctx context.Context) Logger {
	if logger, ok := ctx.Value(loggerKey).(Logger); ok {
		return logger
	}
	return NopLogger{}
}

// NopLogger discards every event.
type NopLogger struct{}

func (NopLogger) Append(ctx context.Context, event *Event) error { return nil }
func (NopLogger) Close() error                                   { return nil }
