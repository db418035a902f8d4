package http

import (
	"context"
	"log/slog"
)

// handlerLogger derives the logger of one handler call. The request logger
// from ctx is preferred over fallback, and the caller's user id is attached
// once the token middleware has run.
func handlerLogger(ctx context.Context, fallback *slog.Logger, handlerName, operation string, attrs ...any) *slog.Logger {
	logger := LoggerFromContext(ctx)
	switch {
	case logger != nil:
	case fallback != nil:
		logger = fallback
	default:
		logger = slog.Default()
	}

	pairs := make([]any, 0, 6+len(attrs))
	pairs = append(pairs, "handler", handlerName, "operation", operation)
	if principal, ok := PrincipalFromContext(ctx); ok {
		pairs = append(pairs, "user_id", principal.UserID)
	}
	return logger.With(append(pairs, attrs...)...)
}
