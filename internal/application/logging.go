package application

import (
	"context"
	"errors"
	"log/slog"

	"github.com/nuru484/BeThere-server/internal/geo"
	"github.com/nuru484/BeThere-server/internal/logging"
)

func defaultLogger(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}

func serviceLogger(ctx context.Context, base *slog.Logger, serviceName, operation string, attrs ...any) *slog.Logger {
	logger := logging.FromContext(ctx)
	if logger == nil {
		logger = base
	}
	if logger == nil {
		logger = slog.Default()
	}

	pairs := []any{"service", serviceName}
	if operation != "" {
		pairs = append(pairs, "operation", operation)
	}
	if len(attrs) > 0 {
		pairs = append(pairs, attrs...)
	}
	return logger.With(pairs...)
}

// ErrorKind maps sentinel and validation errors to a stable label used in
// logs and API error codes.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrOutOfRange):
		return "out_of_range"
	case errors.Is(err, ErrNoActiveSession):
		return "no_active_session"
	case errors.Is(err, ErrWindowClosed):
		return "window_closed"
	case errors.Is(err, ErrAlreadyCheckedIn):
		return "already_checked_in"
	case errors.Is(err, ErrAlreadyCheckedOut):
		return "already_checked_out"
	case errors.Is(err, ErrNotCheckedIn):
		return "not_checked_in"
	case errors.Is(err, ErrInvalidOrdering):
		return "invalid_ordering"
	case errors.Is(err, ErrInvalidConfiguration):
		return "invalid_configuration"
	case errors.Is(err, ErrInvalidArgument), errors.Is(err, geo.ErrInvalidCoordinate):
		return "invalid_argument"
	}

	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return "validation"
	}

	return "unexpected"
}
