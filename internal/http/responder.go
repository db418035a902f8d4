package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/nuru484/BeThere-server/internal/application"
)

var (
	errBadRequestBody = errors.New("request body is not valid JSON")
)

type responder struct {
	logger *slog.Logger
}

func newResponder(logger *slog.Logger) responder {
	if logger == nil {
		logger = slog.Default()
	}
	return responder{logger: logger}
}

func (r responder) writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	if w == nil {
		return
	}

	if status == http.StatusNoContent || payload == nil {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		r.loggerFor(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

// writeFailure renders an error that did not come from a service call.
func (r responder) writeFailure(ctx context.Context, w http.ResponseWriter, status int, code string, err error) {
	message := http.StatusText(status)
	if err != nil {
		if msg := strings.TrimSpace(err.Error()); msg != "" {
			message = msg
		}
	}
	r.writeJSON(ctx, w, status, errorResponse{ErrorCode: code, Message: message})
}

// rejectRequest renders a decoding or request validation failure.
func (r responder) rejectRequest(ctx context.Context, w http.ResponseWriter, err error) {
	if errors.Is(err, errBadRequestBody) {
		r.writeFailure(ctx, w, http.StatusBadRequest, "invalid_argument", err)
		return
	}
	r.handleServiceError(ctx, w, err)
}

func (r responder) handleServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}

	kind := application.ErrorKind(err)
	status, message := statusFor(err)
	body := errorResponse{ErrorCode: kind, Message: message}

	var vErr *application.ValidationError
	if errors.As(err, &vErr) {
		body.Errors = vErr.FieldErrors
	}
	if errors.Is(err, application.ErrNoActiveSession) {
		body.Retryable = true
	}

	logger := r.loggerFor(ctx)
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(ctx, "request failed", "status", status, "error", err, "error_kind", kind)
	} else {
		logger.InfoContext(ctx, "request rejected", "status", status, "error", err, "error_kind", kind)
	}
	r.writeJSON(ctx, w, status, body)
}

// statusFor maps a service error to its HTTP status and client message.
func statusFor(err error) (int, string) {
	var (
		vErr     *application.ValidationError
		nfErr    *application.NotFoundError
		rangeErr *application.OutOfRangeError
		winErr   *application.WindowClosedError
	)
	switch {
	case errors.As(err, &vErr):
		return http.StatusBadRequest, "the request contains invalid fields"
	case errors.Is(err, application.ErrInvalidArgument):
		return http.StatusBadRequest, "the request is invalid"
	case errors.Is(err, application.ErrUnauthorized):
		return http.StatusUnauthorized, "authentication is required"
	case errors.Is(err, application.ErrForbidden):
		return http.StatusForbidden, "you do not have permission to perform this action"
	case errors.As(err, &nfErr):
		return http.StatusNotFound, nfErr.Error()
	case errors.Is(err, application.ErrNotFound):
		return http.StatusNotFound, "the requested resource was not found"
	case errors.As(err, &rangeErr):
		return http.StatusUnprocessableEntity, rangeErr.Error()
	case errors.As(err, &winErr):
		return http.StatusUnprocessableEntity, winErr.Error()
	case errors.Is(err, application.ErrNoActiveSession):
		return http.StatusConflict, "there is no active session for this event today"
	case errors.Is(err, application.ErrAlreadyCheckedIn):
		return http.StatusConflict, "you have already checked in to this session"
	case errors.Is(err, application.ErrAlreadyCheckedOut):
		return http.StatusConflict, "you have already checked out of this session"
	case errors.Is(err, application.ErrNotCheckedIn):
		return http.StatusConflict, "you have not checked in to this session"
	case errors.Is(err, application.ErrInvalidOrdering):
		return http.StatusConflict, "check-out must come after check-in"
	}
	return http.StatusInternalServerError, "an internal error occurred"
}

func (r responder) loggerFor(ctx context.Context) *slog.Logger {
	if logger := LoggerFromContext(ctx); logger != nil {
		return logger
	}
	return r.logger
}

type errorResponse struct {
	ErrorCode string            `json:"error_code,omitempty"`
	Message   string            `json:"message"`
	Errors    map[string]string `json:"errors,omitempty"`
	Retryable bool              `json:"retryable,omitempty"`
}
