package http

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	"github.com/nuru484/BeThere-server/internal/application"
	"github.com/nuru484/BeThere-server/internal/persistence"
)

var (
	errMissingToken = errors.New("authentication token is required")
	errInvalidToken = errors.New("authentication token is invalid or expired")
)

// TokenClaims are the claims carried by access tokens.
type TokenClaims struct {
	ID   string `json:"id"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// RequireToken verifies the bearer token with the shared secret and attaches
// the principal it names to the request context.
func RequireToken(secret []byte, logger *slog.Logger) func(http.Handler) http.Handler {
	responder := newResponder(logger)
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				responder.writeFailure(r.Context(), w, http.StatusUnauthorized, "unauthorized", errMissingToken)
				return
			}

			claims := &TokenClaims{}
			_, err := parser.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
				return secret, nil
			})
			if err != nil || strings.TrimSpace(claims.ID) == "" {
				if err == nil {
					err = fmt.Errorf("token has no subject id")
				}
				responder.loggerFor(r.Context()).WarnContext(r.Context(), "token rejected", "error", err)
				responder.writeFailure(r.Context(), w, http.StatusUnauthorized, "unauthorized", errInvalidToken)
				return
			}

			principal := application.Principal{
				UserID:  claims.ID,
				IsAdmin: strings.EqualFold(claims.Role, persistence.RoleAdmin),
			}
			next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), principal)))
		})
	}
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return ""
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// RequestLogger logs one line per request and exposes a request scoped logger
// to downstream handlers.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	if base == nil {
		base = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Request-ID")
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set("X-Request-ID", id)

			logger := base.With(
				"request_id", id,
				"method", r.Method,
				"path", r.URL.Path,
			)

			ctx := ContextWithLogger(r.Context(), logger)
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(rec, r.WithContext(ctx))
			logger.InfoContext(ctx, "request completed", "status", rec.status, "duration", time.Since(start))
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}
