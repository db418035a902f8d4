package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/nuru484/BeThere-server/internal/application"
)

var testSecret = []byte("test-secret")

func signToken(t *testing.T, method jwt.SigningMethod, secret []byte, id, role string, expires time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(method, TokenClaims{
		ID:   id,
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	})
	signed, err := token.SignedString(secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestRequireToken(t *testing.T) {
	t.Parallel()

	hour := time.Now().Add(time.Hour)
	tests := []struct {
		name       string
		header     func(t *testing.T) string
		wantStatus int
		want       application.Principal
	}{
		{
			name:       "missing credentials",
			header:     func(t *testing.T) string { return "" },
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "malformed bearer header",
			header:     func(t *testing.T) string { return "Bearer" },
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "foreign secret",
			header: func(t *testing.T) string {
				return "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte("other"), "user-1", "USER", hour)
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "expired token",
			header: func(t *testing.T) string {
				return "Bearer " + signToken(t, jwt.SigningMethodHS256, testSecret, "user-1", "USER", time.Now().Add(-time.Minute))
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "unexpected signing method",
			header: func(t *testing.T) string {
				return "Bearer " + signToken(t, jwt.SigningMethodHS384, testSecret, "user-1", "USER", hour)
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "token without user id",
			header: func(t *testing.T) string {
				return "Bearer " + signToken(t, jwt.SigningMethodHS256, testSecret, "", "USER", hour)
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "regular user",
			header: func(t *testing.T) string {
				return "Bearer " + signToken(t, jwt.SigningMethodHS256, testSecret, "user-1", "USER", hour)
			},
			wantStatus: http.StatusOK,
			want:       application.Principal{UserID: "user-1"},
		},
		{
			name: "administrator",
			header: func(t *testing.T) string {
				return "bearer " + signToken(t, jwt.SigningMethodHS256, testSecret, "admin-1", "ADMIN", hour)
			},
			wantStatus: http.StatusOK,
			want:       application.Principal{UserID: "admin-1", IsAdmin: true},
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var got application.Principal
			handler := RequireToken(testSecret, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				p, ok := PrincipalFromContext(r.Context())
				if !ok {
					t.Fatal("expected principal in request context")
				}
				got = p
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/events", nil)
			if h := tc.header(t); h != "" {
				req.Header.Set("Authorization", h)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Fatalf("expected status %d, got %d (%s)", tc.wantStatus, rec.Code, rec.Body.String())
			}
			if tc.wantStatus != http.StatusOK {
				var body errorResponse
				if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
					t.Fatalf("decode body: %v", err)
				}
				if body.ErrorCode != "unauthorized" || body.Message == "" {
					t.Fatalf("unexpected error body %+v", body)
				}
				return
			}
			if got != tc.want {
				t.Fatalf("expected principal %+v, got %+v", tc.want, got)
			}
		})
	}
}

func TestRequestLogger(t *testing.T) {
	t.Parallel()

	t.Run("assigns a request id and exposes a logger", func(t *testing.T) {
		t.Parallel()
		handler := RequestLogger(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if LoggerFromContext(r.Context()) == nil {
				t.Fatal("expected logger in request context")
			}
			w.WriteHeader(http.StatusTeapot)
		}))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

		if rec.Code != http.StatusTeapot {
			t.Fatalf("expected handler status to pass through, got %d", rec.Code)
		}
		if rec.Header().Get("X-Request-ID") == "" {
			t.Fatal("expected generated request id")
		}
	})

	t.Run("keeps a caller supplied request id", func(t *testing.T) {
		t.Parallel()
		handler := RequestLogger(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.Header.Set("X-Request-ID", "abc-123")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if got := rec.Header().Get("X-Request-ID"); got != "abc-123" {
			t.Fatalf("expected request id to be echoed, got %q", got)
		}
	})
}
