package http

import (
	"context"
	"net/http"
	"time"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type RouterConfig struct {
	Events     *EventHandler
	Attendance *AttendanceHandler
	// Auth guards every route except the health check.
	Auth       func(http.Handler) http.Handler
	Health     Pinger
	Middleware []func(http.Handler) http.Handler
}

func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	guard := cfg.Auth
	if guard == nil {
		guard = func(next http.Handler) http.Handler { return next }
	}
	handle := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, guard(fn))
	}

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		body := map[string]string{"status": "ok"}
		if cfg.Health != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := cfg.Health.Ping(ctx); err != nil {
				status = http.StatusServiceUnavailable
				body["status"] = "unavailable"
			}
		}
		newResponder(nil).writeJSON(r.Context(), w, status, body)
	})

	if cfg.Events != nil {
		handle("POST /events", cfg.Events.Create)
		handle("GET /events", cfg.Events.List)
		handle("GET /events/{id}", cfg.Events.Get)
		handle("PUT /events/{id}", cfg.Events.Update)
		handle("DELETE /events/{id}", cfg.Events.Delete)
	}

	if cfg.Attendance != nil {
		handle("POST /events/{id}/attendance", cfg.Attendance.CheckIn)
		handle("PUT /events/{id}/attendance", cfg.Attendance.CheckOut)
		handle("GET /events/{id}/attendance", cfg.Attendance.ListByEvent)
		handle("GET /users/{id}/attendance", cfg.Attendance.ListByUser)
	}

	var handler http.Handler = mux
	for i := len(cfg.Middleware) - 1; i >= 0; i-- {
		if cfg.Middleware[i] != nil {
			handler = cfg.Middleware[i](handler)
		}
	}

	return handler
}
