package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/nuru484/BeThere-server/internal/application"
	"github.com/nuru484/BeThere-server/internal/persistence"
)

type eventServiceStub struct {
	mu      sync.Mutex
	created []application.CreateEventParams
	updated []application.UpdateEventParams
	deleted []string
	event   persistence.Event
	events  []persistence.Event
	err     error
}

func (s *eventServiceStub) CreateEvent(ctx context.Context, params application.CreateEventParams) (persistence.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = append(s.created, params)
	if s.err != nil {
		return persistence.Event{}, s.err
	}
	return s.event, nil
}

func (s *eventServiceStub) UpdateEvent(ctx context.Context, params application.UpdateEventParams) (persistence.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updated = append(s.updated, params)
	if s.err != nil {
		return persistence.Event{}, s.err
	}
	return s.event, nil
}

func (s *eventServiceStub) GetEvent(ctx context.Context, id string) (persistence.Event, error) {
	if s.err != nil {
		return persistence.Event{}, s.err
	}
	return s.event, nil
}

func (s *eventServiceStub) ListEvents(ctx context.Context) ([]persistence.Event, error) {
	return s.events, s.err
}

func (s *eventServiceStub) DeleteEvent(ctx context.Context, principal application.Principal, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, id)
	return s.err
}

type attendanceServiceStub struct {
	mu        sync.Mutex
	checkIns  []application.CheckInRequest
	checkOuts []application.CheckOutRequest
	listed    []string
	record    persistence.Attendance
	err       error
}

func (s *attendanceServiceStub) CheckIn(ctx context.Context, req application.CheckInRequest) (persistence.Attendance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkIns = append(s.checkIns, req)
	return s.record, s.err
}

func (s *attendanceServiceStub) CheckOut(ctx context.Context, req application.CheckOutRequest) (persistence.Attendance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkOuts = append(s.checkOuts, req)
	return s.record, s.err
}

func (s *attendanceServiceStub) ListEventAttendance(ctx context.Context, principal application.Principal, eventID string) ([]persistence.Attendance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listed = append(s.listed, "event:"+eventID)
	return []persistence.Attendance{s.record}, s.err
}

func (s *attendanceServiceStub) ListUserAttendance(ctx context.Context, principal application.Principal, userID string) ([]persistence.Attendance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listed = append(s.listed, "user:"+userID)
	return []persistence.Attendance{s.record}, s.err
}

type pingerStub struct{ err error }

func (p pingerStub) Ping(ctx context.Context) error { return p.err }

func newTestRouter(events *eventServiceStub, attendance *attendanceServiceStub, health Pinger) http.Handler {
	return NewRouter(RouterConfig{
		Events:     NewEventHandler(events, time.UTC, nil),
		Attendance: NewAttendanceHandler(attendance, nil),
		Auth:       RequireToken(testSecret, nil),
		Health:     health,
		Middleware: []func(http.Handler) http.Handler{RequestLogger(nil)},
	})
}

func doRequest(t *testing.T, handler http.Handler, method, path, role, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if role != "" {
		id := "user-1"
		if role == persistence.RoleAdmin {
			id = "admin-1"
		}
		req.Header.Set("Authorization", "Bearer "+signToken(t, jwt.SigningMethodHS256, testSecret, id, role, time.Now().Add(time.Hour)))
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var body errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return body
}

const validEventBody = `{
	"title": "Town hall",
	"type": "meeting",
	"location": {"name": "Square", "latitude": 5.556818, "longitude": -0.196477, "city": "Accra"},
	"start_date": "2024-01-10",
	"end_date": "2024-01-12",
	"start_time": "09:00",
	"end_time": "17:00"
}`

func TestEventHandlers(t *testing.T) {
	t.Parallel()

	t.Run("creates events from a valid body", func(t *testing.T) {
		t.Parallel()
		end := time.Date(2024, time.January, 12, 0, 0, 0, 0, time.UTC)
		events := &eventServiceStub{event: persistence.Event{
			ID:        "evt-1",
			Title:     "Town hall",
			StartDate: time.Date(2024, time.January, 10, 0, 0, 0, 0, time.UTC),
			EndDate:   &end,
			StartTime: "09:00",
			EndTime:   "17:00",
		}}
		router := newTestRouter(events, &attendanceServiceStub{}, nil)

		rec := doRequest(t, router, http.MethodPost, "/events", persistence.RoleAdmin, validEventBody)
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
		}
		if len(events.created) != 1 {
			t.Fatalf("expected one create call")
		}
		params := events.created[0]
		if !params.Principal.IsAdmin || params.Principal.UserID != "admin-1" {
			t.Fatalf("expected admin principal, got %+v", params.Principal)
		}
		if !params.Input.StartDate.Equal(time.Date(2024, time.January, 10, 0, 0, 0, 0, time.UTC)) || params.Input.EndDate == nil {
			t.Fatalf("unexpected dates %+v", params.Input)
		}
		if params.Input.Location.Latitude != 5.556818 {
			t.Fatalf("unexpected location %+v", params.Input.Location)
		}

		var dto eventDTO
		if err := json.Unmarshal(rec.Body.Bytes(), &dto); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		if dto.StartDate != "2024-01-10" || dto.EndDate == nil || *dto.EndDate != "2024-01-12" {
			t.Fatalf("unexpected rendered dates %+v", dto)
		}
	})

	t.Run("reports invalid fields", func(t *testing.T) {
		t.Parallel()
		events := &eventServiceStub{}
		router := newTestRouter(events, &attendanceServiceStub{}, nil)

		body := `{"type":"meeting","location":{"name":"Square","latitude":95,"longitude":0},"start_date":"10/01/2024","start_time":"09:00","end_time":"17:00"}`
		rec := doRequest(t, router, http.MethodPost, "/events", persistence.RoleAdmin, body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		resp := decodeError(t, rec)
		if resp.ErrorCode != "validation" {
			t.Fatalf("expected validation error code, got %q", resp.ErrorCode)
		}
		for _, field := range []string{"title", "location.latitude", "start_date"} {
			if resp.Errors[field] == "" {
				t.Errorf("expected %s error, got %v", field, resp.Errors)
			}
		}
		if len(events.created) != 0 {
			t.Fatalf("service should not be called for invalid bodies")
		}
	})

	t.Run("rejects malformed JSON", func(t *testing.T) {
		t.Parallel()
		router := newTestRouter(&eventServiceStub{}, &attendanceServiceStub{}, nil)

		rec := doRequest(t, router, http.MethodPost, "/events", persistence.RoleAdmin, `{"title":`)
		if rec.Code != http.StatusBadRequest || decodeError(t, rec).ErrorCode != "invalid_argument" {
			t.Fatalf("expected 400 invalid_argument, got %d (%s)", rec.Code, rec.Body.String())
		}
	})

	t.Run("maps forbidden to 403", func(t *testing.T) {
		t.Parallel()
		router := newTestRouter(&eventServiceStub{err: application.ErrForbidden}, &attendanceServiceStub{}, nil)

		rec := doRequest(t, router, http.MethodPost, "/events", persistence.RoleUser, validEventBody)
		if rec.Code != http.StatusForbidden || decodeError(t, rec).ErrorCode != "forbidden" {
			t.Fatalf("expected 403 forbidden, got %d (%s)", rec.Code, rec.Body.String())
		}
	})

	t.Run("passes partial updates through", func(t *testing.T) {
		t.Parallel()
		events := &eventServiceStub{event: persistence.Event{ID: "evt-9"}}
		router := newTestRouter(events, &attendanceServiceStub{}, nil)

		rec := doRequest(t, router, http.MethodPut, "/events/evt-9", persistence.RoleAdmin, `{"is_recurring":true,"recurrence_interval_days":7,"clear_end_date":true}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
		}
		params := events.updated[0]
		if params.EventID != "evt-9" || params.Patch.IsRecurring == nil || !*params.Patch.IsRecurring || !params.Patch.ClearEndDate {
			t.Fatalf("unexpected update params %+v", params)
		}
		if params.Patch.Title != nil || params.Patch.StartDate != nil {
			t.Fatalf("expected untouched fields to stay nil")
		}
	})

	t.Run("deletes events", func(t *testing.T) {
		t.Parallel()
		events := &eventServiceStub{}
		router := newTestRouter(events, &attendanceServiceStub{}, nil)

		rec := doRequest(t, router, http.MethodDelete, "/events/evt-3", persistence.RoleAdmin, "")
		if rec.Code != http.StatusNoContent || len(events.deleted) != 1 || events.deleted[0] != "evt-3" {
			t.Fatalf("expected 204 for evt-3, got %d %v", rec.Code, events.deleted)
		}
	})

	t.Run("requires a token", func(t *testing.T) {
		t.Parallel()
		router := newTestRouter(&eventServiceStub{}, &attendanceServiceStub{}, nil)

		rec := doRequest(t, router, http.MethodGet, "/events", "", "")
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("lists events", func(t *testing.T) {
		t.Parallel()
		events := &eventServiceStub{events: []persistence.Event{{ID: "a"}, {ID: "b"}}}
		router := newTestRouter(events, &attendanceServiceStub{}, nil)

		rec := doRequest(t, router, http.MethodGet, "/events", persistence.RoleUser, "")
		var resp eventListResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil || len(resp.Events) != 2 {
			t.Fatalf("expected two events, got %s (%v)", rec.Body.String(), err)
		}
	})
}

func TestAttendanceHandlers(t *testing.T) {
	t.Parallel()

	t.Run("checks in the caller", func(t *testing.T) {
		t.Parallel()
		attendance := &attendanceServiceStub{record: persistence.Attendance{ID: "att-1", Status: persistence.StatusPresent}}
		router := newTestRouter(&eventServiceStub{}, attendance, nil)

		rec := doRequest(t, router, http.MethodPost, "/events/evt-1/attendance", persistence.RoleUser, `{"latitude":5.556818,"longitude":-0.196477}`)
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
		}
		got := attendance.checkIns[0]
		want := application.CheckInRequest{EventID: "evt-1", UserID: "user-1", Latitude: 5.556818, Longitude: -0.196477}
		if got != want {
			t.Fatalf("expected %+v, got %+v", want, got)
		}
	})

	t.Run("checks out the caller", func(t *testing.T) {
		t.Parallel()
		attendance := &attendanceServiceStub{}
		router := newTestRouter(&eventServiceStub{}, attendance, nil)

		rec := doRequest(t, router, http.MethodPut, "/events/evt-1/attendance", persistence.RoleUser, `{"latitude":0,"longitude":0}`)
		if rec.Code != http.StatusOK || len(attendance.checkOuts) != 1 {
			t.Fatalf("expected 200 check-out, got %d", rec.Code)
		}
	})

	t.Run("requires coordinates", func(t *testing.T) {
		t.Parallel()
		attendance := &attendanceServiceStub{}
		router := newTestRouter(&eventServiceStub{}, attendance, nil)

		rec := doRequest(t, router, http.MethodPost, "/events/evt-1/attendance", persistence.RoleUser, `{"longitude":200}`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		resp := decodeError(t, rec)
		if resp.Errors["latitude"] == "" || resp.Errors["longitude"] == "" {
			t.Fatalf("expected coordinate errors, got %v", resp.Errors)
		}
		if len(attendance.checkIns) != 0 {
			t.Fatalf("service should not be called")
		}
	})

	t.Run("routes listings", func(t *testing.T) {
		t.Parallel()
		attendance := &attendanceServiceStub{}
		router := newTestRouter(&eventServiceStub{}, attendance, nil)

		if rec := doRequest(t, router, http.MethodGet, "/events/evt-1/attendance", persistence.RoleAdmin, ""); rec.Code != http.StatusOK {
			t.Fatalf("expected 200 for event listing, got %d", rec.Code)
		}
		if rec := doRequest(t, router, http.MethodGet, "/users/user-1/attendance", persistence.RoleUser, ""); rec.Code != http.StatusOK {
			t.Fatalf("expected 200 for user listing, got %d", rec.Code)
		}
		if len(attendance.listed) != 2 || attendance.listed[0] != "event:evt-1" || attendance.listed[1] != "user:user-1" {
			t.Fatalf("unexpected listings %v", attendance.listed)
		}
	})
}

func TestServiceErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		err           error
		wantStatus    int
		wantCode      string
		wantRetryable bool
	}{
		{name: "validation", err: &application.ValidationError{FieldErrors: map[string]string{"latitude": "bad"}}, wantStatus: http.StatusBadRequest, wantCode: "validation"},
		{name: "not found", err: &application.NotFoundError{Resource: "event", ID: "evt-1"}, wantStatus: http.StatusNotFound, wantCode: "not_found"},
		{name: "out of range", err: &application.OutOfRangeError{DistanceMeters: 120, RadiusMeters: 50}, wantStatus: http.StatusUnprocessableEntity, wantCode: "out_of_range"},
		{name: "window closed", err: &application.WindowClosedError{Reason: application.WindowTooLate}, wantStatus: http.StatusUnprocessableEntity, wantCode: "window_closed"},
		{name: "no active session", err: application.ErrNoActiveSession, wantStatus: http.StatusConflict, wantCode: "no_active_session", wantRetryable: true},
		{name: "already checked in", err: application.ErrAlreadyCheckedIn, wantStatus: http.StatusConflict, wantCode: "already_checked_in"},
		{name: "already checked out", err: application.ErrAlreadyCheckedOut, wantStatus: http.StatusConflict, wantCode: "already_checked_out"},
		{name: "not checked in", err: application.ErrNotCheckedIn, wantStatus: http.StatusConflict, wantCode: "not_checked_in"},
		{name: "invalid ordering", err: application.ErrInvalidOrdering, wantStatus: http.StatusConflict, wantCode: "invalid_ordering"},
		{name: "unexpected", err: errors.New("disk on fire"), wantStatus: http.StatusInternalServerError, wantCode: "unexpected"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			router := newTestRouter(&eventServiceStub{}, &attendanceServiceStub{err: tc.err}, nil)

			rec := doRequest(t, router, http.MethodPost, "/events/evt-1/attendance", persistence.RoleUser, `{"latitude":1,"longitude":1}`)
			if rec.Code != tc.wantStatus {
				t.Fatalf("expected status %d, got %d", tc.wantStatus, rec.Code)
			}
			resp := decodeError(t, rec)
			if resp.ErrorCode != tc.wantCode || resp.Retryable != tc.wantRetryable || resp.Message == "" {
				t.Fatalf("unexpected body %+v", resp)
			}
			if strings.Contains(resp.Message, "disk on fire") {
				t.Fatalf("internal error details leaked: %q", resp.Message)
			}
		})
	}
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	rec := doRequest(t, newTestRouter(&eventServiceStub{}, &attendanceServiceStub{}, pingerStub{}), http.MethodGet, "/healthz", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 without a token, got %d", rec.Code)
	}

	rec = doRequest(t, newTestRouter(&eventServiceStub{}, &attendanceServiceStub{}, pingerStub{err: errors.New("down")}), http.MethodGet, "/healthz", "", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when the store is down, got %d", rec.Code)
	}
}
