package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/nuru484/BeThere-server/internal/application"
	"github.com/nuru484/BeThere-server/internal/persistence"
)

type attendanceService interface {
	CheckIn(ctx context.Context, req application.CheckInRequest) (persistence.Attendance, error)
	CheckOut(ctx context.Context, req application.CheckOutRequest) (persistence.Attendance, error)
	ListEventAttendance(ctx context.Context, principal application.Principal, eventID string) ([]persistence.Attendance, error)
	ListUserAttendance(ctx context.Context, principal application.Principal, userID string) ([]persistence.Attendance, error)
}

// AttendanceHandler serves check-in, check-out and attendance listings.
type AttendanceHandler struct {
	service   attendanceService
	responder responder
	logger    *slog.Logger
}

func NewAttendanceHandler(service attendanceService, logger *slog.Logger) *AttendanceHandler {
	return &AttendanceHandler{service: service, responder: newResponder(logger), logger: logger}
}

func (h *AttendanceHandler) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return handlerLogger(ctx, h.logger, "AttendanceHandler", operation, attrs...)
}

func (h *AttendanceHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	var req coordinatesRequest
	if err := decodeRequest(r, &req); err != nil {
		h.loggerWith(r.Context(), "CheckIn").DebugContext(r.Context(), "request body rejected", "error", err)
		h.responder.rejectRequest(r.Context(), w, err)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	record, err := h.service.CheckIn(r.Context(), application.CheckInRequest{
		EventID:   r.PathValue("id"),
		UserID:    principal.UserID,
		Latitude:  *req.Latitude,
		Longitude: *req.Longitude,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, newAttendanceDTO(record))
}

func (h *AttendanceHandler) CheckOut(w http.ResponseWriter, r *http.Request) {
	var req coordinatesRequest
	if err := decodeRequest(r, &req); err != nil {
		h.loggerWith(r.Context(), "CheckOut").DebugContext(r.Context(), "request body rejected", "error", err)
		h.responder.rejectRequest(r.Context(), w, err)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	record, err := h.service.CheckOut(r.Context(), application.CheckOutRequest{
		EventID:   r.PathValue("id"),
		UserID:    principal.UserID,
		Latitude:  *req.Latitude,
		Longitude: *req.Longitude,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, newAttendanceDTO(record))
}

func (h *AttendanceHandler) ListByEvent(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	records, err := h.service.ListEventAttendance(r.Context(), principal, r.PathValue("id"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, newAttendanceList(records))
}

func (h *AttendanceHandler) ListByUser(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	records, err := h.service.ListUserAttendance(r.Context(), principal, r.PathValue("id"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, newAttendanceList(records))
}

type coordinatesRequest struct {
	Latitude  *float64 `json:"latitude" validate:"required,gte=-90,lte=90"`
	Longitude *float64 `json:"longitude" validate:"required,gte=-180,lte=180"`
}

type attendanceDTO struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	SessionID    string     `json:"session_id"`
	EventID      string     `json:"event_id"`
	Status       string     `json:"status"`
	CheckInTime  time.Time  `json:"check_in_time"`
	CheckOutTime *time.Time `json:"check_out_time"`
}

type attendanceListResponse struct {
	Attendance []attendanceDTO `json:"attendance"`
}

func newAttendanceDTO(record persistence.Attendance) attendanceDTO {
	return attendanceDTO{
		ID:           record.ID,
		UserID:       record.UserID,
		SessionID:    record.SessionID,
		EventID:      record.EventID,
		Status:       record.Status,
		CheckInTime:  record.CheckInTime,
		CheckOutTime: record.CheckOutTime,
	}
}

func newAttendanceList(records []persistence.Attendance) attendanceListResponse {
	out := make([]attendanceDTO, 0, len(records))
	for _, record := range records {
		out = append(out, newAttendanceDTO(record))
	}
	return attendanceListResponse{Attendance: out}
}
