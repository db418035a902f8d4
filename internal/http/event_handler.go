package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/nuru484/BeThere-server/internal/application"
	"github.com/nuru484/BeThere-server/internal/persistence"
)

type eventService interface {
	CreateEvent(ctx context.Context, params application.CreateEventParams) (persistence.Event, error)
	UpdateEvent(ctx context.Context, params application.UpdateEventParams) (persistence.Event, error)
	GetEvent(ctx context.Context, id string) (persistence.Event, error)
	ListEvents(ctx context.Context) ([]persistence.Event, error)
	DeleteEvent(ctx context.Context, principal application.Principal, id string) error
}

// EventHandler serves the event administration routes.
type EventHandler struct {
	service   eventService
	location  *time.Location
	responder responder
	logger    *slog.Logger
}

// NewEventHandler builds an EventHandler. Dates in requests are read in loc.
func NewEventHandler(service eventService, loc *time.Location, logger *slog.Logger) *EventHandler {
	if loc == nil {
		loc = time.Local
	}
	return &EventHandler{service: service, location: loc, responder: newResponder(logger), logger: logger}
}

func (h *EventHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if err := decodeRequest(r, &req); err != nil {
		h.rejectBody(r.Context(), w, "Create", err)
		return
	}
	input, err := req.toInput(h.location)
	if err != nil {
		h.rejectBody(r.Context(), w, "Create", err)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	event, err := h.service.CreateEvent(r.Context(), application.CreateEventParams{Principal: principal, Input: input})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, newEventDTO(event))
}

func (h *EventHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req eventPatchRequest
	if err := decodeRequest(r, &req); err != nil {
		h.rejectBody(r.Context(), w, "Update", err)
		return
	}
	patch, err := req.toPatch(h.location)
	if err != nil {
		h.rejectBody(r.Context(), w, "Update", err)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	event, err := h.service.UpdateEvent(r.Context(), application.UpdateEventParams{
		Principal: principal,
		EventID:   r.PathValue("id"),
		Patch:     patch,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, newEventDTO(event))
}

func (h *EventHandler) Get(w http.ResponseWriter, r *http.Request) {
	event, err := h.service.GetEvent(r.Context(), r.PathValue("id"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, newEventDTO(event))
}

func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	events, err := h.service.ListEvents(r.Context())
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	out := make([]eventDTO, 0, len(events))
	for _, event := range events {
		out = append(out, newEventDTO(event))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, eventListResponse{Events: out})
}

func (h *EventHandler) Delete(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	if err := h.service.DeleteEvent(r.Context(), principal, r.PathValue("id")); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *EventHandler) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return handlerLogger(ctx, h.logger, "EventHandler", operation, attrs...)
}

func (h *EventHandler) rejectBody(ctx context.Context, w http.ResponseWriter, operation string, err error) {
	h.loggerWith(ctx, operation).DebugContext(ctx, "request body rejected", "error", err)
	h.responder.rejectRequest(ctx, w, err)
}

type locationRequest struct {
	Name      string   `json:"name" validate:"required,max=255"`
	Latitude  *float64 `json:"latitude" validate:"required,gte=-90,lte=90"`
	Longitude *float64 `json:"longitude" validate:"required,gte=-180,lte=180"`
	City      string   `json:"city" validate:"max=100"`
	Country   string   `json:"country" validate:"max=100"`
}

func (l locationRequest) toInput() application.LocationInput {
	input := application.LocationInput{Name: l.Name, City: l.City, Country: l.Country}
	if l.Latitude != nil {
		input.Latitude = *l.Latitude
	}
	if l.Longitude != nil {
		input.Longitude = *l.Longitude
	}
	return input
}

type eventRequest struct {
	Title                  string          `json:"title" validate:"required,max=255"`
	Description            string          `json:"description" validate:"max=500"`
	Type                   string          `json:"type" validate:"required"`
	Location               locationRequest `json:"location"`
	StartDate              string          `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate                *string         `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
	IsRecurring            bool            `json:"is_recurring"`
	RecurrenceIntervalDays int             `json:"recurrence_interval_days" validate:"omitempty,min=1"`
	DurationDays           int             `json:"duration_days" validate:"omitempty,min=1"`
	StartTime              string          `json:"start_time" validate:"required,datetime=15:04"`
	EndTime                string          `json:"end_time" validate:"required,datetime=15:04"`
}

func (req eventRequest) toInput(loc *time.Location) (application.EventInput, error) {
	start, err := parseDate("start_date", req.StartDate, loc)
	if err != nil {
		return application.EventInput{}, err
	}
	var end *time.Time
	if req.EndDate != nil {
		parsed, err := parseDate("end_date", *req.EndDate, loc)
		if err != nil {
			return application.EventInput{}, err
		}
		end = &parsed
	}
	return application.EventInput{
		Title:                  req.Title,
		Description:            req.Description,
		Type:                   req.Type,
		Location:               req.Location.toInput(),
		StartDate:              start,
		EndDate:                end,
		IsRecurring:            req.IsRecurring,
		RecurrenceIntervalDays: req.RecurrenceIntervalDays,
		DurationDays:           req.DurationDays,
		StartTime:              req.StartTime,
		EndTime:                req.EndTime,
	}, nil
}

// eventPatchRequest lists optional fields. clear_end_date removes the end date.
type eventPatchRequest struct {
	Title                  *string          `json:"title" validate:"omitempty,min=1,max=255"`
	Description            *string          `json:"description" validate:"omitempty,max=500"`
	Type                   *string          `json:"type" validate:"omitempty,min=1"`
	Location               *locationRequest `json:"location"`
	StartDate              *string          `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
	EndDate                *string          `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
	ClearEndDate           bool             `json:"clear_end_date"`
	IsRecurring            *bool            `json:"is_recurring"`
	RecurrenceIntervalDays *int             `json:"recurrence_interval_days" validate:"omitempty,min=1"`
	DurationDays           *int             `json:"duration_days" validate:"omitempty,min=1"`
	StartTime              *string          `json:"start_time" validate:"omitempty,datetime=15:04"`
	EndTime                *string          `json:"end_time" validate:"omitempty,datetime=15:04"`
}

func (req eventPatchRequest) toPatch(loc *time.Location) (application.EventPatch, error) {
	patch := application.EventPatch{
		Title:                  req.Title,
		Description:            req.Description,
		Type:                   req.Type,
		ClearEndDate:           req.ClearEndDate,
		IsRecurring:            req.IsRecurring,
		RecurrenceIntervalDays: req.RecurrenceIntervalDays,
		DurationDays:           req.DurationDays,
		StartTime:              req.StartTime,
		EndTime:                req.EndTime,
	}
	if req.Location != nil {
		location := req.Location.toInput()
		patch.Location = &location
	}
	if req.StartDate != nil {
		start, err := parseDate("start_date", *req.StartDate, loc)
		if err != nil {
			return application.EventPatch{}, err
		}
		patch.StartDate = &start
	}
	if req.EndDate != nil {
		end, err := parseDate("end_date", *req.EndDate, loc)
		if err != nil {
			return application.EventPatch{}, err
		}
		patch.EndDate = &end
	}
	return patch, nil
}

func parseDate(field, value string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(time.DateOnly, value, loc)
	if err != nil {
		return time.Time{}, &application.ValidationError{FieldErrors: map[string]string{field: field + " must use the YYYY-MM-DD format"}}
	}
	return t, nil
}

type locationDTO struct {
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	City      string  `json:"city,omitempty"`
	Country   string  `json:"country,omitempty"`
}

type eventDTO struct {
	ID                     string      `json:"id"`
	Title                  string      `json:"title"`
	Description            string      `json:"description,omitempty"`
	Type                   string      `json:"type"`
	Location               locationDTO `json:"location"`
	StartDate              string      `json:"start_date"`
	EndDate                *string     `json:"end_date"`
	IsRecurring            bool        `json:"is_recurring"`
	RecurrenceIntervalDays int         `json:"recurrence_interval_days"`
	DurationDays           int         `json:"duration_days"`
	StartTime              string      `json:"start_time"`
	EndTime                string      `json:"end_time"`
	CreatedBy              string      `json:"created_by,omitempty"`
	CreatedAt              time.Time   `json:"created_at"`
	UpdatedAt              time.Time   `json:"updated_at"`
}

type eventListResponse struct {
	Events []eventDTO `json:"events"`
}

func newEventDTO(event persistence.Event) eventDTO {
	dto := eventDTO{
		ID:          event.ID,
		Title:       event.Title,
		Description: event.Description,
		Type:        event.Type,
		Location: locationDTO{
			Name:      event.Location.Name,
			Latitude:  event.Location.Latitude,
			Longitude: event.Location.Longitude,
			City:      event.Location.City,
			Country:   event.Location.Country,
		},
		StartDate:              event.StartDate.Format(time.DateOnly),
		IsRecurring:            event.IsRecurring,
		RecurrenceIntervalDays: event.RecurrenceIntervalDays,
		DurationDays:           event.DurationDays,
		StartTime:              event.StartTime,
		EndTime:                event.EndTime,
		CreatedBy:              event.CreatedBy,
		CreatedAt:              event.CreatedAt,
		UpdatedAt:              event.UpdatedAt,
	}
	if event.EndDate != nil {
		end := event.EndDate.Format(time.DateOnly)
		dto.EndDate = &end
	}
	return dto
}
