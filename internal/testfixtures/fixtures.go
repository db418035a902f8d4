package testfixtures

import (
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/nuru484/BeThere-server/internal/application"
	"github.com/nuru484/BeThere-server/internal/geo"
	"github.com/nuru484/BeThere-server/internal/persistence"
)

var (
	userCounter  uint64
	eventCounter uint64
)

var referenceTime = time.Date(2024, time.January, 10, 8, 30, 0, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures: the
// morning of the first day of the reference event.
func ReferenceTime() time.Time {
	return referenceTime
}

// Day returns midnight UTC of the given date.
func Day(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// Venue is where fixture events take place.
var Venue = geo.Point{Latitude: 5.556818, Longitude: -0.196477}

// NorthOf returns the point meters due north of p.
func NorthOf(p geo.Point, meters float64) geo.Point {
	return geo.Point{
		Latitude:  p.Latitude + meters/geo.EarthRadiusMeters*180/math.Pi,
		Longitude: p.Longitude,
	}
}

// ----------------------------- User fixtures -----------------------------

// UserFixture represents a deterministic user record.
type UserFixture struct {
	ID        string
	Email     string
	FirstName string
	LastName  string
	Role      string
	Password  string
}

// UserOption configures the generated user fixture.
type UserOption func(*UserFixture)

// NewUserFixture returns a deterministic attendee with optional overrides.
func NewUserFixture(opts ...UserOption) UserFixture {
	idx := atomic.AddUint64(&userCounter, 1)
	id := fmt.Sprintf("user-%03d", idx)
	fixture := UserFixture{
		ID:        id,
		Email:     id + "@example.com",
		FirstName: "Ama",
		LastName:  fmt.Sprintf("Mensah %03d", idx),
		Role:      persistence.RoleUser,
		Password:  "correct horse battery",
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithUserID overrides the generated user ID.
func WithUserID(id string) UserOption {
	return func(f *UserFixture) {
		f.ID = id
	}
}

// WithUserEmail overrides the generated email address.
func WithUserEmail(email string) UserOption {
	return func(f *UserFixture) {
		f.Email = email
	}
}

// AsAdmin gives the user the administrator role.
func AsAdmin() UserOption {
	return func(f *UserFixture) {
		f.Role = persistence.RoleAdmin
	}
}

// Record converts the fixture into a storable user. The password is hashed.
func (f UserFixture) Record(now time.Time) (persistence.User, error) {
	hash, err := application.HashPassword(f.Password)
	if err != nil {
		return persistence.User{}, err
	}
	return persistence.User{
		ID:           f.ID,
		Email:        f.Email,
		FirstName:    f.FirstName,
		LastName:     f.LastName,
		Role:         f.Role,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// Principal returns the caller identity of the user.
func (f UserFixture) Principal() application.Principal {
	return application.Principal{UserID: f.ID, IsAdmin: f.Role == persistence.RoleAdmin}
}

// ----------------------------- Event fixtures -----------------------------

// EventOption configures the generated event input.
type EventOption func(*application.EventInput)

// NewEventInput returns a three day workshop at Venue running 09:00 to 17:00
// from the reference day.
func NewEventInput(opts ...EventOption) application.EventInput {
	idx := atomic.AddUint64(&eventCounter, 1)
	start := Day(2024, time.January, 10)
	end := start.AddDate(0, 0, 2)
	input := application.EventInput{
		Title:       fmt.Sprintf("Workshop %03d", idx),
		Description: "Hands-on session",
		Type:        "WORKSHOP",
		Location: application.LocationInput{
			Name:      "Innovation Hub",
			Latitude:  Venue.Latitude,
			Longitude: Venue.Longitude,
			City:      "Accra",
			Country:   "Ghana",
		},
		StartDate: start,
		EndDate:   &end,
		StartTime: "09:00",
		EndTime:   "17:00",
	}
	for _, opt := range opts {
		opt(&input)
	}
	return input
}

// WithEventDates sets the calendar span. A nil end leaves the event open ended.
func WithEventDates(start time.Time, end *time.Time) EventOption {
	return func(in *application.EventInput) {
		in.StartDate = start
		in.EndDate = end
	}
}

// WithEventTimes sets the daily attendance window.
func WithEventTimes(start, end string) EventOption {
	return func(in *application.EventInput) {
		in.StartTime = start
		in.EndTime = end
	}
}

// WithRecurrence makes the event repeat every interval days, each session
// lasting duration days.
func WithRecurrence(interval, duration int) EventOption {
	return func(in *application.EventInput) {
		in.IsRecurring = true
		in.RecurrenceIntervalDays = interval
		in.DurationDays = duration
	}
}

// WithVenue moves the event to p.
func WithVenue(p geo.Point) EventOption {
	return func(in *application.EventInput) {
		in.Location.Latitude = p.Latitude
		in.Location.Longitude = p.Longitude
	}
}
