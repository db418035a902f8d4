package postgres

import (
	"time"

	"github.com/nuru484/BeThere-server/internal/persistence"
)

// Date-only columns hold YYYY-MM-DD text in the store location, matching the
// SQLite backend, so a calendar day never shifts with the session time zone.

type userRow struct {
	ID           string `gorm:"primaryKey;type:varchar(64)"`
	Email        string `gorm:"type:varchar(320);not null;uniqueIndex"`
	FirstName    string `gorm:"type:varchar(100);not null"`
	LastName     string `gorm:"type:varchar(100);not null"`
	Phone        string `gorm:"type:varchar(32);not null;default:''"`
	Role         string `gorm:"type:varchar(16);not null;check:chk_users_role,role IN ('ADMIN', 'USER')"`
	PasswordHash string `gorm:"type:text;not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (userRow) TableName() string { return "users" }

func newUserRow(u persistence.User) userRow {
	return userRow{
		ID:           u.ID,
		Email:        u.Email,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		Phone:        u.Phone,
		Role:         u.Role,
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func (r userRow) domain() persistence.User {
	return persistence.User{
		ID:           r.ID,
		Email:        r.Email,
		FirstName:    r.FirstName,
		LastName:     r.LastName,
		Phone:        r.Phone,
		Role:         r.Role,
		PasswordHash: r.PasswordHash,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

type eventRow struct {
	ID                     string  `gorm:"primaryKey;type:varchar(64)"`
	Title                  string  `gorm:"type:varchar(200);not null"`
	Description            string  `gorm:"type:text;not null;default:''"`
	Type                   string  `gorm:"type:varchar(64);not null"`
	LocationName           string  `gorm:"type:varchar(200);not null"`
	Latitude               float64 `gorm:"not null"`
	Longitude              float64 `gorm:"not null"`
	City                   string  `gorm:"type:varchar(100);not null;default:''"`
	Country                string  `gorm:"type:varchar(100);not null;default:''"`
	StartDate              string  `gorm:"type:varchar(10);not null"`
	EndDate                *string `gorm:"type:varchar(10);check:chk_events_end_date,is_recurring OR end_date IS NOT NULL"`
	IsRecurring            bool    `gorm:"not null"`
	RecurrenceIntervalDays int     `gorm:"not null;default:0"`
	DurationDays           int     `gorm:"not null;default:1"`
	StartTime              string  `gorm:"type:varchar(5);not null"`
	EndTime                string  `gorm:"type:varchar(5);not null"`
	CreatedBy              string  `gorm:"type:varchar(64);not null;default:''"`
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

func (eventRow) TableName() string { return "events" }

func (s *Store) newEventRow(e persistence.Event) eventRow {
	row := eventRow{
		ID:                     e.ID,
		Title:                  e.Title,
		Description:            e.Description,
		Type:                   e.Type,
		LocationName:           e.Location.Name,
		Latitude:               e.Location.Latitude,
		Longitude:              e.Location.Longitude,
		City:                   e.Location.City,
		Country:                e.Location.Country,
		StartDate:              s.formatDate(e.StartDate),
		IsRecurring:            e.IsRecurring,
		RecurrenceIntervalDays: e.RecurrenceIntervalDays,
		DurationDays:           e.DurationDays,
		StartTime:              e.StartTime,
		EndTime:                e.EndTime,
		CreatedBy:              e.CreatedBy,
		CreatedAt:              e.CreatedAt,
		UpdatedAt:              e.UpdatedAt,
	}
	if e.EndDate != nil {
		end := s.formatDate(*e.EndDate)
		row.EndDate = &end
	}
	return row
}

func (s *Store) eventFromRow(r eventRow) (persistence.Event, error) {
	start, err := s.parseDate(r.StartDate)
	if err != nil {
		return persistence.Event{}, err
	}
	event := persistence.Event{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		Type:        r.Type,
		Location: persistence.Location{
			Name:      r.LocationName,
			Latitude:  r.Latitude,
			Longitude: r.Longitude,
			City:      r.City,
			Country:   r.Country,
		},
		StartDate:              start,
		IsRecurring:            r.IsRecurring,
		RecurrenceIntervalDays: r.RecurrenceIntervalDays,
		DurationDays:           r.DurationDays,
		StartTime:              r.StartTime,
		EndTime:                r.EndTime,
		CreatedBy:              r.CreatedBy,
		CreatedAt:              r.CreatedAt,
		UpdatedAt:              r.UpdatedAt,
	}
	if r.EndDate != nil {
		end, err := s.parseDate(*r.EndDate)
		if err != nil {
			return persistence.Event{}, err
		}
		event.EndDate = &end
	}
	return event, nil
}

type sessionRow struct {
	ID        string    `gorm:"primaryKey;type:varchar(64)"`
	EventID   string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_sessions_event_start,priority:1"`
	StartDate string    `gorm:"type:varchar(10);not null;uniqueIndex:idx_sessions_event_start,priority:2"`
	EndDate   string    `gorm:"type:varchar(10);not null"`
	StartTime time.Time `gorm:"not null"`
	EndTime   time.Time `gorm:"not null"`
	CreatedAt time.Time
}

func (sessionRow) TableName() string { return "sessions" }

func (s *Store) newSessionRow(v persistence.Session) sessionRow {
	return sessionRow{
		ID:        v.ID,
		EventID:   v.EventID,
		StartDate: s.formatDate(v.StartDate),
		EndDate:   s.formatDate(v.EndDate),
		StartTime: v.StartTime,
		EndTime:   v.EndTime,
		CreatedAt: v.CreatedAt,
	}
}

func (s *Store) sessionFromRow(r sessionRow) (persistence.Session, error) {
	start, err := s.parseDate(r.StartDate)
	if err != nil {
		return persistence.Session{}, err
	}
	end, err := s.parseDate(r.EndDate)
	if err != nil {
		return persistence.Session{}, err
	}
	return persistence.Session{
		ID:        r.ID,
		EventID:   r.EventID,
		StartDate: start,
		EndDate:   end,
		StartTime: r.StartTime,
		EndTime:   r.EndTime,
		CreatedAt: r.CreatedAt,
	}, nil
}

type attendanceRow struct {
	ID           string    `gorm:"primaryKey;type:varchar(64)"`
	UserID       string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_attendance_user_session,priority:1"`
	SessionID    string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_attendance_user_session,priority:2"`
	EventID      string    `gorm:"type:varchar(64);not null;index"`
	Status       string    `gorm:"type:varchar(16);not null;check:chk_attendance_status,status IN ('PRESENT', 'LATE', 'ABSENT')"`
	CheckInTime  time.Time `gorm:"not null"`
	CheckOutTime *time.Time
	CreatedAt    time.Time
}

func (attendanceRow) TableName() string { return "attendance" }

func newAttendanceRow(a persistence.Attendance) attendanceRow {
	return attendanceRow{
		ID:           a.ID,
		UserID:       a.UserID,
		SessionID:    a.SessionID,
		EventID:      a.EventID,
		Status:       a.Status,
		CheckInTime:  a.CheckInTime,
		CheckOutTime: a.CheckOutTime,
		CreatedAt:    a.CreatedAt,
	}
}

func (r attendanceRow) domain() persistence.Attendance {
	return persistence.Attendance{
		ID:           r.ID,
		UserID:       r.UserID,
		SessionID:    r.SessionID,
		EventID:      r.EventID,
		Status:       r.Status,
		CheckInTime:  r.CheckInTime,
		CheckOutTime: r.CheckOutTime,
		CreatedAt:    r.CreatedAt,
	}
}

type jobRow struct {
	ID          string    `gorm:"primaryKey;type:varchar(64)"`
	Task        string    `gorm:"type:varchar(100);not null"`
	DedupeKey   string    `gorm:"type:varchar(200);not null"`
	Payload     []byte    `gorm:"type:bytea;not null"`
	RunAt       time.Time `gorm:"not null;index:idx_jobs_due,priority:2"`
	Status      string    `gorm:"type:varchar(16);not null;index:idx_jobs_due,priority:1"`
	Attempts    int       `gorm:"not null;default:0"`
	MaxAttempts int       `gorm:"not null;default:1"`
	LastError   string    `gorm:"type:text;not null;default:''"`
	LockedUntil *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (jobRow) TableName() string { return "jobs" }

func newJobRow(j persistence.Job) jobRow {
	return jobRow{
		ID:          j.ID,
		Task:        j.Task,
		DedupeKey:   j.DedupeKey,
		Payload:     j.Payload,
		RunAt:       j.RunAt,
		Status:      string(j.Status),
		Attempts:    j.Attempts,
		MaxAttempts: j.MaxAttempts,
		LastError:   j.LastError,
		LockedUntil: j.LockedUntil,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
	}
}

func (r jobRow) domain() persistence.Job {
	return persistence.Job{
		ID:          r.ID,
		Task:        r.Task,
		DedupeKey:   r.DedupeKey,
		Payload:     r.Payload,
		RunAt:       r.RunAt,
		Status:      persistence.JobStatus(r.Status),
		Attempts:    r.Attempts,
		MaxAttempts: r.MaxAttempts,
		LastError:   r.LastError,
		LockedUntil: r.LockedUntil,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}
