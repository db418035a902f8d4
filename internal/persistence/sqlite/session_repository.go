package sqlite

import (
	"context"
	"time"

	"github.com/nuru484/BeThere-server/internal/persistence"
)

const sessionColumns = `id, event_id, start_date, end_date, start_time, end_time, created_at`

// CreateSession inserts a materialized session. A second session for the same
// event and start date fails with persistence.ErrDuplicate.
func (s *Store) CreateSession(ctx context.Context, session persistence.Session) error {
	if session.ID == "" || session.EventID == "" {
		return persistence.ErrConstraintViolation
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = s.now()
	}

	const query = `
		INSERT INTO sessions (id, event_id, start_date, end_date, start_time, end_time, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err := s.exec(ctx, query,
		session.ID,
		session.EventID,
		s.formatDate(session.StartDate),
		s.formatDate(session.EndDate),
		formatTime(session.StartTime),
		formatTime(session.EndTime),
		formatTime(session.CreatedAt),
	)
	return err
}

// FindLatestSession returns the session of the event with the latest start date.
func (s *Store) FindLatestSession(ctx context.Context, eventID string) (persistence.Session, error) {
	row := s.pool.DB().QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE event_id = ? ORDER BY start_date DESC LIMIT 1`, eventID)
	return s.scanSession(row)
}

// FindSessionByEventAndDate returns the session starting on the given day.
func (s *Store) FindSessionByEventAndDate(ctx context.Context, eventID string, startDate time.Time) (persistence.Session, error) {
	row := s.pool.DB().QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE event_id = ? AND start_date = ?`, eventID, s.formatDate(startDate))
	return s.scanSession(row)
}

// FindActiveSession returns the latest starting session whose calendar span contains day.
func (s *Store) FindActiveSession(ctx context.Context, eventID string, day time.Time) (persistence.Session, error) {
	d := s.formatDate(day)
	row := s.pool.DB().QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE event_id = ? AND start_date <= ? AND end_date >= ?
		ORDER BY start_date DESC
		LIMIT 1`, eventID, d, d)
	return s.scanSession(row)
}

// CountSessions returns the number of sessions of the event.
func (s *Store) CountSessions(ctx context.Context, eventID string) (int, error) {
	var n int
	if err := s.pool.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions WHERE event_id = ?`, eventID).Scan(&n); err != nil {
		return 0, mapError(err)
	}
	return n, nil
}

func (s *Store) scanSession(row rowScanner) (persistence.Session, error) {
	var (
		session                                    persistence.Session
		startDate, endDate, startTime, endTime, at string
	)
	if err := row.Scan(&session.ID, &session.EventID, &startDate, &endDate, &startTime, &endTime, &at); err != nil {
		return persistence.Session{}, mapError(err)
	}

	var err error
	if session.StartDate, err = s.parseDate(startDate); err != nil {
		return persistence.Session{}, err
	}
	if session.EndDate, err = s.parseDate(endDate); err != nil {
		return persistence.Session{}, err
	}
	if session.StartTime, err = parseTime(startTime); err != nil {
		return persistence.Session{}, err
	}
	if session.EndTime, err = parseTime(endTime); err != nil {
		return persistence.Session{}, err
	}
	if session.CreatedAt, err = parseTime(at); err != nil {
		return persistence.Session{}, err
	}
	session.StartTime = session.StartTime.In(s.location)
	session.EndTime = session.EndTime.In(s.location)
	return session, nil
}
