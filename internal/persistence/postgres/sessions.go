package postgres

import (
	"context"
	"time"

	"github.com/nuru484/BeThere-server/internal/persistence"
)

// CreateSession inserts a materialized session. A second session for the same
// event and start date fails with persistence.ErrDuplicate.
func (s *Store) CreateSession(ctx context.Context, session persistence.Session) error {
	if session.ID == "" || session.EventID == "" {
		return persistence.ErrConstraintViolation
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = s.now()
	}
	row := s.newSessionRow(session)
	return mapError(s.db.WithContext(ctx).Create(&row).Error)
}

// FindLatestSession returns the session of the event with the latest start date.
func (s *Store) FindLatestSession(ctx context.Context, eventID string) (persistence.Session, error) {
	var row sessionRow
	err := s.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		Order("start_date DESC").
		Take(&row).Error
	if err != nil {
		return persistence.Session{}, mapError(err)
	}
	return s.sessionFromRow(row)
}

// FindSessionByEventAndDate returns the session of the event starting on the
// calendar day of startDate.
func (s *Store) FindSessionByEventAndDate(ctx context.Context, eventID string, startDate time.Time) (persistence.Session, error) {
	var row sessionRow
	err := s.db.WithContext(ctx).
		Where("event_id = ? AND start_date = ?", eventID, s.formatDate(startDate)).
		Take(&row).Error
	if err != nil {
		return persistence.Session{}, mapError(err)
	}
	return s.sessionFromRow(row)
}

// FindActiveSession returns the latest starting session whose calendar span
// contains day.
func (s *Store) FindActiveSession(ctx context.Context, eventID string, day time.Time) (persistence.Session, error) {
	d := s.formatDate(day)
	var row sessionRow
	err := s.db.WithContext(ctx).
		Where("event_id = ? AND start_date <= ? AND end_date >= ?", eventID, d, d).
		Order("start_date DESC").
		Take(&row).Error
	if err != nil {
		return persistence.Session{}, mapError(err)
	}
	return s.sessionFromRow(row)
}

// CountSessions returns the number of sessions of the event.
func (s *Store) CountSessions(ctx context.Context, eventID string) (int, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&sessionRow{}).Where("event_id = ?", eventID).Count(&n).Error; err != nil {
		return 0, mapError(err)
	}
	return int(n), nil
}
