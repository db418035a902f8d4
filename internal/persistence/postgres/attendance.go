package postgres

import (
	"context"
	"time"

	"github.com/nuru484/BeThere-server/internal/persistence"
)

// CreateAttendance inserts a check-in record. A second record for the same
// user and session fails with persistence.ErrDuplicate.
func (s *Store) CreateAttendance(ctx context.Context, record persistence.Attendance) error {
	if record.ID == "" {
		return persistence.ErrConstraintViolation
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = s.now()
	}
	row := newAttendanceRow(record)
	return mapError(s.db.WithContext(ctx).Create(&row).Error)
}

// FindAttendance returns the record of the user for the session.
func (s *Store) FindAttendance(ctx context.Context, userID, sessionID string) (persistence.Attendance, error) {
	var row attendanceRow
	err := s.db.WithContext(ctx).Where("user_id = ? AND session_id = ?", userID, sessionID).Take(&row).Error
	if err != nil {
		return persistence.Attendance{}, mapError(err)
	}
	return row.domain(), nil
}

// UpdateAttendanceCheckout sets the check-out time only when none is recorded.
func (s *Store) UpdateAttendanceCheckout(ctx context.Context, userID, sessionID string, at time.Time) error {
	result := s.db.WithContext(ctx).Model(&attendanceRow{}).
		Where("user_id = ? AND session_id = ? AND check_out_time IS NULL", userID, sessionID).
		Update("check_out_time", at)
	if result.Error != nil {
		return mapError(result.Error)
	}
	if result.RowsAffected > 0 {
		return nil
	}
	if _, err := s.FindAttendance(ctx, userID, sessionID); err != nil {
		return err
	}
	return persistence.ErrConflict
}

// ListAttendanceByEvent returns the records of every session of the event.
func (s *Store) ListAttendanceByEvent(ctx context.Context, eventID string) ([]persistence.Attendance, error) {
	return s.listAttendance(ctx, "event_id = ?", eventID)
}

// ListAttendanceByUser returns every record of the user.
func (s *Store) ListAttendanceByUser(ctx context.Context, userID string) ([]persistence.Attendance, error) {
	return s.listAttendance(ctx, "user_id = ?", userID)
}

func (s *Store) listAttendance(ctx context.Context, where string, arg string) ([]persistence.Attendance, error) {
	var rows []attendanceRow
	if err := s.db.WithContext(ctx).Where(where, arg).Order("check_in_time DESC").Order("id ASC").Find(&rows).Error; err != nil {
		return nil, mapError(err)
	}
	records := make([]persistence.Attendance, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.domain())
	}
	return records, nil
}
