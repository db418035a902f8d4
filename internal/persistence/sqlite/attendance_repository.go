package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/nuru484/BeThere-server/internal/persistence"
)

const attendanceColumns = `id, user_id, session_id, event_id, status, check_in_time, check_out_time, created_at`

// CreateAttendance inserts a check-in record. The UNIQUE (user_id, session_id)
// constraint turns a concurrent second check-in into persistence.ErrDuplicate.
func (s *Store) CreateAttendance(ctx context.Context, record persistence.Attendance) error {
	if record.ID == "" {
		return persistence.ErrConstraintViolation
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = record.CheckInTime
	}

	var checkOut sql.NullString
	if record.CheckOutTime != nil {
		checkOut = sql.NullString{String: formatTime(*record.CheckOutTime), Valid: true}
	}

	const query = `
		INSERT INTO attendance (id, user_id, session_id, event_id, status, check_in_time, check_out_time, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.exec(ctx, query,
		record.ID,
		record.UserID,
		record.SessionID,
		record.EventID,
		record.Status,
		formatTime(record.CheckInTime),
		checkOut,
		formatTime(record.CreatedAt),
	)
	return err
}

// FindAttendance returns the record of the user for the session.
func (s *Store) FindAttendance(ctx context.Context, userID, sessionID string) (persistence.Attendance, error) {
	row := s.pool.DB().QueryRowContext(ctx,
		`SELECT `+attendanceColumns+` FROM attendance WHERE user_id = ? AND session_id = ?`, userID, sessionID)
	return scanAttendance(row)
}

// UpdateAttendanceCheckout sets the check-out time once. It returns
// persistence.ErrNotFound when no record exists and persistence.ErrConflict
// when the record was already checked out.
func (s *Store) UpdateAttendanceCheckout(ctx context.Context, userID, sessionID string, at time.Time) error {
	result, err := s.exec(ctx,
		`UPDATE attendance SET check_out_time = ? WHERE user_id = ? AND session_id = ? AND check_out_time IS NULL`,
		formatTime(at), userID, sessionID)
	if err != nil {
		return err
	}
	n, err := rowsAffected(result)
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	if _, err := s.FindAttendance(ctx, userID, sessionID); err != nil {
		return err
	}
	return persistence.ErrConflict
}

// ListAttendanceByEvent returns the attendance of every session of the event.
func (s *Store) ListAttendanceByEvent(ctx context.Context, eventID string) ([]persistence.Attendance, error) {
	return s.listAttendance(ctx, `SELECT `+attendanceColumns+` FROM attendance WHERE event_id = ? ORDER BY check_in_time DESC, id ASC`, eventID)
}

// ListAttendanceByUser returns the attendance history of the user.
func (s *Store) ListAttendanceByUser(ctx context.Context, userID string) ([]persistence.Attendance, error) {
	return s.listAttendance(ctx, `SELECT `+attendanceColumns+` FROM attendance WHERE user_id = ? ORDER BY check_in_time DESC, id ASC`, userID)
}

func (s *Store) listAttendance(ctx context.Context, query string, arg string) ([]persistence.Attendance, error) {
	rows, err := s.pool.DB().QueryContext(ctx, query, arg)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var records []persistence.Attendance
	for rows.Next() {
		record, err := scanAttendance(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return records, nil
}

func scanAttendance(row rowScanner) (persistence.Attendance, error) {
	var (
		record      persistence.Attendance
		checkIn, at string
		checkOut    sql.NullString
	)
	if err := row.Scan(&record.ID, &record.UserID, &record.SessionID, &record.EventID, &record.Status, &checkIn, &checkOut, &at); err != nil {
		return persistence.Attendance{}, mapError(err)
	}

	var err error
	if record.CheckInTime, err = parseTime(checkIn); err != nil {
		return persistence.Attendance{}, err
	}
	if checkOut.Valid {
		out, err := parseTime(checkOut.String)
		if err != nil {
			return persistence.Attendance{}, err
		}
		record.CheckOutTime = &out
	}
	if record.CreatedAt, err = parseTime(at); err != nil {
		return persistence.Attendance{}, err
	}
	return record, nil
}
