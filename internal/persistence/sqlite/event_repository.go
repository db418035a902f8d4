package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/nuru484/BeThere-server/internal/persistence"
)

const eventColumns = `e.id, e.title, e.description, e.type, e.location_name, e.latitude, e.longitude, e.city, e.country,
	e.start_date, e.end_date, e.is_recurring, e.recurrence_interval_days, e.duration_days,
	e.start_time, e.end_time, e.created_by, e.created_at, e.updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// CreateEvent inserts a new event.
func (s *Store) CreateEvent(ctx context.Context, event persistence.Event) error {
	if event.ID == "" {
		return persistence.ErrConstraintViolation
	}
	now := s.now()
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}
	event.UpdatedAt = event.CreatedAt

	const query = `
		INSERT INTO events (id, title, description, type, location_name, latitude, longitude, city, country,
			start_date, end_date, is_recurring, recurrence_interval_days, duration_days,
			start_time, end_time, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.exec(ctx, query,
		event.ID,
		event.Title,
		nullableString(event.Description),
		event.Type,
		event.Location.Name,
		event.Location.Latitude,
		event.Location.Longitude,
		nullableString(event.Location.City),
		nullableString(event.Location.Country),
		s.formatDate(event.StartDate),
		s.nullableDate(event),
		event.IsRecurring,
		event.RecurrenceIntervalDays,
		event.DurationDays,
		event.StartTime,
		event.EndTime,
		nullableString(event.CreatedBy),
		formatTime(event.CreatedAt),
		formatTime(event.UpdatedAt),
	)
	return err
}

// UpdateEvent replaces the mutable fields of an existing event.
func (s *Store) UpdateEvent(ctx context.Context, event persistence.Event) error {
	if event.ID == "" {
		return persistence.ErrNotFound
	}
	if event.UpdatedAt.IsZero() {
		event.UpdatedAt = s.now()
	}

	const query = `
		UPDATE events SET
			title = ?, description = ?, type = ?, location_name = ?, latitude = ?, longitude = ?, city = ?, country = ?,
			start_date = ?, end_date = ?, is_recurring = ?, recurrence_interval_days = ?, duration_days = ?,
			start_time = ?, end_time = ?, updated_at = ?
		WHERE id = ?`

	result, err := s.exec(ctx, query,
		event.Title,
		nullableString(event.Description),
		event.Type,
		event.Location.Name,
		event.Location.Latitude,
		event.Location.Longitude,
		nullableString(event.Location.City),
		nullableString(event.Location.Country),
		s.formatDate(event.StartDate),
		s.nullableDate(event),
		event.IsRecurring,
		event.RecurrenceIntervalDays,
		event.DurationDays,
		event.StartTime,
		event.EndTime,
		formatTime(event.UpdatedAt),
		event.ID,
	)
	if err != nil {
		return err
	}
	n, err := rowsAffected(result)
	if err != nil {
		return err
	}
	if n == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

// GetEvent retrieves an event by ID.
func (s *Store) GetEvent(ctx context.Context, id string) (persistence.Event, error) {
	if id == "" {
		return persistence.Event{}, persistence.ErrNotFound
	}
	row := s.pool.DB().QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events e WHERE e.id = ?`, id)
	event, err := s.scanEvent(row)
	if err != nil {
		return persistence.Event{}, mapError(err)
	}
	return event, nil
}

// ListEvents returns all events, newest start date first.
func (s *Store) ListEvents(ctx context.Context) ([]persistence.Event, error) {
	rows, err := s.pool.DB().QueryContext(ctx, `SELECT `+eventColumns+` FROM events e ORDER BY e.start_date DESC, e.id ASC`)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var events []persistence.Event
	for rows.Next() {
		event, err := s.scanEvent(rows)
		if err != nil {
			return nil, mapError(err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return events, nil
}

// DeleteEvent removes an event with its sessions and attendance.
func (s *Store) DeleteEvent(ctx context.Context, id string) error {
	if id == "" {
		return persistence.ErrNotFound
	}
	return s.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM attendance WHERE event_id = ?`, id); err != nil {
			return mapError(err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE event_id = ?`, id); err != nil {
			return mapError(err)
		}
		result, err := tx.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id)
		if err != nil {
			return mapError(err)
		}
		n, err := rowsAffected(result)
		if err != nil {
			return err
		}
		if n == 0 {
			return persistence.ErrNotFound
		}
		return nil
	})
}

// ListEventStates returns every event with its latest session start date and
// session count.
func (s *Store) ListEventStates(ctx context.Context) ([]persistence.EventState, error) {
	query := `
		SELECT ` + eventColumns + `, MAX(s.start_date), COUNT(s.id)
		FROM events e
		LEFT JOIN sessions s ON s.event_id = e.id
		GROUP BY e.id
		ORDER BY e.id ASC`

	rows, err := s.pool.DB().QueryContext(ctx, query)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var states []persistence.EventState
	for rows.Next() {
		var (
			state  persistence.EventState
			latest sql.NullString
		)
		event, err := s.scanEvent(rows, &latest, &state.SessionCount)
		if err != nil {
			return nil, mapError(err)
		}
		state.Event = event
		if latest.Valid {
			day, err := s.parseDate(latest.String)
			if err != nil {
				return nil, err
			}
			state.LatestSessionStart = &day
		}
		states = append(states, state)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return states, nil
}

func (s *Store) scanEvent(row rowScanner, extra ...any) (persistence.Event, error) {
	var (
		event                              persistence.Event
		description, city, country, author sql.NullString
		startDate                          string
		endDate                            sql.NullString
		createdAt, updatedAt               string
	)
	dest := []any{
		&event.ID, &event.Title, &description, &event.Type,
		&event.Location.Name, &event.Location.Latitude, &event.Location.Longitude, &city, &country,
		&startDate, &endDate, &event.IsRecurring, &event.RecurrenceIntervalDays, &event.DurationDays,
		&event.StartTime, &event.EndTime, &author, &createdAt, &updatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return persistence.Event{}, err
	}

	event.Description = description.String
	event.Location.City = city.String
	event.Location.Country = country.String
	event.CreatedBy = author.String

	var err error
	if event.StartDate, err = s.parseDate(startDate); err != nil {
		return persistence.Event{}, err
	}
	if endDate.Valid {
		end, err := s.parseDate(endDate.String)
		if err != nil {
			return persistence.Event{}, err
		}
		event.EndDate = &end
	}
	if event.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.Event{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if event.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.Event{}, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	return event, nil
}

func (s *Store) nullableDate(event persistence.Event) sql.NullString {
	if event.EndDate == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: s.formatDate(*event.EndDate), Valid: true}
}
