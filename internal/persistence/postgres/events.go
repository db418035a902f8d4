package postgres

import (
	"context"

	"gorm.io/gorm"

	"github.com/nuru484/BeThere-server/internal/persistence"
)

// CreateEvent inserts a new event.
func (s *Store) CreateEvent(ctx context.Context, event persistence.Event) error {
	if event.ID == "" {
		return persistence.ErrConstraintViolation
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = s.now()
	}
	event.UpdatedAt = event.CreatedAt
	row := s.newEventRow(event)
	return mapError(s.db.WithContext(ctx).Create(&row).Error)
}

// UpdateEvent replaces the mutable fields of an existing event.
func (s *Store) UpdateEvent(ctx context.Context, event persistence.Event) error {
	if event.ID == "" {
		return persistence.ErrNotFound
	}
	if event.UpdatedAt.IsZero() {
		event.UpdatedAt = s.now()
	}
	row := s.newEventRow(event)
	result := s.db.WithContext(ctx).Model(&eventRow{}).Where("id = ?", event.ID).Updates(map[string]any{
		"title":                    row.Title,
		"description":              row.Description,
		"type":                     row.Type,
		"location_name":            row.LocationName,
		"latitude":                 row.Latitude,
		"longitude":                row.Longitude,
		"city":                     row.City,
		"country":                  row.Country,
		"start_date":               row.StartDate,
		"end_date":                 row.EndDate,
		"is_recurring":             row.IsRecurring,
		"recurrence_interval_days": row.RecurrenceIntervalDays,
		"duration_days":            row.DurationDays,
		"start_time":               row.StartTime,
		"end_time":                 row.EndTime,
		"updated_at":               row.UpdatedAt,
	})
	if result.Error != nil {
		return mapError(result.Error)
	}
	if result.RowsAffected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

// GetEvent retrieves an event by ID.
func (s *Store) GetEvent(ctx context.Context, id string) (persistence.Event, error) {
	var row eventRow
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		return persistence.Event{}, mapError(err)
	}
	return s.eventFromRow(row)
}

// ListEvents returns all events, newest start date first.
func (s *Store) ListEvents(ctx context.Context) ([]persistence.Event, error) {
	var rows []eventRow
	if err := s.db.WithContext(ctx).Order("start_date DESC").Order("id ASC").Find(&rows).Error; err != nil {
		return nil, mapError(err)
	}
	events := make([]persistence.Event, 0, len(rows))
	for _, row := range rows {
		event, err := s.eventFromRow(row)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, nil
}

// DeleteEvent removes an event with its sessions and attendance.
func (s *Store) DeleteEvent(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("event_id = ?", id).Delete(&attendanceRow{}).Error; err != nil {
			return mapError(err)
		}
		if err := tx.Where("event_id = ?", id).Delete(&sessionRow{}).Error; err != nil {
			return mapError(err)
		}
		result := tx.Where("id = ?", id).Delete(&eventRow{})
		if result.Error != nil {
			return mapError(result.Error)
		}
		if result.RowsAffected == 0 {
			return persistence.ErrNotFound
		}
		return nil
	})
}

type eventStateRow struct {
	eventRow           `gorm:"embedded"`
	LatestSessionStart *string
	SessionCount       int
}

// ListEventStates returns every event with its latest session start date and
// session count.
func (s *Store) ListEventStates(ctx context.Context) ([]persistence.EventState, error) {
	const query = `
		SELECT e.*, MAX(s.start_date) AS latest_session_start, COUNT(s.id) AS session_count
		FROM events e
		LEFT JOIN sessions s ON s.event_id = e.id
		GROUP BY e.id
		ORDER BY e.id ASC`

	var rows []eventStateRow
	if err := s.db.WithContext(ctx).Raw(query).Scan(&rows).Error; err != nil {
		return nil, mapError(err)
	}

	states := make([]persistence.EventState, 0, len(rows))
	for _, row := range rows {
		event, err := s.eventFromRow(row.eventRow)
		if err != nil {
			return nil, err
		}
		state := persistence.EventState{Event: event, SessionCount: row.SessionCount}
		if row.LatestSessionStart != nil {
			latest, err := s.parseDate(*row.LatestSessionStart)
			if err != nil {
				return nil, err
			}
			state.LatestSessionStart = &latest
		}
		states = append(states, state)
	}
	return states, nil
}
