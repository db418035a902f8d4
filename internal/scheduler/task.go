// Package scheduler decides when sessions of an event are materialized and
// hands the decisions to a delayed-execution queue.
package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nuru484/BeThere-server/internal/persistence"
	"github.com/nuru484/BeThere-server/internal/recurrence"
)

// TaskMaterializeSession creates the session of an event for a target date.
const TaskMaterializeSession = "session.materialize"

const targetDateLayout = "2006-01-02"

// ErrAlreadyScheduled is returned by a Queue when an equivalent task is
// already pending or running.
var ErrAlreadyScheduled = errors.New("scheduler: task already scheduled")

// Task is a unit of delayed work.
type Task struct {
	Name      string
	Payload   []byte
	RunAt     time.Time
	DedupeKey string
}

// Queue executes tasks at or after their run time.
type Queue interface {
	Schedule(ctx context.Context, task Task) error
}

// MaterializePayload identifies the session a materialize task should create.
type MaterializePayload struct {
	EventID    string `json:"event_id"`
	TargetDate string `json:"target_date,omitempty"`
}

// Target parses the target date in loc. A payload without a target returns nil.
func (p MaterializePayload) Target(loc *time.Location) (*time.Time, error) {
	if p.TargetDate == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(targetDateLayout, p.TargetDate, loc)
	if err != nil {
		return nil, fmt.Errorf("scheduler: invalid target date %q: %w", p.TargetDate, err)
	}
	return &t, nil
}

// NewMaterializeTask builds the task creating the session of eventID on target.
func NewMaterializeTask(eventID string, target, runAt time.Time) (Task, error) {
	day := target.Format(targetDateLayout)
	payload, err := json.Marshal(MaterializePayload{EventID: eventID, TargetDate: day})
	if err != nil {
		return Task{}, err
	}
	return Task{
		Name:      TaskMaterializeSession,
		Payload:   payload,
		RunAt:     runAt,
		DedupeKey: TaskMaterializeSession + ":" + eventID + ":" + day,
	}, nil
}

// DecodeMaterializePayload parses a materialize task payload.
func DecodeMaterializePayload(data []byte) (MaterializePayload, error) {
	var p MaterializePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return MaterializePayload{}, fmt.Errorf("scheduler: decode payload: %w", err)
	}
	if p.EventID == "" {
		return MaterializePayload{}, errors.New("scheduler: payload without event_id")
	}
	return p, nil
}

// RuleFromEvent converts a stored event into a recurrence rule.
func RuleFromEvent(event persistence.Event) (recurrence.Rule, error) {
	start, err := recurrence.ParseClock(event.StartTime)
	if err != nil {
		return recurrence.Rule{}, fmt.Errorf("%w: start time: %v", recurrence.ErrInvalidConfiguration, err)
	}
	end, err := recurrence.ParseClock(event.EndTime)
	if err != nil {
		return recurrence.Rule{}, fmt.Errorf("%w: end time: %v", recurrence.ErrInvalidConfiguration, err)
	}
	return recurrence.Rule{
		StartDate:    event.StartDate,
		EndDate:      event.EndDate,
		Recurring:    event.IsRecurring,
		IntervalDays: event.RecurrenceIntervalDays,
		DurationDays: event.DurationDays,
		StartTime:    start,
		EndTime:      end,
	}, nil
}
