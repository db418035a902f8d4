package recurrence

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidConfiguration indicates a recurrence rule that cannot produce sessions.
var ErrInvalidConfiguration = errors.New("recurrence: invalid configuration")

// ErrInvalidClock indicates a wall-clock string that is not HH:MM.
var ErrInvalidClock = errors.New("recurrence: invalid wall-clock time")

var clockPattern = regexp.MustCompile(`^([0-1]?[0-9]|2[0-3]):[0-5][0-9]$`)

// Clock is a wall-clock time of day applied to every session day.
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock parses an HH:MM string.
func ParseClock(value string) (Clock, error) {
	if !clockPattern.MatchString(value) {
		return Clock{}, fmt.Errorf("%w: %q", ErrInvalidClock, value)
	}
	h, m, _ := strings.Cut(value, ":")
	hour, _ := strconv.Atoi(h)
	minute, _ := strconv.Atoi(m)
	return Clock{Hour: hour, Minute: minute}, nil
}

// MustParseClock is ParseClock for constant inputs.
func MustParseClock(value string) Clock {
	c, err := ParseClock(value)
	if err != nil {
		panic(err)
	}
	return c
}

// String renders the clock as HH:MM.
func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// Before reports whether c is earlier in the day than other.
func (c Clock) Before(other Clock) bool {
	return c.Hour*60+c.Minute < other.Hour*60+other.Minute
}

// Rule is the recurrence configuration of an event.
type Rule struct {
	StartDate    time.Time
	EndDate      *time.Time
	Recurring    bool
	IntervalDays int
	DurationDays int
	StartTime    Clock
	EndTime      Clock
}

// Reason explains a Decision.
type Reason string

const (
	// ReasonFirst is the first session of an event.
	ReasonFirst Reason = "first"
	// ReasonRecurring is a session following the latest one by the interval.
	ReasonRecurring Reason = "recurring"
	// ReasonCompleted marks a non-recurring event that already has its session.
	ReasonCompleted Reason = "completed"
	// ReasonEnded marks a target falling after the event end date.
	ReasonEnded Reason = "ended"
)

// Decision is the outcome of evaluating a rule against the session history.
type Decision struct {
	Target time.Time
	Due    bool
	Reason Reason
}

// Window is the calendar span and absolute bounds of a session.
type Window struct {
	StartDate time.Time
	EndDate   time.Time
	StartTime time.Time
	EndTime   time.Time
}

// Engine evaluates recurrence rules on calendar-day boundaries of one location.
type Engine struct {
	location *time.Location
}

// NewEngine constructs an Engine bound to loc. If loc is nil, time.Local is used.
func NewEngine(loc *time.Location) *Engine {
	if loc == nil {
		loc = time.Local
	}
	return &Engine{location: loc}
}

// Location returns the canonical location of the engine.
func (e *Engine) Location() *time.Location {
	return e.location
}

// StartOfDay truncates t to midnight in the engine's location.
func (e *Engine) StartOfDay(t time.Time) time.Time {
	y, m, d := t.In(e.location).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, e.location)
}

// AddDays moves day by n calendar days, keeping midnight across DST changes.
func (e *Engine) AddDays(day time.Time, n int) time.Time {
	y, m, d := day.In(e.location).Date()
	return time.Date(y, m, d+n, 0, 0, 0, 0, e.location)
}

// On combines a calendar day with a wall-clock time.
func (e *Engine) On(day time.Time, c Clock) time.Time {
	y, m, d := day.In(e.location).Date()
	return time.Date(y, m, d, c.Hour, c.Minute, 0, 0, e.location)
}

// Validate reports whether the rule can be evaluated.
func (e *Engine) Validate(rule Rule) error {
	if rule.Recurring && rule.IntervalDays <= 0 {
		return fmt.Errorf("%w: recurrence interval must be at least one day, got %d", ErrInvalidConfiguration, rule.IntervalDays)
	}
	if rule.DurationDays <= 0 {
		return fmt.Errorf("%w: duration must be at least one day, got %d", ErrInvalidConfiguration, rule.DurationDays)
	}
	return nil
}

// Next decides the start date of the session that should follow lastStart.
// A nil lastStart means the event has no sessions yet.
func (e *Engine) Next(rule Rule, lastStart *time.Time) (Decision, error) {
	if err := e.Validate(rule); err != nil {
		return Decision{}, err
	}

	var decision Decision
	switch {
	case lastStart == nil:
		decision = Decision{Target: e.StartOfDay(rule.StartDate), Reason: ReasonFirst}
	case !rule.Recurring:
		return Decision{Reason: ReasonCompleted}, nil
	default:
		decision = Decision{Target: e.AddDays(*lastStart, rule.IntervalDays), Reason: ReasonRecurring}
	}

	if !e.includes(rule, decision.Target) {
		decision.Reason = ReasonEnded
		return decision, nil
	}
	decision.Due = true
	return decision, nil
}

// Following returns the chained target after a session starting at start,
// and whether it is still within the rule.
func (e *Engine) Following(rule Rule, start time.Time) (time.Time, bool) {
	if !rule.Recurring || rule.IntervalDays <= 0 {
		return time.Time{}, false
	}
	next := e.AddDays(start, rule.IntervalDays)
	return next, e.includes(rule, next)
}

// Window materializes the session span starting at target.
func (e *Engine) Window(rule Rule, target time.Time) (Window, error) {
	if err := e.Validate(rule); err != nil {
		return Window{}, err
	}
	start := e.StartOfDay(target)
	end := e.AddDays(start, rule.DurationDays-1)
	return Window{
		StartDate: start,
		EndDate:   end,
		StartTime: e.On(start, rule.StartTime),
		EndTime:   e.On(end, rule.EndTime),
	}, nil
}

// DailyWindow returns the attendance window of the rule on the given day.
func (e *Engine) DailyWindow(rule Rule, day time.Time) (time.Time, time.Time) {
	return e.On(day, rule.StartTime), e.On(day, rule.EndTime)
}

func (e *Engine) includes(rule Rule, target time.Time) bool {
	if rule.EndDate == nil {
		return true
	}
	return !target.After(e.StartOfDay(*rule.EndDate))
}
