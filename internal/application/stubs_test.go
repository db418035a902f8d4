package application

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nuru484/BeThere-server/internal/persistence"
)

// memoryStore is an in-memory stand-in for the persistence ports used by the services.
type memoryStore struct {
	mu         sync.Mutex
	users      map[string]persistence.User
	events     map[string]persistence.Event
	sessions   []persistence.Session
	attendance []persistence.Attendance

	createSessionErr    error
	createAttendanceErr error
	checkoutErr         error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		users:  make(map[string]persistence.User),
		events: make(map[string]persistence.Event),
	}
}

func (m *memoryStore) GetUser(ctx context.Context, id string) (persistence.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return persistence.User{}, persistence.ErrNotFound
	}
	return user, nil
}

func (m *memoryStore) UpsertUserByEmail(ctx context.Context, user persistence.User) (persistence.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, existing := range m.users {
		if existing.Email == user.Email {
			user.ID = id
			user.CreatedAt = existing.CreatedAt
			m.users[id] = user
			return user, nil
		}
	}
	m.users[user.ID] = user
	return user, nil
}

func (m *memoryStore) CreateEvent(ctx context.Context, event persistence.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[event.ID]; ok {
		return persistence.ErrDuplicate
	}
	m.events[event.ID] = event
	return nil
}

func (m *memoryStore) UpdateEvent(ctx context.Context, event persistence.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[event.ID]; !ok {
		return persistence.ErrNotFound
	}
	m.events[event.ID] = event
	return nil
}

func (m *memoryStore) GetEvent(ctx context.Context, id string) (persistence.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	event, ok := m.events[id]
	if !ok {
		return persistence.Event{}, persistence.ErrNotFound
	}
	return event, nil
}

func (m *memoryStore) ListEvents(ctx context.Context) ([]persistence.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]persistence.Event, 0, len(m.events))
	for _, event := range m.events {
		out = append(out, event)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.After(out[j].StartDate) })
	return out, nil
}

func (m *memoryStore) DeleteEvent(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[id]; !ok {
		return persistence.ErrNotFound
	}
	delete(m.events, id)
	kept := m.sessions[:0]
	for _, session := range m.sessions {
		if session.EventID != id {
			kept = append(kept, session)
		}
	}
	m.sessions = kept
	return nil
}

func (m *memoryStore) FindLatestSession(ctx context.Context, eventID string) (persistence.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *persistence.Session
	for i := range m.sessions {
		s := &m.sessions[i]
		if s.EventID == eventID && (latest == nil || s.StartDate.After(latest.StartDate)) {
			latest = s
		}
	}
	if latest == nil {
		return persistence.Session{}, persistence.ErrNotFound
	}
	return *latest, nil
}

func (m *memoryStore) FindSessionByEventAndDate(ctx context.Context, eventID string, startDate time.Time) (persistence.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.EventID == eventID && s.StartDate.Equal(startDate) {
			return s, nil
		}
	}
	return persistence.Session{}, persistence.ErrNotFound
}

func (m *memoryStore) CreateSession(ctx context.Context, session persistence.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createSessionErr != nil {
		return m.createSessionErr
	}
	for _, s := range m.sessions {
		if s.EventID == session.EventID && s.StartDate.Equal(session.StartDate) {
			return persistence.ErrDuplicate
		}
	}
	m.sessions = append(m.sessions, session)
	return nil
}

func (m *memoryStore) FindActiveSession(ctx context.Context, eventID string, day time.Time) (persistence.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var active *persistence.Session
	for i := range m.sessions {
		s := &m.sessions[i]
		if s.EventID != eventID || s.StartDate.After(day) || day.After(s.EndDate) {
			continue
		}
		if active == nil || s.StartDate.After(active.StartDate) {
			active = s
		}
	}
	if active == nil {
		return persistence.Session{}, persistence.ErrNotFound
	}
	return *active, nil
}

func (m *memoryStore) CountSessions(ctx context.Context, eventID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, s := range m.sessions {
		if s.EventID == eventID {
			count++
		}
	}
	return count, nil
}

func (m *memoryStore) FindAttendance(ctx context.Context, userID, sessionID string) (persistence.Attendance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.attendance {
		if a.UserID == userID && a.SessionID == sessionID {
			return a, nil
		}
	}
	return persistence.Attendance{}, persistence.ErrNotFound
}

func (m *memoryStore) CreateAttendance(ctx context.Context, record persistence.Attendance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createAttendanceErr != nil {
		return m.createAttendanceErr
	}
	for _, a := range m.attendance {
		if a.UserID == record.UserID && a.SessionID == record.SessionID {
			return persistence.ErrDuplicate
		}
	}
	m.attendance = append(m.attendance, record)
	return nil
}

func (m *memoryStore) UpdateAttendanceCheckout(ctx context.Context, userID, sessionID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.checkoutErr != nil {
		return m.checkoutErr
	}
	for i := range m.attendance {
		a := &m.attendance[i]
		if a.UserID != userID || a.SessionID != sessionID {
			continue
		}
		if a.CheckOutTime != nil {
			return persistence.ErrConflict
		}
		checkout := at
		a.CheckOutTime = &checkout
		return nil
	}
	return persistence.ErrNotFound
}

func (m *memoryStore) ListAttendanceByEvent(ctx context.Context, eventID string) ([]persistence.Attendance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []persistence.Attendance
	for _, a := range m.attendance {
		if a.EventID == eventID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memoryStore) ListAttendanceByUser(ctx context.Context, userID string) ([]persistence.Attendance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []persistence.Attendance
	for _, a := range m.attendance {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

// schedulerStub records the scheduling hooks invoked by the services.
type schedulerStub struct {
	mu        sync.Mutex
	created   []persistence.Event
	updated   [][2]persistence.EventState
	following []time.Time
	err       error
}

func (s *schedulerStub) OnEventCreated(ctx context.Context, event persistence.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = append(s.created, event)
	return s.err
}

func (s *schedulerStub) OnEventUpdated(ctx context.Context, before, after persistence.EventState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updated = append(s.updated, [2]persistence.EventState{before, after})
	return s.err
}

func (s *schedulerStub) ScheduleFollowing(ctx context.Context, eventID string, target time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.following = append(s.following, target)
	return s.err
}

// testClock is a settable clock.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func sequentialIDs(prefix string) func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%02d", prefix, n)
	}
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
