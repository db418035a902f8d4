package application

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nuru484/BeThere-server/internal/persistence"
	"github.com/nuru484/BeThere-server/internal/recurrence"
)

func newSessionFixture(t *testing.T, event persistence.Event) (*SessionService, *memoryStore, *schedulerStub) {
	t.Helper()
	store := newMemoryStore()
	if event.ID != "" {
		store.events[event.ID] = event
	}
	sched := &schedulerStub{}
	clock := &testClock{now: date(2024, time.January, 1)}
	svc := NewSessionService(store, sched, recurrence.NewEngine(time.UTC), sequentialIDs("ses"), clock.Now)
	return svc, store, sched
}

func singleEvent() persistence.Event {
	end := date(2024, time.January, 3)
	return persistence.Event{
		ID:                     "evt-a",
		Title:                  "Workshop",
		Type:                   "workshop",
		StartDate:              date(2024, time.January, 1),
		EndDate:                &end,
		RecurrenceIntervalDays: 1,
		DurationDays:           3,
		StartTime:              "09:00",
		EndTime:                "17:00",
	}
}

func weeklyEvent() persistence.Event {
	end := date(2024, time.January, 22)
	return persistence.Event{
		ID:                     "evt-b",
		Title:                  "Standup",
		Type:                   "meeting",
		StartDate:              date(2024, time.January, 1),
		EndDate:                &end,
		IsRecurring:            true,
		RecurrenceIntervalDays: 7,
		DurationDays:           1,
		StartTime:              "08:00",
		EndTime:                "09:00",
	}
}

func TestSessionService_MaterializeSingleEvent(t *testing.T) {
	t.Parallel()

	svc, store, sched := newSessionFixture(t, singleEvent())
	ctx := context.Background()

	result, err := svc.Materialize(ctx, MaterializeParams{EventID: "evt-a"})
	if err != nil {
		t.Fatalf("Materialize returned error: %v", err)
	}
	if result.Outcome != OutcomeCreated || result.Session == nil {
		t.Fatalf("expected created session, got %+v", result)
	}
	session := result.Session
	if !session.StartDate.Equal(date(2024, time.January, 1)) || !session.EndDate.Equal(date(2024, time.January, 3)) {
		t.Fatalf("unexpected session span %s..%s", session.StartDate, session.EndDate)
	}
	if want := time.Date(2024, time.January, 1, 9, 0, 0, 0, time.UTC); !session.StartTime.Equal(want) {
		t.Fatalf("expected start time %s, got %s", want, session.StartTime)
	}
	if want := time.Date(2024, time.January, 3, 17, 0, 0, 0, time.UTC); !session.EndTime.Equal(want) {
		t.Fatalf("expected end time %s, got %s", want, session.EndTime)
	}
	if len(sched.following) != 0 {
		t.Fatalf("expected no following session for a single event, got %v", sched.following)
	}

	again, err := svc.Materialize(ctx, MaterializeParams{EventID: "evt-a"})
	if err != nil {
		t.Fatalf("second Materialize returned error: %v", err)
	}
	if again.Outcome != OutcomeCompleted {
		t.Fatalf("expected completed on second run, got %+v", again)
	}
	if len(store.sessions) != 1 {
		t.Fatalf("expected exactly one session, got %d", len(store.sessions))
	}
}

func TestSessionService_MaterializeWeeklyChain(t *testing.T) {
	t.Parallel()

	svc, store, sched := newSessionFixture(t, weeklyEvent())
	ctx := context.Background()

	target := date(2024, time.January, 1)
	for i := 0; i < 4; i++ {
		tgt := target
		result, err := svc.Materialize(ctx, MaterializeParams{EventID: "evt-b", TargetDate: &tgt})
		if err != nil {
			t.Fatalf("run %d: unexpected error: %v", i, err)
		}
		if result.Outcome != OutcomeCreated {
			t.Fatalf("run %d: expected created, got %+v", i, result)
		}
		if !result.Session.StartDate.Equal(tgt) {
			t.Fatalf("run %d: expected session on %s, got %s", i, tgt, result.Session.StartDate)
		}
		if i < 3 {
			target = sched.following[len(sched.following)-1]
		}
	}

	wantFollowing := []time.Time{date(2024, time.January, 8), date(2024, time.January, 15), date(2024, time.January, 22)}
	if len(sched.following) != len(wantFollowing) {
		t.Fatalf("expected %d following targets, got %v", len(wantFollowing), sched.following)
	}
	for i, want := range wantFollowing {
		if !sched.following[i].Equal(want) {
			t.Fatalf("following[%d]: expected %s, got %s", i, want, sched.following[i])
		}
	}

	beyond := date(2024, time.January, 29)
	result, err := svc.Materialize(ctx, MaterializeParams{EventID: "evt-b", TargetDate: &beyond})
	if err != nil {
		t.Fatalf("unexpected error past end date: %v", err)
	}
	if result.Outcome != OutcomeCompleted || result.Reason != string(recurrence.ReasonEnded) {
		t.Fatalf("expected completed/ended past end date, got %+v", result)
	}
	if len(store.sessions) != 4 {
		t.Fatalf("expected 4 sessions, got %d", len(store.sessions))
	}
}

func TestSessionService_MaterializeRedelivery(t *testing.T) {
	t.Parallel()

	t.Run("skips a target that is no longer next", func(t *testing.T) {
		t.Parallel()
		svc, store, _ := newSessionFixture(t, weeklyEvent())
		target := date(2024, time.January, 1)
		params := MaterializeParams{EventID: "evt-b", TargetDate: &target}

		if _, err := svc.Materialize(context.Background(), params); err != nil {
			t.Fatalf("first run: %v", err)
		}
		result, err := svc.Materialize(context.Background(), params)
		if err != nil {
			t.Fatalf("second run: %v", err)
		}
		if result.Outcome != OutcomeSkipped || !strings.HasPrefix(result.Reason, "stale target") {
			t.Fatalf("expected stale skip, got %+v", result)
		}
		if len(store.sessions) != 1 {
			t.Fatalf("expected one session, got %d", len(store.sessions))
		}
	})

	t.Run("treats a concurrent insert as skipped", func(t *testing.T) {
		t.Parallel()
		svc, store, sched := newSessionFixture(t, weeklyEvent())
		store.createSessionErr = persistence.ErrDuplicate

		result, err := svc.Materialize(context.Background(), MaterializeParams{EventID: "evt-b"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Outcome != OutcomeSkipped {
			t.Fatalf("expected skipped, got %+v", result)
		}
		if len(sched.following) != 0 {
			t.Fatalf("expected no chaining from a skipped run")
		}
	})
}

func TestSessionService_MaterializeEdgeCases(t *testing.T) {
	t.Parallel()

	t.Run("drops jobs for deleted events", func(t *testing.T) {
		t.Parallel()
		svc, _, _ := newSessionFixture(t, persistence.Event{})

		result, err := svc.Materialize(context.Background(), MaterializeParams{EventID: "gone"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Outcome != OutcomeDropped {
			t.Fatalf("expected dropped, got %+v", result)
		}
	})

	t.Run("rejects a zero interval", func(t *testing.T) {
		t.Parallel()
		event := weeklyEvent()
		event.RecurrenceIntervalDays = 0
		svc, store, _ := newSessionFixture(t, event)

		_, err := svc.Materialize(context.Background(), MaterializeParams{EventID: event.ID})
		if !errors.Is(err, ErrInvalidConfiguration) {
			t.Fatalf("expected ErrInvalidConfiguration, got %v", err)
		}
		if len(store.sessions) != 0 {
			t.Fatalf("expected no sessions")
		}
	})

	t.Run("rejects malformed clocks", func(t *testing.T) {
		t.Parallel()
		event := weeklyEvent()
		event.StartTime = "25:00"
		svc, _, _ := newSessionFixture(t, event)

		_, err := svc.Materialize(context.Background(), MaterializeParams{EventID: event.ID})
		if !errors.Is(err, ErrInvalidConfiguration) {
			t.Fatalf("expected ErrInvalidConfiguration, got %v", err)
		}
	})

	t.Run("keeps the session when chaining fails", func(t *testing.T) {
		t.Parallel()
		svc, store, sched := newSessionFixture(t, weeklyEvent())
		sched.err = errors.New("queue unavailable")

		result, err := svc.Materialize(context.Background(), MaterializeParams{EventID: "evt-b"})
		if err != nil {
			t.Fatalf("expected chaining failure to be swallowed, got %v", err)
		}
		if result.Outcome != OutcomeCreated || len(store.sessions) != 1 {
			t.Fatalf("expected the session to be created, got %+v", result)
		}
	})

	t.Run("returns an error when unconfigured", func(t *testing.T) {
		t.Parallel()
		var svc *SessionService
		if _, err := svc.Materialize(context.Background(), MaterializeParams{EventID: "x"}); err == nil {
			t.Fatalf("expected error from nil service")
		}
	})
}
