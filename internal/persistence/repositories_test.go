package persistence_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/group-matcher/internal/matching"
	"github.com/example/group-matcher/internal/persistence"
	"github.com/example/group-matcher/internal/persistence/memory"
	"github.com/example/group-matcher/internal/testfixtures"
)

// store combines both repository contracts; each implementation must satisfy
// the same behaviour, so every test below runs against memory and SQLite.
type store interface {
	persistence.EventRepository
	persistence.AvailabilityRepository
}

type splitStore struct {
	persistence.EventRepository
	persistence.AvailabilityRepository
}

func implementations(t *testing.T) map[string]func(t *testing.T) store {
	t.Helper()
	return map[string]func(t *testing.T) store{
		"memory": func(t *testing.T) store {
			return memory.NewStore()
		},
		"sqlite": func(t *testing.T) store {
			harness := testfixtures.NewSQLiteHarness(t)
			return splitStore{harness.Events, harness.Availability}
		},
	}
}

func runForEachStore(t *testing.T, test func(t *testing.T, s store)) {
	t.Helper()
	for name, build := range implementations(t) {
		build := build
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			test(t, build(t))
		})
	}
}

func TestEventRoundTrip(t *testing.T) {
	t.Parallel()

	runForEachStore(t, func(t *testing.T, s store) {
		ctx := context.Background()

		deadline := time.Date(2025, time.January, 19, 12, 0, 0, 0, time.UTC)
		event := testfixtures.NewEventFixture(testfixtures.WithEventID("event-1"))
		event.Deadline = &deadline
		event.MaxParticipants = 4
		event.Requirement.AllowedSlotTypes = []matching.SlotType{matching.SlotEvening, matching.SlotFullDay}

		if err := s.CreateEvent(ctx, event); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		got, err := s.GetEvent(ctx, "event-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.CreatorID != "creator" || got.Status != matching.StatusOpen {
			t.Fatalf("unexpected event: %+v", got)
		}
		if got.Deadline == nil || !got.Deadline.Equal(deadline) {
			t.Fatalf("unexpected deadline: %v", got.Deadline)
		}
		if len(got.Requirement.AllowedSlotTypes) != 2 {
			t.Fatalf("unexpected allowed slot types: %v", got.Requirement.AllowedSlotTypes)
		}
		if !got.PeriodStart.Equal(testfixtures.Day("2025-01-20")) || !got.PeriodEnd.Equal(testfixtures.Day("2025-01-26")) {
			t.Fatalf("unexpected period: %v .. %v", got.PeriodStart, got.PeriodEnd)
		}
	})
}

func TestCreateEventRejectsDuplicateID(t *testing.T) {
	t.Parallel()

	runForEachStore(t, func(t *testing.T, s store) {
		ctx := context.Background()

		if err := s.CreateEvent(ctx, testfixtures.NewEventFixture(testfixtures.WithEventID("event-1"))); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := s.CreateEvent(ctx, testfixtures.NewEventFixture(testfixtures.WithEventID("event-1"))); !errors.Is(err, persistence.ErrDuplicate) {
			t.Fatalf("expected ErrDuplicate, got %v", err)
		}
	})
}

func TestGetEventNotFound(t *testing.T) {
	t.Parallel()

	runForEachStore(t, func(t *testing.T, s store) {
		if _, err := s.GetEvent(context.Background(), "missing"); !errors.Is(err, persistence.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestAddParticipantRejectsCreatorAndDuplicates(t *testing.T) {
	t.Parallel()

	runForEachStore(t, func(t *testing.T, s store) {
		ctx := context.Background()

		if err := s.CreateEvent(ctx, testfixtures.NewEventFixture(testfixtures.WithEventID("event-1"))); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		added, err := s.AddParticipant(ctx, "event-1", "alice")
		if err != nil || !added {
			t.Fatalf("expected first join to succeed, got added=%v err=%v", added, err)
		}

		added, err = s.AddParticipant(ctx, "event-1", "alice")
		if err != nil || added {
			t.Fatalf("expected duplicate join to report false, got added=%v err=%v", added, err)
		}

		added, err = s.AddParticipant(ctx, "event-1", "creator")
		if err != nil || added {
			t.Fatalf("expected creator join to report false, got added=%v err=%v", added, err)
		}

		got, err := s.GetEvent(ctx, "event-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got.Participants) != 1 || got.Participants[0] != "alice" {
			t.Fatalf("unexpected participants: %v", got.Participants)
		}
	})
}

func TestAddParticipantEnforcesCapacity(t *testing.T) {
	t.Parallel()

	runForEachStore(t, func(t *testing.T, s store) {
		ctx := context.Background()

		event := testfixtures.NewEventFixture(
			testfixtures.WithEventID("event-1"),
			testfixtures.WithParticipantBounds(2, 2),
		)
		if err := s.CreateEvent(ctx, event); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		for _, user := range []string{"alice", "bob"} {
			added, err := s.AddParticipant(ctx, "event-1", user)
			if err != nil || !added {
				t.Fatalf("expected %s join to succeed, got added=%v err=%v", user, added, err)
			}
		}

		if _, err := s.AddParticipant(ctx, "event-1", "carol"); !errors.Is(err, persistence.ErrConstraintViolation) {
			t.Fatalf("expected ErrConstraintViolation at capacity, got %v", err)
		}

		added, err := s.AddParticipant(ctx, "event-1", "alice")
		if err != nil || added {
			t.Fatalf("expected duplicate join at capacity to report false, got added=%v err=%v", added, err)
		}

		got, err := s.GetEvent(ctx, "event-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got.Participants) != 2 {
			t.Fatalf("unexpected participants: %v", got.Participants)
		}
	})
}

func TestRemoveParticipant(t *testing.T) {
	t.Parallel()

	runForEachStore(t, func(t *testing.T, s store) {
		ctx := context.Background()

		if err := s.CreateEvent(ctx, testfixtures.NewEventFixture(testfixtures.WithEventID("event-1"))); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := s.AddParticipant(ctx, "event-1", "alice"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		removed, err := s.RemoveParticipant(ctx, "event-1", "alice")
		if err != nil || !removed {
			t.Fatalf("expected removal, got removed=%v err=%v", removed, err)
		}

		removed, err = s.RemoveParticipant(ctx, "event-1", "alice")
		if err != nil || removed {
			t.Fatalf("expected second removal to report false, got removed=%v err=%v", removed, err)
		}
	})
}

func TestUpdateStatusIsMonotonic(t *testing.T) {
	t.Parallel()

	runForEachStore(t, func(t *testing.T, s store) {
		ctx := context.Background()

		if err := s.CreateEvent(ctx, testfixtures.NewEventFixture(testfixtures.WithEventID("event-1"))); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		result := []matching.MatchedSlot{{Date: testfixtures.Day("2025-01-21")}, {Date: testfixtures.Day("2025-01-22")}}
		if err := s.UpdateStatus(ctx, "event-1", matching.StatusMatched, result); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		got, err := s.GetEvent(ctx, "event-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.Status != matching.StatusMatched || len(got.MatchedResult) != 2 {
			t.Fatalf("unexpected event after match: %+v", got)
		}

		err = s.UpdateStatus(ctx, "event-1", matching.StatusExpired, nil)
		if !errors.Is(err, persistence.ErrInvalidTransition) {
			t.Fatalf("expected ErrInvalidTransition, got %v", err)
		}
	})
}

func TestUpdateStatusRequiresResultOnlyWhenMatched(t *testing.T) {
	t.Parallel()

	runForEachStore(t, func(t *testing.T, s store) {
		ctx := context.Background()

		if err := s.CreateEvent(ctx, testfixtures.NewEventFixture(testfixtures.WithEventID("event-1"))); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := s.CreateEvent(ctx, testfixtures.NewEventFixture(testfixtures.WithEventID("event-2"))); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		err := s.UpdateStatus(ctx, "event-1", matching.StatusMatched, nil)
		if !errors.Is(err, persistence.ErrConstraintViolation) {
			t.Fatalf("expected ErrConstraintViolation for matched without result, got %v", err)
		}

		err = s.UpdateStatus(ctx, "event-2", matching.StatusExpired, []matching.MatchedSlot{{Date: testfixtures.Day("2025-01-21")}})
		if !errors.Is(err, persistence.ErrConstraintViolation) {
			t.Fatalf("expected ErrConstraintViolation for expired with result, got %v", err)
		}
	})
}

func TestDeleteEventCascadesParticipants(t *testing.T) {
	t.Parallel()

	runForEachStore(t, func(t *testing.T, s store) {
		ctx := context.Background()

		if err := s.CreateEvent(ctx, testfixtures.NewEventFixture(testfixtures.WithEventID("event-1"))); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := s.AddParticipant(ctx, "event-1", "alice"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if err := s.DeleteEvent(ctx, "event-1"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		events, err := s.ListEventsByParticipant(ctx, "alice")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(events) != 0 {
			t.Fatalf("expected no participation after delete, got %d", len(events))
		}

		if err := s.DeleteEvent(ctx, "event-1"); !errors.Is(err, persistence.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestListEventsByStatusAndCreator(t *testing.T) {
	t.Parallel()

	runForEachStore(t, func(t *testing.T, s store) {
		ctx := context.Background()

		first := testfixtures.NewEventFixture(testfixtures.WithEventID("event-1"))
		second := testfixtures.NewEventFixture(testfixtures.WithEventID("event-2"))
		second.CreatorID = "other"
		second.CreatedAt = time.Date(2025, time.January, 2, 0, 0, 0, 0, time.UTC)
		first.CreatedAt = time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

		if err := s.CreateEvent(ctx, first); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := s.CreateEvent(ctx, second); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		open, err := s.ListEventsByStatus(ctx, matching.StatusOpen)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(open) != 2 || open[0].ID != "event-1" {
			t.Fatalf("unexpected open events: %+v", open)
		}

		mine, err := s.ListEventsByCreator(ctx, "creator")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(mine) != 1 || mine[0].ID != "event-1" {
			t.Fatalf("unexpected creator events: %+v", mine)
		}
	})
}

func TestListExpiredCandidates(t *testing.T) {
	t.Parallel()

	runForEachStore(t, func(t *testing.T, s store) {
		ctx := context.Background()
		now := time.Date(2025, time.January, 20, 12, 0, 0, 0, time.UTC)

		overdue := testfixtures.NewEventFixture(testfixtures.WithEventID("event-overdue"))
		past := now.Add(-time.Hour)
		overdue.Deadline = &past

		upcoming := testfixtures.NewEventFixture(testfixtures.WithEventID("event-upcoming"))
		future := now.Add(time.Hour)
		upcoming.Deadline = &future

		unbounded := testfixtures.NewEventFixture(testfixtures.WithEventID("event-unbounded"))

		for _, event := range []persistence.Event{overdue, upcoming, unbounded} {
			if err := s.CreateEvent(ctx, event); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		}

		candidates, err := s.ListExpiredCandidates(ctx, now)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(candidates) != 1 || candidates[0].ID != "event-overdue" {
			t.Fatalf("unexpected candidates: %+v", candidates)
		}
	})
}

func TestCountEventsByStatus(t *testing.T) {
	t.Parallel()

	runForEachStore(t, func(t *testing.T, s store) {
		ctx := context.Background()

		if err := s.CreateEvent(ctx, testfixtures.NewEventFixture(testfixtures.WithEventID("event-1"))); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := s.CreateEvent(ctx, testfixtures.NewEventFixture(testfixtures.WithEventID("event-2"))); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := s.UpdateStatus(ctx, "event-2", matching.StatusMatched, []matching.MatchedSlot{{Date: testfixtures.Day("2025-01-21")}}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		counts, err := s.CountEventsByStatus(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if counts[matching.StatusOpen] != 1 || counts[matching.StatusMatched] != 1 {
			t.Fatalf("unexpected counts: %v", counts)
		}
	})
}

func TestSetAvailabilityMergeAccumulates(t *testing.T) {
	t.Parallel()

	runForEachStore(t, func(t *testing.T, s store) {
		ctx := context.Background()
		target := testfixtures.Day("2025-01-21")

		err := s.SetAvailability(ctx, "alice", []time.Time{target}, matching.NewSlotSet(matching.SlotEvening), persistence.WriteModeMerge)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		records, err := s.GetByUser(ctx, "alice")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(records) != 1 || !records[0].Slots.Has(matching.SlotEvening) {
			t.Fatalf("unexpected records: %+v", records)
		}

		err = s.SetAvailability(ctx, "alice", []time.Time{target}, matching.NewSlotSet(matching.SlotFullDay), persistence.WriteModeMerge)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		records, err = s.GetByUser(ctx, "alice")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(records) != 1 {
			t.Fatalf("expected single record, got %d", len(records))
		}
		if !records[0].Slots.Has(matching.SlotEvening) || !records[0].Slots.Has(matching.SlotFullDay) {
			t.Fatalf("expected merged slots, got %v", records[0].Slots)
		}
	})
}

func TestSetAvailabilityReplaceOverwrites(t *testing.T) {
	t.Parallel()

	runForEachStore(t, func(t *testing.T, s store) {
		ctx := context.Background()
		target := testfixtures.Day("2025-01-21")

		if err := s.SetAvailability(ctx, "alice", []time.Time{target}, matching.NewSlotSet(matching.SlotEvening, matching.SlotMorning), persistence.WriteModeMerge); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := s.SetAvailability(ctx, "alice", []time.Time{target}, matching.NewSlotSet(matching.SlotFullDay), persistence.WriteModeReplace); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		records, err := s.GetByUser(ctx, "alice")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(records) != 1 {
			t.Fatalf("expected single record, got %d", len(records))
		}
		slots := records[0].Slots
		if !slots.Has(matching.SlotFullDay) || slots.Has(matching.SlotEvening) || slots.Has(matching.SlotMorning) {
			t.Fatalf("expected replace to overwrite, got %v", slots)
		}
	})
}

func TestSetAvailabilityRequiresExplicitMode(t *testing.T) {
	t.Parallel()

	runForEachStore(t, func(t *testing.T, s store) {
		err := s.SetAvailability(context.Background(), "alice", []time.Time{testfixtures.Day("2025-01-21")}, matching.NewSlotSet(matching.SlotEvening), persistence.WriteMode(""))
		if !errors.Is(err, persistence.ErrConstraintViolation) {
			t.Fatalf("expected ErrConstraintViolation, got %v", err)
		}
	})
}

func TestGetByUsersInRange(t *testing.T) {
	t.Parallel()

	runForEachStore(t, func(t *testing.T, s store) {
		ctx := context.Background()

		seed := map[string][]string{
			"alice": {"2025-01-19", "2025-01-21", "2025-01-27"},
			"bob":   {"2025-01-22"},
			"carol": {"2025-01-21"},
		}
		for user, days := range seed {
			for _, value := range days {
				if err := s.SetAvailability(ctx, user, []time.Time{testfixtures.Day(value)}, matching.NewSlotSet(matching.SlotFullDay), persistence.WriteModeReplace); err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
			}
		}

		records, err := s.GetByUsersInRange(ctx, []string{"alice", "bob"}, testfixtures.Day("2025-01-20"), testfixtures.Day("2025-01-26"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(records) != 2 {
			t.Fatalf("expected 2 records, got %d: %+v", len(records), records)
		}
		for _, record := range records {
			if record.UserID == "carol" {
				t.Fatalf("unexpected user in result: %+v", record)
			}
		}
	})
}

func TestResetDeletesRecords(t *testing.T) {
	t.Parallel()

	runForEachStore(t, func(t *testing.T, s store) {
		ctx := context.Background()

		days := []time.Time{testfixtures.Day("2025-01-21"), testfixtures.Day("2025-01-22"), testfixtures.Day("2025-01-23")}
		if err := s.SetAvailability(ctx, "alice", days, matching.NewSlotSet(matching.SlotFullDay), persistence.WriteModeReplace); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if err := s.Reset(ctx, "alice", days[:1]); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		records, err := s.GetByUser(ctx, "alice")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(records) != 2 {
			t.Fatalf("expected 2 records after partial reset, got %d", len(records))
		}

		if err := s.Reset(ctx, "alice", nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		records, err = s.GetByUser(ctx, "alice")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(records) != 0 {
			t.Fatalf("expected no records after full reset, got %d", len(records))
		}
	})
}

func TestSetAvailabilityIsIdempotent(t *testing.T) {
	t.Parallel()

	runForEachStore(t, func(t *testing.T, s store) {
		ctx := context.Background()
		target := testfixtures.Day("2025-01-21")
		slots := matching.NewSlotSet(matching.SlotEvening, matching.SlotFullDay)

		for i := 0; i < 3; i++ {
			if err := s.SetAvailability(ctx, "alice", []time.Time{target}, slots, persistence.WriteModeReplace); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		}

		records, err := s.GetByUser(ctx, "alice")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(records) != 1 || len(records[0].Slots.Types()) != 2 {
			t.Fatalf("unexpected records after repeated writes: %+v", records)
		}
	})
}
