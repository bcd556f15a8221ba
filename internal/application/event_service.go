package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/example/group-matcher/internal/dates"
	"github.com/example/group-matcher/internal/matching"
	"github.com/example/group-matcher/internal/persistence"
)

// EventService orchestrates validation and persistence for event operations.
// Mutations that can change a match outcome are followed by a check through
// the lifecycle controller.
type EventService struct {
	events      persistence.EventRepository
	matcher     *MatchService
	logger      *slog.Logger
	idGenerator func() string
	now         func() time.Time
}

// NewEventService wires dependencies for event operations.
func NewEventService(events persistence.EventRepository, matcher *MatchService, logger *slog.Logger, idGenerator func() string, now func() time.Time) *EventService {
	if idGenerator == nil {
		idGenerator = uuid.NewString
	}
	if now == nil {
		now = time.Now
	}
	return &EventService{
		events:      events,
		matcher:     matcher,
		logger:      defaultLogger(logger),
		idGenerator: idGenerator,
		now:         now,
	}
}

// CreateEvent validates the request before delegating to persistence. The new
// event starts open; a check runs immediately so an already stale deadline
// expires it right away.
func (s *EventService) CreateEvent(ctx context.Context, params CreateEventParams) (Event, error) {
	if s == nil {
		return Event{}, fmt.Errorf("EventService is nil")
	}
	logger := serviceLogger(ctx, s.logger, "event", "create_event", "creator_id", params.Principal.UserID)

	input := params.Input
	vErr := &ValidationError{}

	if params.Principal.UserID == "" {
		vErr.add("creator_id", "creator is required")
	}
	validateRequirement(input.Requirement, vErr)
	if input.MinParticipants < 1 {
		vErr.add("min_participants", "must be at least 1")
	}
	if input.MaxParticipants < 0 || (input.MaxParticipants > 0 && input.MaxParticipants < input.MinParticipants) {
		vErr.add("max_participants", "must be zero or at least the minimum")
	}
	if input.PeriodStart.IsZero() || input.PeriodEnd.IsZero() {
		vErr.add("period", "start and end are required")
	} else if dates.Normalize(input.PeriodEnd).Before(dates.Normalize(input.PeriodStart)) {
		vErr.add("period", "end must not precede start")
	}
	if vErr.HasErrors() {
		return Event{}, vErr
	}

	createdAt := s.now()
	record := persistence.Event{
		ID:              s.idGenerator(),
		CreatorID:       params.Principal.UserID,
		Requirement:     input.Requirement,
		MinParticipants: input.MinParticipants,
		MaxParticipants: input.MaxParticipants,
		Deadline:        input.Deadline,
		PeriodStart:     dates.Normalize(input.PeriodStart),
		PeriodEnd:       dates.Normalize(input.PeriodEnd),
		Status:          matching.StatusOpen,
		CreatedAt:       createdAt,
		UpdatedAt:       createdAt,
	}

	if err := s.events.CreateEvent(ctx, record); err != nil {
		return Event{}, mapRepoError(err)
	}
	logger.Info("event created", "event_id", record.ID, "requirement", string(input.Requirement.Kind))

	return s.checkAndReload(ctx, record.ID)
}

// JoinEvent adds the user to an open event and re-evaluates the match.
func (s *EventService) JoinEvent(ctx context.Context, eventID, userID string) (Event, error) {
	if s == nil {
		return Event{}, fmt.Errorf("EventService is nil")
	}
	logger := serviceLogger(ctx, s.logger, "event", "join_event", "event_id", eventID, "user_id", userID)

	if userID == "" {
		vErr := &ValidationError{}
		vErr.add("user_id", "user is required")
		return Event{}, vErr
	}

	record, err := s.events.GetEvent(ctx, eventID)
	if err != nil {
		return Event{}, mapRepoError(err)
	}
	if record.Status != matching.StatusOpen {
		return Event{}, ErrEventClosed
	}
	if record.MaxParticipants > 0 && len(record.Participants) >= record.MaxParticipants {
		return Event{}, ErrEventFull
	}

	// The store re-checks capacity under its exclusive scope; the read above
	// is only a fast path and can lose a race with a concurrent join.
	added, err := s.events.AddParticipant(ctx, eventID, userID)
	if errors.Is(err, persistence.ErrConstraintViolation) {
		return Event{}, ErrEventFull
	}
	if err != nil {
		return Event{}, mapRepoError(err)
	}
	if !added {
		return Event{}, ErrAlreadyExists
	}
	logger.Info("participant joined")

	return s.checkAndReload(ctx, eventID)
}

// LeaveEvent removes the user from an open event and re-evaluates the match.
func (s *EventService) LeaveEvent(ctx context.Context, eventID, userID string) (Event, error) {
	if s == nil {
		return Event{}, fmt.Errorf("EventService is nil")
	}
	logger := serviceLogger(ctx, s.logger, "event", "leave_event", "event_id", eventID, "user_id", userID)

	record, err := s.events.GetEvent(ctx, eventID)
	if err != nil {
		return Event{}, mapRepoError(err)
	}
	if record.Status != matching.StatusOpen {
		return Event{}, ErrEventClosed
	}

	removed, err := s.events.RemoveParticipant(ctx, eventID, userID)
	if err != nil {
		return Event{}, mapRepoError(err)
	}
	if !removed {
		return Event{}, ErrNotFound
	}
	logger.Info("participant left")

	return s.checkAndReload(ctx, eventID)
}

// CancelEvent withdraws an open event. Only the creator or an admin may cancel.
func (s *EventService) CancelEvent(ctx context.Context, params EventActionParams) (Event, error) {
	if s == nil {
		return Event{}, fmt.Errorf("EventService is nil")
	}

	record, err := s.events.GetEvent(ctx, params.EventID)
	if err != nil {
		return Event{}, mapRepoError(err)
	}
	if record.CreatorID != params.Principal.UserID && !params.Principal.IsAdmin {
		return Event{}, ErrUnauthorized
	}

	if s.matcher != nil {
		if err := s.matcher.Cancel(ctx, params.EventID); err != nil {
			return Event{}, err
		}
	} else if err := s.events.UpdateStatus(ctx, params.EventID, matching.StatusCancelled, nil); err != nil {
		return Event{}, mapRepoError(err)
	}

	record, err = s.events.GetEvent(ctx, params.EventID)
	if err != nil {
		return Event{}, mapRepoError(err)
	}
	return eventFromRecord(record), nil
}

// DeleteEvent removes the event and its participation records. Only the
// creator or an admin may delete.
func (s *EventService) DeleteEvent(ctx context.Context, params EventActionParams) error {
	if s == nil {
		return fmt.Errorf("EventService is nil")
	}
	logger := serviceLogger(ctx, s.logger, "event", "delete_event", "event_id", params.EventID)

	record, err := s.events.GetEvent(ctx, params.EventID)
	if err != nil {
		return mapRepoError(err)
	}
	if record.CreatorID != params.Principal.UserID && !params.Principal.IsAdmin {
		return ErrUnauthorized
	}

	if err := s.events.DeleteEvent(ctx, params.EventID); err != nil {
		return mapRepoError(err)
	}
	logger.Info("event deleted")
	return nil
}

// GetEvent returns the event with the given ID.
func (s *EventService) GetEvent(ctx context.Context, eventID string) (Event, error) {
	if s == nil {
		return Event{}, fmt.Errorf("EventService is nil")
	}
	record, err := s.events.GetEvent(ctx, eventID)
	if err != nil {
		return Event{}, mapRepoError(err)
	}
	return eventFromRecord(record), nil
}

// ListEventsByCreator returns the events created by the given user.
func (s *EventService) ListEventsByCreator(ctx context.Context, creatorID string) ([]Event, error) {
	if s == nil {
		return nil, fmt.Errorf("EventService is nil")
	}
	records, err := s.events.ListEventsByCreator(ctx, creatorID)
	if err != nil {
		return nil, err
	}
	return eventsFromRecords(records), nil
}

// ListEventsByParticipant returns the events the given user joined.
func (s *EventService) ListEventsByParticipant(ctx context.Context, userID string) ([]Event, error) {
	if s == nil {
		return nil, fmt.Errorf("EventService is nil")
	}
	records, err := s.events.ListEventsByParticipant(ctx, userID)
	if err != nil {
		return nil, err
	}
	return eventsFromRecords(records), nil
}

// ListEventsByStatus returns the events currently in the given status.
func (s *EventService) ListEventsByStatus(ctx context.Context, status matching.EventStatus) ([]Event, error) {
	if s == nil {
		return nil, fmt.Errorf("EventService is nil")
	}
	if !matching.KnownEventStatus(status) {
		vErr := &ValidationError{}
		vErr.add("status", "unknown status")
		return nil, vErr
	}
	records, err := s.events.ListEventsByStatus(ctx, status)
	if err != nil {
		return nil, err
	}
	return eventsFromRecords(records), nil
}

func (s *EventService) checkAndReload(ctx context.Context, eventID string) (Event, error) {
	if s.matcher != nil {
		if _, err := s.matcher.CheckEvent(ctx, eventID); err != nil {
			return Event{}, err
		}
	}
	record, err := s.events.GetEvent(ctx, eventID)
	if err != nil {
		return Event{}, mapRepoError(err)
	}
	return eventFromRecord(record), nil
}

func validateRequirement(requirement matching.Requirement, vErr *ValidationError) {
	if !matching.KnownRequirementKind(requirement.Kind) {
		vErr.add("requirement", "unknown requirement kind")
		return
	}

	switch requirement.Kind {
	case matching.RequirementConsecutiveDays, matching.RequirementFlexibleDays:
		if requirement.Days < 1 {
			vErr.add("days", "must be at least 1")
		}
	case matching.RequirementHourBudget:
		if requirement.Hours < 1 {
			vErr.add("hours", "must be at least 1")
		}
		for _, slot := range requirement.AllowedSlotTypes {
			if !matching.KnownSlotType(slot) {
				vErr.add("allowed_slot_types", fmt.Sprintf("unknown slot type: %s", slot))
			}
		}
	}
}
