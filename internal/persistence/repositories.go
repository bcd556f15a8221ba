package persistence

import (
	"context"
	"time"

	"github.com/example/group-matcher/internal/matching"
)

// EventRepository stores events and their participant sets.
type EventRepository interface {
	CreateEvent(ctx context.Context, event Event) error
	GetEvent(ctx context.Context, id string) (Event, error)
	ListEventsByCreator(ctx context.Context, creatorID string) ([]Event, error)
	ListEventsByStatus(ctx context.Context, status matching.EventStatus) ([]Event, error)
	ListEventsByParticipant(ctx context.Context, userID string) ([]Event, error)

	// AddParticipant reports false without mutating when the user is the
	// creator or already a participant, and fails with ErrConstraintViolation
	// when the participant limit is reached. The capacity check happens under
	// the store's exclusive scope.
	AddParticipant(ctx context.Context, eventID, userID string) (bool, error)
	// RemoveParticipant reports false when the user was not a participant.
	RemoveParticipant(ctx context.Context, eventID, userID string) (bool, error)

	// UpdateStatus commits a transition out of the open state. Writes against
	// events that already left open fail with ErrInvalidTransition.
	UpdateStatus(ctx context.Context, eventID string, status matching.EventStatus, result []matching.MatchedSlot) error

	// DeleteEvent removes the event and cascades its participation records.
	DeleteEvent(ctx context.Context, id string) error

	// ListExpiredCandidates returns open events whose deadline lies before now.
	ListExpiredCandidates(ctx context.Context, now time.Time) ([]Event, error)

	// CountEventsByStatus returns event counts keyed by status.
	CountEventsByStatus(ctx context.Context) (map[matching.EventStatus]int, error)
}

// AvailabilityRepository stores per (user, date) slot declarations.
type AvailabilityRepository interface {
	// SetAvailability bulk-writes the slots for every given date. The mode
	// decides whether flags merge into or replace existing records; both
	// variants are idempotent.
	SetAvailability(ctx context.Context, userID string, days []time.Time, slots matching.SlotSet, mode WriteMode) error

	GetByUser(ctx context.Context, userID string) ([]AvailabilityRecord, error)
	GetByUserInRange(ctx context.Context, userID string, start, end time.Time) ([]AvailabilityRecord, error)
	// GetByUsersInRange is the bulk fetch the lifecycle controller uses to
	// build matching snapshots.
	GetByUsersInRange(ctx context.Context, userIDs []string, start, end time.Time) ([]AvailabilityRecord, error)

	// Reset deletes the records for the given dates; an empty list deletes
	// every record of the user.
	Reset(ctx context.Context, userID string, days []time.Time) error
}
