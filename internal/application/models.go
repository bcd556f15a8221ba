package application

import (
	"time"

	"github.com/example/group-matcher/internal/matching"
	"github.com/example/group-matcher/internal/persistence"
)

// Principal identifies the acting user for authorization checks.
type Principal struct {
	UserID  string
	IsAdmin bool
}

// Event is the application view of a group event.
type Event struct {
	ID              string
	CreatorID       string
	Participants    []string
	Requirement     matching.Requirement
	MinParticipants int
	MaxParticipants int
	Deadline        *time.Time
	PeriodStart     time.Time
	PeriodEnd       time.Time
	Status          matching.EventStatus
	MatchedResult   []matching.MatchedSlot
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func eventFromRecord(record persistence.Event) Event {
	return Event{
		ID:              record.ID,
		CreatorID:       record.CreatorID,
		Participants:    record.Participants,
		Requirement:     record.Requirement,
		MinParticipants: record.MinParticipants,
		MaxParticipants: record.MaxParticipants,
		Deadline:        record.Deadline,
		PeriodStart:     record.PeriodStart,
		PeriodEnd:       record.PeriodEnd,
		Status:          record.Status,
		MatchedResult:   record.MatchedResult,
		CreatedAt:       record.CreatedAt,
		UpdatedAt:       record.UpdatedAt,
	}
}

func eventsFromRecords(records []persistence.Event) []Event {
	if len(records) == 0 {
		return nil
	}
	out := make([]Event, len(records))
	for i, record := range records {
		out[i] = eventFromRecord(record)
	}
	return out
}

// matchingEvent projects a stored event into the shape the decision engine evaluates.
func matchingEvent(record persistence.Event) matching.Event {
	return matching.Event{
		ID:              record.ID,
		Status:          record.Status,
		Participants:    record.Participants,
		MinParticipants: record.MinParticipants,
		Requirement:     record.Requirement,
		Deadline:        record.Deadline,
		PeriodStart:     record.PeriodStart,
		PeriodEnd:       record.PeriodEnd,
		MatchedResult:   record.MatchedResult,
	}
}

// CreateEventInput carries the caller supplied fields for a new event.
type CreateEventInput struct {
	Requirement     matching.Requirement
	MinParticipants int
	MaxParticipants int
	Deadline        *time.Time
	PeriodStart     time.Time
	PeriodEnd       time.Time
}

// CreateEventParams couples the input with the acting principal.
type CreateEventParams struct {
	Principal Principal
	Input     CreateEventInput
}

// EventActionParams identifies an event for creator scoped operations.
type EventActionParams struct {
	Principal Principal
	EventID   string
}

// SetAvailabilityInput carries one bulk availability write. Mode must be set
// explicitly; there is no default between merging and replacing.
type SetAvailabilityInput struct {
	UserID string
	Days   []time.Time
	Slots  []matching.SlotType
	Mode   persistence.WriteMode
}

// DayAvailability is the application view of one availability record.
type DayAvailability struct {
	Date  time.Time
	Slots []matching.SlotType
}

func availabilityFromRecords(records []persistence.AvailabilityRecord) []DayAvailability {
	if len(records) == 0 {
		return nil
	}
	out := make([]DayAvailability, len(records))
	for i, record := range records {
		out[i] = DayAvailability{Date: record.Date, Slots: record.Slots.Types()}
	}
	return out
}
