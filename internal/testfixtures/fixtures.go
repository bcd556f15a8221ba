package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/group-matcher/internal/dates"
	"github.com/example/group-matcher/internal/matching"
	"github.com/example/group-matcher/internal/persistence"
)

var eventCounter uint64

var referenceTime = time.Date(2025, time.January, 15, 9, 0, 0, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// Day parses an ISO date into its canonical midnight instant. Invalid input
// panics; fixtures are always written with literal dates.
func Day(value string) time.Time {
	parsed, err := time.Parse(dates.ISO, value)
	if err != nil {
		panic(fmt.Sprintf("testfixtures: invalid date %q: %v", value, err))
	}
	return dates.Normalize(parsed)
}

// Days parses several ISO dates at once.
func Days(values ...string) []time.Time {
	out := make([]time.Time, len(values))
	for i, value := range values {
		out[i] = Day(value)
	}
	return out
}

// EventOption configures the generated event fixture.
type EventOption func(*persistence.Event)

// NewEventFixture returns a deterministic open event covering one reference
// week with a two consecutive day requirement, with optional overrides.
func NewEventFixture(opts ...EventOption) persistence.Event {
	idx := atomic.AddUint64(&eventCounter, 1)
	created := referenceTime.Add(time.Duration(idx) * time.Minute)
	event := persistence.Event{
		ID:              fmt.Sprintf("event-%03d", idx),
		CreatorID:       "creator",
		Requirement:     matching.Requirement{Kind: matching.RequirementConsecutiveDays, Days: 2},
		MinParticipants: 2,
		PeriodStart:     Day("2025-01-20"),
		PeriodEnd:       Day("2025-01-26"),
		Status:          matching.StatusOpen,
		CreatedAt:       created,
		UpdatedAt:       created,
	}
	for _, opt := range opts {
		opt(&event)
	}
	return event
}

// WithEventID overrides the generated event ID.
func WithEventID(id string) EventOption {
	return func(e *persistence.Event) {
		e.ID = id
	}
}

// WithCreator overrides the creator.
func WithCreator(creatorID string) EventOption {
	return func(e *persistence.Event) {
		e.CreatorID = creatorID
	}
}

// WithRequirement overrides the requirement.
func WithRequirement(requirement matching.Requirement) EventOption {
	return func(e *persistence.Event) {
		e.Requirement = requirement
	}
}

// WithPeriod overrides the inclusive period window.
func WithPeriod(start, end string) EventOption {
	return func(e *persistence.Event) {
		e.PeriodStart = Day(start)
		e.PeriodEnd = Day(end)
	}
}

// WithDeadline sets the response deadline.
func WithDeadline(deadline time.Time) EventOption {
	return func(e *persistence.Event) {
		e.Deadline = &deadline
	}
}

// WithParticipantBounds overrides the participant limits.
func WithParticipantBounds(min, max int) EventOption {
	return func(e *persistence.Event) {
		e.MinParticipants = min
		e.MaxParticipants = max
	}
}

// WithStatus overrides the lifecycle status.
func WithStatus(status matching.EventStatus) EventOption {
	return func(e *persistence.Event) {
		e.Status = status
	}
}
