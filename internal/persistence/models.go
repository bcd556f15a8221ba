package persistence

import (
	"time"

	"github.com/example/group-matcher/internal/matching"
)

// Event represents a gathering stored in persistence. Participants never
// include the creator; MatchedResult is populated only while Status is
// matched.
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

// AvailabilityRecord stores which slots one user declared free on one date.
// There is at most one record per (UserID, Date); a missing record means the
// user is unavailable that day.
type AvailabilityRecord struct {
	UserID    string
	Date      time.Time
	Slots     matching.SlotSet
	CreatedAt time.Time
	UpdatedAt time.Time
}

// WriteMode selects how SetAvailability treats existing records. Callers must
// pick one explicitly; the two policies are observably different.
type WriteMode string

const (
	// WriteModeMerge ORs new slot flags into any existing record.
	WriteModeMerge WriteMode = "merge"
	// WriteModeReplace overwrites the stored slot flags for the date.
	WriteModeReplace WriteMode = "replace"
)

// KnownWriteMode reports whether the value is a recognised write mode.
func KnownWriteMode(mode WriteMode) bool {
	return mode == WriteModeMerge || mode == WriteModeReplace
}
