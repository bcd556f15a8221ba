package matching

import "time"

// SlotType names a subdivision of a calendar day a user can declare free.
type SlotType string

const (
	// SlotFullDay covers the whole day.
	SlotFullDay SlotType = "fullday"
	// SlotMorning covers the morning hours.
	SlotMorning SlotType = "morning"
	// SlotAfternoon covers the afternoon hours.
	SlotAfternoon SlotType = "afternoon"
	// SlotEvening covers the evening hours.
	SlotEvening SlotType = "evening"
)

// slotOrder fixes the deterministic walk order for slots on the same date.
// Longer slots come first so hour budgets fill with the fewest entries.
var slotOrder = []SlotType{SlotFullDay, SlotMorning, SlotAfternoon, SlotEvening}

// slotHours assigns each slot type its fixed duration in hours.
var slotHours = map[SlotType]int{
	SlotFullDay:   10,
	SlotMorning:   4,
	SlotAfternoon: 4,
	SlotEvening:   3,
}

// SlotDuration returns the fixed duration in hours for a slot type, or zero
// for unknown types.
func SlotDuration(slot SlotType) int {
	return slotHours[slot]
}

// KnownSlotType reports whether the given name is a recognised slot type.
func KnownSlotType(slot SlotType) bool {
	_, ok := slotHours[slot]
	return ok
}

// SlotSet is the set of slots a user declared free on one date.
type SlotSet map[SlotType]bool

// NewSlotSet builds a set from the provided slot types.
func NewSlotSet(slots ...SlotType) SlotSet {
	set := make(SlotSet, len(slots))
	for _, slot := range slots {
		set[slot] = true
	}
	return set
}

// Has reports whether the set contains the slot.
func (s SlotSet) Has(slot SlotType) bool {
	return s[slot]
}

// Empty reports whether no slot is set.
func (s SlotSet) Empty() bool {
	for _, ok := range s {
		if ok {
			return false
		}
	}
	return true
}

// Merge ORs the other set into the receiver and returns the receiver.
func (s SlotSet) Merge(other SlotSet) SlotSet {
	for slot, ok := range other {
		if ok {
			s[slot] = true
		}
	}
	return s
}

// Clone returns an independent copy of the set.
func (s SlotSet) Clone() SlotSet {
	out := make(SlotSet, len(s))
	for slot, ok := range s {
		if ok {
			out[slot] = true
		}
	}
	return out
}

// Types returns the contained slot types in deterministic order.
func (s SlotSet) Types() []SlotType {
	out := make([]SlotType, 0, len(s))
	for _, slot := range slotOrder {
		if s[slot] {
			out = append(out, slot)
		}
	}
	return out
}

// RequirementKind tags the requirement variant an event carries.
type RequirementKind string

const (
	// RequirementConsecutiveDays asks for N consecutive commonly available days.
	RequirementConsecutiveDays RequirementKind = "consecutive_days"
	// RequirementFlexibleDays asks for any N commonly available days.
	RequirementFlexibleDays RequirementKind = "flexible_days"
	// RequirementHourBudget asks for accumulated slot hours meeting a budget.
	RequirementHourBudget RequirementKind = "hour_budget"
)

// KnownRequirementKind reports whether the tag is a recognised variant.
func KnownRequirementKind(kind RequirementKind) bool {
	switch kind {
	case RequirementConsecutiveDays, RequirementFlexibleDays, RequirementHourBudget:
		return true
	}
	return false
}

// Requirement is the tagged variant describing how much shared time an event
// needs. Days applies to the day based kinds, Hours and AllowedSlotTypes to
// the hour budget kind. An empty AllowedSlotTypes list allows any slot.
type Requirement struct {
	Kind             RequirementKind
	Days             int
	Hours            int
	AllowedSlotTypes []SlotType
}

// EventStatus enumerates the lifecycle states of an event.
type EventStatus string

const (
	// StatusOpen marks an event still collecting participants and availability.
	StatusOpen EventStatus = "open"
	// StatusMatched marks an event whose requirement has been satisfied.
	StatusMatched EventStatus = "matched"
	// StatusCancelled marks an event withdrawn by its creator.
	StatusCancelled EventStatus = "cancelled"
	// StatusExpired marks an event whose deadline passed unmatched.
	StatusExpired EventStatus = "expired"
)

// KnownEventStatus reports whether the value is a recognised status.
func KnownEventStatus(status EventStatus) bool {
	switch status {
	case StatusOpen, StatusMatched, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// MatchedSlot is one element of a matched result: a date for day based
// requirements, a date plus slot (with its fixed hours) for hour budgets.
type MatchedSlot struct {
	Date  time.Time `json:"date"`
	Slot  SlotType  `json:"slot,omitempty"`
	Hours int       `json:"hours,omitempty"`
}

// Event is the minimal projection of an event the engine evaluates.
type Event struct {
	ID              string
	Status          EventStatus
	Participants    []string
	MinParticipants int
	Requirement     Requirement
	Deadline        *time.Time
	PeriodStart     time.Time
	PeriodEnd       time.Time
	MatchedResult   []MatchedSlot
}

// Snapshot carries the availability relevant to one evaluation, keyed by
// participant ID and then by canonical date key. A missing entry means the
// participant is unavailable that day.
type Snapshot map[string]map[string]SlotSet

// Decision is the outcome of one evaluation. NextStatus is empty when the
// event should stay as it is.
type Decision struct {
	EventID    string
	Matched    bool
	Reason     string
	Result     []MatchedSlot
	NextStatus EventStatus
}
