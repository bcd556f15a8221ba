// Package matching holds the pure decision logic that determines whether the
// declared availability of an event's participants satisfies its requirement.
// The engine never touches storage; callers hand it an event projection and an
// availability snapshot and commit whatever transition the decision names.
package matching

import (
	"fmt"
	"time"

	"github.com/example/group-matcher/internal/dates"
)

const (
	// ReasonMatched is the reason attached to every successful decision.
	ReasonMatched = "Successfully matched"
	// ReasonDeadlinePassed is the reason for events past their deadline.
	ReasonDeadlinePassed = "deadline passed"
	// ReasonNoCommonDates is the reason when day based requirements find no
	// qualifying run of commonly available dates.
	ReasonNoCommonDates = "no common available dates"
	// ReasonInsufficientHours is the reason when the period window cannot
	// cover the requested hour budget.
	ReasonInsufficientHours = "insufficient hours available"
	// ReasonCancelled is the reason reported for cancelled events.
	ReasonCancelled = "event cancelled"
)

// CommonAvailability is the intermediate result of the availability scan:
// the dates on which every participant has at least one qualifying slot, and
// the (date, slot) pairs every participant shares, both in chronological and
// deterministic slot order.
type CommonAvailability struct {
	Dates []time.Time
	Slots []DateSlot
}

// DateSlot identifies one slot on one date.
type DateSlot struct {
	Date time.Time
	Slot SlotType
}

// Evaluate decides whether the event's requirement is satisfied by the
// snapshot. Non-open events short-circuit to their recorded outcome so
// re-running a decided event is a no-op. The returned decision carries the
// status transition to commit, if any; Evaluate itself never mutates.
func Evaluate(event Event, snapshot Snapshot, now time.Time) Decision {
	decision := Decision{EventID: event.ID}

	switch event.Status {
	case StatusMatched:
		decision.Matched = true
		decision.Reason = ReasonMatched
		decision.Result = cloneResult(event.MatchedResult)
		return decision
	case StatusExpired:
		decision.Reason = ReasonDeadlinePassed
		return decision
	case StatusCancelled:
		decision.Reason = ReasonCancelled
		return decision
	}

	if event.Deadline != nil && now.After(*event.Deadline) {
		decision.Reason = ReasonDeadlinePassed
		decision.NextStatus = StatusExpired
		return decision
	}

	if len(event.Participants) == 0 || len(event.Participants) < event.MinParticipants {
		decision.Reason = fmt.Sprintf("insufficient participants: %d/%d", len(event.Participants), event.MinParticipants)
		return decision
	}

	common := FindAvailableSlots(event, snapshot)

	switch event.Requirement.Kind {
	case RequirementConsecutiveDays:
		return decideConsecutiveDays(decision, event.Requirement.Days, common.Dates)
	case RequirementFlexibleDays:
		return decideFlexibleDays(decision, event.Requirement.Days, common.Dates)
	case RequirementHourBudget:
		return decideHourBudget(decision, event.Requirement.Hours, common.Slots)
	default:
		decision.Reason = fmt.Sprintf("unknown requirement kind: %s", event.Requirement.Kind)
		return decision
	}
}

// FindAvailableSlots scans the event's period window and reports, for every
// date, whether all current participants declared a qualifying slot. A
// participant without a record for a date is unavailable that date. The scan
// is brute force over window days and participants; both are small.
func FindAvailableSlots(event Event, snapshot Snapshot) CommonAvailability {
	common := CommonAvailability{}
	if len(event.Participants) == 0 {
		return common
	}

	allowed := allowedSlots(event.Requirement.AllowedSlotTypes)

	for _, day := range dates.Range(event.PeriodStart, event.PeriodEnd) {
		key := dates.Key(day)

		dateCommon := true
		for _, participant := range event.Participants {
			if !hasQualifyingSlot(snapshot[participant][key], allowed) {
				dateCommon = false
				break
			}
		}
		if dateCommon {
			common.Dates = append(common.Dates, day)
		}

		for _, slot := range slotOrder {
			if allowed != nil && !allowed[slot] {
				continue
			}
			shared := true
			for _, participant := range event.Participants {
				if !snapshot[participant][key].Has(slot) {
					shared = false
					break
				}
			}
			if shared {
				common.Slots = append(common.Slots, DateSlot{Date: day, Slot: slot})
			}
		}
	}

	return common
}

func decideConsecutiveDays(decision Decision, count int, candidates []time.Time) Decision {
	if count <= 0 {
		count = 1
	}

	// First maximal run of length >= count wins; later or longer runs are
	// not considered.
	runStart := 0
	for i := 1; i <= len(candidates); i++ {
		if i < len(candidates) && dates.Consecutive(candidates[i-1], candidates[i]) {
			continue
		}
		if i-runStart >= count {
			return matchedDays(decision, candidates[runStart:runStart+count])
		}
		runStart = i
	}

	decision.Reason = ReasonNoCommonDates
	return decision
}

func decideFlexibleDays(decision Decision, count int, candidates []time.Time) Decision {
	if count <= 0 {
		count = 1
	}
	if len(candidates) < count {
		decision.Reason = ReasonNoCommonDates
		return decision
	}
	return matchedDays(decision, candidates[:count])
}

func decideHourBudget(decision Decision, hours int, candidates []DateSlot) Decision {
	if hours <= 0 {
		hours = 1
	}

	total := 0
	selected := make([]MatchedSlot, 0, len(candidates))
	for _, candidate := range candidates {
		duration := SlotDuration(candidate.Slot)
		if duration <= 0 {
			continue
		}
		selected = append(selected, MatchedSlot{
			Date:  candidate.Date,
			Slot:  candidate.Slot,
			Hours: duration,
		})
		total += duration
		if total >= hours {
			decision.Matched = true
			decision.Reason = ReasonMatched
			decision.Result = selected
			decision.NextStatus = StatusMatched
			return decision
		}
	}

	decision.Reason = ReasonInsufficientHours
	return decision
}

func matchedDays(decision Decision, days []time.Time) Decision {
	result := make([]MatchedSlot, len(days))
	for i, day := range days {
		result[i] = MatchedSlot{Date: day}
	}
	decision.Matched = true
	decision.Reason = ReasonMatched
	decision.Result = result
	decision.NextStatus = StatusMatched
	return decision
}

// allowedSlots converts a requirement's allow list into a lookup set; nil
// means any slot qualifies.
func allowedSlots(types []SlotType) SlotSet {
	if len(types) == 0 {
		return nil
	}
	return NewSlotSet(types...)
}

func hasQualifyingSlot(slots SlotSet, allowed SlotSet) bool {
	if len(slots) == 0 {
		return false
	}
	if allowed == nil {
		return !slots.Empty()
	}
	for slot := range allowed {
		if slots.Has(slot) {
			return true
		}
	}
	return false
}

func cloneResult(result []MatchedSlot) []MatchedSlot {
	if len(result) == 0 {
		return nil
	}
	out := make([]MatchedSlot, len(result))
	copy(out, result)
	return out
}
