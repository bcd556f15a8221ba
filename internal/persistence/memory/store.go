// Package memory provides an in-memory implementation of the persistence
// repositories. It backs tests and small single-process deployments; the
// sqlite package provides the durable alternative behind the same interfaces.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/example/group-matcher/internal/dates"
	"github.com/example/group-matcher/internal/matching"
	"github.com/example/group-matcher/internal/persistence"
)

// Store holds events and availability records guarded by a single RWMutex.
type Store struct {
	mu           sync.RWMutex
	events       map[string]persistence.Event
	availability map[string]map[string]persistence.AvailabilityRecord
	now          func() time.Time
}

// Option configures the store.
type Option func(*Store)

// WithNow overrides the timestamp source used for created/updated fields.
func WithNow(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore returns an empty store.
func NewStore(opts ...Option) *Store {
	store := &Store{
		events:       make(map[string]persistence.Event),
		availability: make(map[string]map[string]persistence.AvailabilityRecord),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// --- EventRepository implementation ---

// CreateEvent stores a new event.
func (s *Store) CreateEvent(ctx context.Context, event persistence.Event) error {
	if event.ID == "" {
		return persistence.ErrConstraintViolation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[event.ID]; ok {
		return persistence.ErrDuplicate
	}

	now := s.now().UTC()
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}
	if event.UpdatedAt.IsZero() {
		event.UpdatedAt = event.CreatedAt
	}
	event.Participants = withoutCreator(uniqueStrings(event.Participants), event.CreatorID)

	s.events[event.ID] = cloneEvent(event)
	return nil
}

// GetEvent retrieves an event by ID.
func (s *Store) GetEvent(ctx context.Context, id string) (persistence.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	event, ok := s.events[id]
	if !ok {
		return persistence.Event{}, persistence.ErrNotFound
	}
	return cloneEvent(event), nil
}

// ListEventsByCreator returns events created by the given user.
func (s *Store) ListEventsByCreator(ctx context.Context, creatorID string) ([]persistence.Event, error) {
	return s.listEvents(func(event persistence.Event) bool {
		return event.CreatorID == creatorID
	}), nil
}

// ListEventsByStatus returns events in the given status.
func (s *Store) ListEventsByStatus(ctx context.Context, status matching.EventStatus) ([]persistence.Event, error) {
	return s.listEvents(func(event persistence.Event) bool {
		return event.Status == status
	}), nil
}

// ListEventsByParticipant returns events the user joined.
func (s *Store) ListEventsByParticipant(ctx context.Context, userID string) ([]persistence.Event, error) {
	return s.listEvents(func(event persistence.Event) bool {
		for _, participant := range event.Participants {
			if participant == userID {
				return true
			}
		}
		return false
	}), nil
}

// AddParticipant appends the user unless they are the creator or already in.
func (s *Store) AddParticipant(ctx context.Context, eventID, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	event, ok := s.events[eventID]
	if !ok {
		return false, persistence.ErrNotFound
	}

	if userID == "" || userID == event.CreatorID {
		return false, nil
	}
	for _, participant := range event.Participants {
		if participant == userID {
			return false, nil
		}
	}
	if event.MaxParticipants > 0 && len(event.Participants) >= event.MaxParticipants {
		return false, persistence.ErrConstraintViolation
	}

	event.Participants = append(event.Participants, userID)
	event.UpdatedAt = s.now().UTC()
	s.events[eventID] = cloneEvent(event)
	return true, nil
}

// RemoveParticipant drops the user from the participant set.
func (s *Store) RemoveParticipant(ctx context.Context, eventID, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	event, ok := s.events[eventID]
	if !ok {
		return false, persistence.ErrNotFound
	}

	remaining := make([]string, 0, len(event.Participants))
	removed := false
	for _, participant := range event.Participants {
		if participant == userID {
			removed = true
			continue
		}
		remaining = append(remaining, participant)
	}
	if !removed {
		return false, nil
	}

	event.Participants = remaining
	event.UpdatedAt = s.now().UTC()
	s.events[eventID] = cloneEvent(event)
	return true, nil
}

// UpdateStatus commits a transition out of open. Decided events reject
// further writes so at most one caller wins a given transition.
func (s *Store) UpdateStatus(ctx context.Context, eventID string, status matching.EventStatus, result []matching.MatchedSlot) error {
	if !matching.KnownEventStatus(status) || status == matching.StatusOpen {
		return persistence.ErrConstraintViolation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	event, ok := s.events[eventID]
	if !ok {
		return persistence.ErrNotFound
	}
	if event.Status != matching.StatusOpen {
		return persistence.ErrInvalidTransition
	}
	if (status == matching.StatusMatched) != (len(result) > 0) {
		return persistence.ErrConstraintViolation
	}

	event.Status = status
	event.MatchedResult = cloneResult(result)
	event.UpdatedAt = s.now().UTC()
	s.events[eventID] = cloneEvent(event)
	return nil
}

// DeleteEvent removes the event together with its participation records.
func (s *Store) DeleteEvent(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[id]; !ok {
		return persistence.ErrNotFound
	}
	delete(s.events, id)
	return nil
}

// ListExpiredCandidates returns open events whose deadline lies before now.
func (s *Store) ListExpiredCandidates(ctx context.Context, now time.Time) ([]persistence.Event, error) {
	return s.listEvents(func(event persistence.Event) bool {
		return event.Status == matching.StatusOpen &&
			event.Deadline != nil &&
			now.After(*event.Deadline)
	}), nil
}

// CountEventsByStatus returns event counts keyed by status.
func (s *Store) CountEventsByStatus(ctx context.Context) (map[matching.EventStatus]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[matching.EventStatus]int, 4)
	for _, event := range s.events {
		counts[event.Status]++
	}
	return counts, nil
}

func (s *Store) listEvents(keep func(persistence.Event) bool) []persistence.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := make([]persistence.Event, 0)
	for _, event := range s.events {
		if keep(event) {
			events = append(events, cloneEvent(event))
		}
	}

	sort.Slice(events, func(i, j int) bool {
		if events[i].CreatedAt.Equal(events[j].CreatedAt) {
			return events[i].ID < events[j].ID
		}
		return events[i].CreatedAt.Before(events[j].CreatedAt)
	})
	return events
}

// --- AvailabilityRepository implementation ---

// SetAvailability writes the slots for every given date in one mode.
func (s *Store) SetAvailability(ctx context.Context, userID string, days []time.Time, slots matching.SlotSet, mode persistence.WriteMode) error {
	if userID == "" || !persistence.KnownWriteMode(mode) {
		return persistence.ErrConstraintViolation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	byDate, ok := s.availability[userID]
	if !ok {
		byDate = make(map[string]persistence.AvailabilityRecord)
		s.availability[userID] = byDate
	}

	now := s.now().UTC()
	for _, day := range days {
		normalized := dates.Normalize(day)
		key := dates.Key(normalized)

		record, exists := byDate[key]
		if !exists {
			record = persistence.AvailabilityRecord{
				UserID:    userID,
				Date:      normalized,
				Slots:     matching.SlotSet{},
				CreatedAt: now,
			}
		}

		switch mode {
		case persistence.WriteModeMerge:
			record.Slots = record.Slots.Clone().Merge(slots)
		case persistence.WriteModeReplace:
			record.Slots = slots.Clone()
		}
		record.UpdatedAt = now
		byDate[key] = record
	}

	return nil
}

// GetByUser returns every record of the user ordered by date.
func (s *Store) GetByUser(ctx context.Context, userID string) ([]persistence.AvailabilityRecord, error) {
	return s.listAvailability(userID, func(persistence.AvailabilityRecord) bool { return true }), nil
}

// GetByUserInRange returns the user's records within [start, end] inclusive.
func (s *Store) GetByUserInRange(ctx context.Context, userID string, start, end time.Time) ([]persistence.AvailabilityRecord, error) {
	return s.listAvailability(userID, func(record persistence.AvailabilityRecord) bool {
		return dates.Within(record.Date, start, end)
	}), nil
}

// GetByUsersInRange bulk-fetches records for several users within a window.
func (s *Store) GetByUsersInRange(ctx context.Context, userIDs []string, start, end time.Time) ([]persistence.AvailabilityRecord, error) {
	records := make([]persistence.AvailabilityRecord, 0)
	for _, userID := range uniqueStrings(userIDs) {
		records = append(records, s.listAvailability(userID, func(record persistence.AvailabilityRecord) bool {
			return dates.Within(record.Date, start, end)
		})...)
	}
	return records, nil
}

// Reset deletes the user's records for the given dates, or all of them when
// no dates are given.
func (s *Store) Reset(ctx context.Context, userID string, days []time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byDate, ok := s.availability[userID]
	if !ok {
		return nil
	}

	if len(days) == 0 {
		delete(s.availability, userID)
		return nil
	}

	for _, day := range days {
		delete(byDate, dates.Key(day))
	}
	if len(byDate) == 0 {
		delete(s.availability, userID)
	}
	return nil
}

func (s *Store) listAvailability(userID string, keep func(persistence.AvailabilityRecord) bool) []persistence.AvailabilityRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]persistence.AvailabilityRecord, 0)
	for _, record := range s.availability[userID] {
		if keep(record) {
			records = append(records, cloneRecord(record))
		}
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].Date.Before(records[j].Date)
	})
	return records
}

// --- Helpers ---

func cloneEvent(event persistence.Event) persistence.Event {
	out := event
	out.Participants = make([]string, len(event.Participants))
	copy(out.Participants, event.Participants)
	out.MatchedResult = cloneResult(event.MatchedResult)
	if event.Deadline != nil {
		deadline := *event.Deadline
		out.Deadline = &deadline
	}
	out.Requirement.AllowedSlotTypes = append([]matching.SlotType(nil), event.Requirement.AllowedSlotTypes...)
	return out
}

func cloneResult(result []matching.MatchedSlot) []matching.MatchedSlot {
	if len(result) == 0 {
		return nil
	}
	out := make([]matching.MatchedSlot, len(result))
	copy(out, result)
	return out
}

func cloneRecord(record persistence.AvailabilityRecord) persistence.AvailabilityRecord {
	out := record
	out.Slots = record.Slots.Clone()
	return out
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, value := range values {
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		result = append(result, value)
	}
	return result
}

func withoutCreator(values []string, creatorID string) []string {
	result := make([]string, 0, len(values))
	for _, value := range values {
		if value == creatorID {
			continue
		}
		result = append(result, value)
	}
	return result
}
