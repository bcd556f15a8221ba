package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/example/group-matcher/internal/dates"
	"github.com/example/group-matcher/internal/matching"
	"github.com/example/group-matcher/internal/persistence"
)

// MatchService is the lifecycle controller. Every mutation that can change a
// match outcome funnels into CheckEvent, which evaluates the event under an
// exclusive per-event scope and commits the resulting transition. Decided
// events never move again.
type MatchService struct {
	events       persistence.EventRepository
	availability persistence.AvailabilityRepository
	logger       *slog.Logger
	now          func() time.Time
	locks        keyedMutex
}

// NewMatchService wires the controller's dependencies.
func NewMatchService(events persistence.EventRepository, availability persistence.AvailabilityRepository, logger *slog.Logger, now func() time.Time) *MatchService {
	if now == nil {
		now = time.Now
	}
	return &MatchService{
		events:       events,
		availability: availability,
		logger:       defaultLogger(logger),
		now:          now,
	}
}

// CheckEvent loads the event, evaluates its requirement against the current
// availability of its participants and commits the status transition the
// decision names. The read, decision and write happen under the event's
// exclusive scope, so concurrent checks of the same event serialize.
func (s *MatchService) CheckEvent(ctx context.Context, eventID string) (matching.Decision, error) {
	if s == nil {
		return matching.Decision{}, fmt.Errorf("MatchService is nil")
	}
	logger := serviceLogger(ctx, s.logger, "match", "check_event", "event_id", eventID)

	release := s.locks.acquire(eventID)
	defer release()

	record, err := s.events.GetEvent(ctx, eventID)
	if err != nil {
		return matching.Decision{}, mapRepoError(err)
	}

	snapshot, err := s.snapshotFor(ctx, record)
	if err != nil {
		return matching.Decision{}, err
	}

	decision := matching.Evaluate(matchingEvent(record), snapshot, s.now())
	if decision.NextStatus == "" {
		logger.Debug("event unchanged", "status", record.Status, "reason", decision.Reason)
		return decision, nil
	}

	err = s.events.UpdateStatus(ctx, eventID, decision.NextStatus, decision.Result)
	if errors.Is(err, persistence.ErrInvalidTransition) {
		// Lost a commit race; the stored outcome stands.
		current, getErr := s.events.GetEvent(ctx, eventID)
		if getErr != nil {
			return matching.Decision{}, mapRepoError(getErr)
		}
		return matching.Evaluate(matchingEvent(current), nil, s.now()), nil
	}
	if err != nil {
		return matching.Decision{}, err
	}

	logger.Info("event transitioned", "status", decision.NextStatus, "reason", decision.Reason)
	return decision, nil
}

// snapshotFor bulk-loads the availability of the event's participants over its
// period window. Decided events and events without participants short-circuit
// in the engine, so no snapshot is needed for them.
func (s *MatchService) snapshotFor(ctx context.Context, record persistence.Event) (matching.Snapshot, error) {
	if record.Status != matching.StatusOpen || len(record.Participants) == 0 {
		return nil, nil
	}
	records, err := s.availability.GetByUsersInRange(ctx, record.Participants, record.PeriodStart, record.PeriodEnd)
	if err != nil {
		return nil, err
	}
	return snapshotFromRecords(records), nil
}

func snapshotFromRecords(records []persistence.AvailabilityRecord) matching.Snapshot {
	snapshot := make(matching.Snapshot)
	for _, record := range records {
		byDate := snapshot[record.UserID]
		if byDate == nil {
			byDate = make(map[string]matching.SlotSet)
			snapshot[record.UserID] = byDate
		}
		byDate[dates.Key(record.Date)] = record.Slots
	}
	return snapshot
}

// OnAvailabilityChanged re-checks every open event the user participates in
// whose period window touches one of the changed dates. An empty date list
// re-checks all of the user's open events. Individual check failures do not
// stop the remaining events from being checked.
func (s *MatchService) OnAvailabilityChanged(ctx context.Context, userID string, days []time.Time) (int, error) {
	if s == nil {
		return 0, fmt.Errorf("MatchService is nil")
	}
	logger := serviceLogger(ctx, s.logger, "match", "on_availability_changed", "user_id", userID)

	events, err := s.events.ListEventsByParticipant(ctx, userID)
	if err != nil {
		return 0, err
	}

	checked := 0
	var errs []error
	for _, event := range events {
		if event.Status != matching.StatusOpen {
			continue
		}
		if !periodTouches(event, days) {
			continue
		}
		if _, err := s.CheckEvent(ctx, event.ID); err != nil {
			logger.Error("event check failed", "event_id", event.ID, "error", err, "error_kind", ErrorKind(err))
			errs = append(errs, fmt.Errorf("event %s: %w", event.ID, err))
			continue
		}
		checked++
	}
	return checked, errors.Join(errs...)
}

func periodTouches(event persistence.Event, days []time.Time) bool {
	if len(days) == 0 {
		return true
	}
	for _, day := range days {
		if dates.Within(day, event.PeriodStart, event.PeriodEnd) {
			return true
		}
	}
	return false
}

// Cancel commits the cancelled state for an open event. The caller is expected
// to have authorized the request already.
func (s *MatchService) Cancel(ctx context.Context, eventID string) error {
	if s == nil {
		return fmt.Errorf("MatchService is nil")
	}
	logger := serviceLogger(ctx, s.logger, "match", "cancel", "event_id", eventID)

	release := s.locks.acquire(eventID)
	defer release()

	err := s.events.UpdateStatus(ctx, eventID, matching.StatusCancelled, nil)
	if errors.Is(err, persistence.ErrInvalidTransition) {
		return ErrEventClosed
	}
	if err != nil {
		return mapRepoError(err)
	}
	logger.Info("event cancelled")
	return nil
}

// Sweep expires every open event whose deadline lies behind the current time,
// then re-checks the remaining open events so nothing matchable is left
// waiting on a missed trigger. It returns the number of events that expired.
func (s *MatchService) Sweep(ctx context.Context) (int, error) {
	if s == nil {
		return 0, fmt.Errorf("MatchService is nil")
	}
	logger := serviceLogger(ctx, s.logger, "match", "sweep")

	candidates, err := s.events.ListExpiredCandidates(ctx, s.now())
	if err != nil {
		return 0, err
	}

	expired := 0
	var errs []error
	for _, event := range candidates {
		decision, err := s.CheckEvent(ctx, event.ID)
		if err != nil {
			logger.Error("sweep check failed", "event_id", event.ID, "error", err, "error_kind", ErrorKind(err))
			errs = append(errs, fmt.Errorf("event %s: %w", event.ID, err))
			continue
		}
		if decision.NextStatus == matching.StatusExpired {
			expired++
		}
	}
	if expired > 0 {
		logger.Info("sweep expired events", "count", expired)
	}

	open, err := s.events.ListEventsByStatus(ctx, matching.StatusOpen)
	if err != nil {
		errs = append(errs, err)
		return expired, errors.Join(errs...)
	}
	for _, event := range open {
		if _, err := s.CheckEvent(ctx, event.ID); err != nil {
			logger.Error("sweep check failed", "event_id", event.ID, "error", err, "error_kind", ErrorKind(err))
			errs = append(errs, fmt.Errorf("event %s: %w", event.ID, err))
		}
	}

	return expired, errors.Join(errs...)
}

// Run drives periodic sweeps until the context is cancelled.
func (s *MatchService) Run(ctx context.Context, interval time.Duration) {
	if s == nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger := serviceLogger(ctx, s.logger, "match", "run", "interval", interval.String())
	logger.Info("sweep loop started")

	for {
		select {
		case <-ctx.Done():
			logger.Info("sweep loop stopped")
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				logger.Error("sweep failed", "error", err, "error_kind", ErrorKind(err))
			}
		}
	}
}

// Stats reports event counts grouped by lifecycle status.
func (s *MatchService) Stats(ctx context.Context) (map[matching.EventStatus]int, error) {
	if s == nil {
		return nil, fmt.Errorf("MatchService is nil")
	}
	return s.events.CountEventsByStatus(ctx)
}

func mapRepoError(err error) error {
	if errors.Is(err, persistence.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

// keyedMutex hands out one mutex per event ID so evaluation and commit of the
// same event serialize while distinct events proceed concurrently. Entries are
// reference counted and dropped once unused.
type keyedMutex struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) acquire(key string) func() {
	k.mu.Lock()
	if k.entries == nil {
		k.entries = make(map[string]*lockEntry)
	}
	entry := k.entries[key]
	if entry == nil {
		entry = &lockEntry{}
		k.entries[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.entries, key)
		}
		k.mu.Unlock()
	}
}
