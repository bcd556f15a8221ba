package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/group-matcher/internal/dates"
	"github.com/example/group-matcher/internal/matching"
	"github.com/example/group-matcher/internal/persistence"
)

// AvailabilityService validates and persists availability declarations and
// triggers re-evaluation of the events the writes can affect.
type AvailabilityService struct {
	availability persistence.AvailabilityRepository
	matcher      *MatchService
	logger       *slog.Logger
	now          func() time.Time
}

// NewAvailabilityService wires dependencies for availability operations.
func NewAvailabilityService(availability persistence.AvailabilityRepository, matcher *MatchService, logger *slog.Logger, now func() time.Time) *AvailabilityService {
	if now == nil {
		now = time.Now
	}
	return &AvailabilityService{
		availability: availability,
		matcher:      matcher,
		logger:       defaultLogger(logger),
		now:          now,
	}
}

// SetAvailability writes the given slots for every given date. The write mode
// must be chosen explicitly; merging ORs the slots into existing records while
// replacing overwrites them.
func (s *AvailabilityService) SetAvailability(ctx context.Context, input SetAvailabilityInput) error {
	if s == nil {
		return fmt.Errorf("AvailabilityService is nil")
	}
	logger := serviceLogger(ctx, s.logger, "availability", "set_availability", "user_id", input.UserID)

	vErr := &ValidationError{}
	if input.UserID == "" {
		vErr.add("user_id", "user is required")
	}
	if len(input.Days) == 0 {
		vErr.add("days", "at least one date is required")
	}
	if len(input.Slots) == 0 {
		vErr.add("slots", "at least one slot is required")
	}
	for _, slot := range input.Slots {
		if !matching.KnownSlotType(slot) {
			vErr.add("slots", fmt.Sprintf("unknown slot type: %s", slot))
		}
	}
	if !persistence.KnownWriteMode(input.Mode) {
		vErr.add("mode", "must be merge or replace")
	}
	if vErr.HasErrors() {
		return vErr
	}

	days := normalizeDays(input.Days)
	if err := s.availability.SetAvailability(ctx, input.UserID, days, matching.NewSlotSet(input.Slots...), input.Mode); err != nil {
		return err
	}
	logger.Info("availability written", "days", len(days), "mode", string(input.Mode))

	return s.recheck(ctx, logger, input.UserID, days)
}

// ResetAvailability deletes the user's records for the given dates; an empty
// list deletes all of them.
func (s *AvailabilityService) ResetAvailability(ctx context.Context, userID string, days []time.Time) error {
	if s == nil {
		return fmt.Errorf("AvailabilityService is nil")
	}
	logger := serviceLogger(ctx, s.logger, "availability", "reset_availability", "user_id", userID)

	if userID == "" {
		vErr := &ValidationError{}
		vErr.add("user_id", "user is required")
		return vErr
	}

	days = normalizeDays(days)
	if err := s.availability.Reset(ctx, userID, days); err != nil {
		return err
	}
	logger.Info("availability reset", "days", len(days))

	return s.recheck(ctx, logger, userID, days)
}

// GetAvailability returns every availability record of the user in date order.
func (s *AvailabilityService) GetAvailability(ctx context.Context, userID string) ([]DayAvailability, error) {
	if s == nil {
		return nil, fmt.Errorf("AvailabilityService is nil")
	}
	records, err := s.availability.GetByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return availabilityFromRecords(records), nil
}

// GetAvailabilityInRange returns the user's records within the inclusive date range.
func (s *AvailabilityService) GetAvailabilityInRange(ctx context.Context, userID string, start, end time.Time) ([]DayAvailability, error) {
	if s == nil {
		return nil, fmt.Errorf("AvailabilityService is nil")
	}
	records, err := s.availability.GetByUserInRange(ctx, userID, dates.Normalize(start), dates.Normalize(end))
	if err != nil {
		return nil, err
	}
	return availabilityFromRecords(records), nil
}

func (s *AvailabilityService) recheck(ctx context.Context, logger *slog.Logger, userID string, days []time.Time) error {
	if s.matcher == nil {
		return nil
	}
	checked, err := s.matcher.OnAvailabilityChanged(ctx, userID, days)
	if err != nil {
		return err
	}
	if checked > 0 {
		logger.Info("events re-checked", "count", checked)
	}
	return nil
}

// normalizeDays truncates each date to its canonical midnight and drops
// duplicates while keeping the caller's order.
func normalizeDays(days []time.Time) []time.Time {
	if len(days) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(days))
	out := make([]time.Time, 0, len(days))
	for _, day := range days {
		normalized := dates.Normalize(day)
		key := dates.Key(normalized)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, normalized)
	}
	return out
}
