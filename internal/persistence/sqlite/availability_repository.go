package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/example/group-matcher/internal/dates"
	"github.com/example/group-matcher/internal/matching"
	"github.com/example/group-matcher/internal/persistence"
)

// SetAvailability bulk-writes the slots for every given date in one
// transaction. Merge mode ORs into existing rows, replace mode overwrites.
func (s *Storage) SetAvailability(ctx context.Context, userID string, days []time.Time, slots matching.SlotSet, mode persistence.WriteMode) error {
	if userID == "" || !persistence.KnownWriteMode(mode) {
		return persistence.ErrConstraintViolation
	}
	if len(days) == 0 {
		return nil
	}

	now := encodeTime(s.now())

	return s.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		for _, day := range days {
			dateKey := encodeDate(dates.Normalize(day))

			stored := slots
			if mode == persistence.WriteModeMerge {
				var existing sql.NullString
				err := tx.QueryRow(
					"SELECT slots FROM availability WHERE user_id = ? AND date = ?",
					userID, dateKey,
				).Scan(&existing)
				if err != nil && err != sql.ErrNoRows {
					return mapError(err)
				}
				if existing.Valid {
					stored = decodeSlotSet(existing.String).Merge(slots)
				}
			}

			_, err := tx.Exec(`
				INSERT INTO availability (user_id, date, slots, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?)
				ON CONFLICT (user_id, date)
				DO UPDATE SET slots = excluded.slots, updated_at = excluded.updated_at
			`, userID, dateKey, encodeSlotSet(stored), now, now)
			if err != nil {
				return mapError(err)
			}
		}
		return nil
	})
}

// GetByUser returns every record of the user ordered by date.
func (s *Storage) GetByUser(ctx context.Context, userID string) ([]persistence.AvailabilityRecord, error) {
	return s.listAvailability(ctx, `
		SELECT user_id, date, slots, created_at, updated_at
		FROM availability
		WHERE user_id = ?
		ORDER BY date ASC
	`, userID)
}

// GetByUserInRange returns the user's records within [start, end] inclusive.
func (s *Storage) GetByUserInRange(ctx context.Context, userID string, start, end time.Time) ([]persistence.AvailabilityRecord, error) {
	return s.listAvailability(ctx, `
		SELECT user_id, date, slots, created_at, updated_at
		FROM availability
		WHERE user_id = ? AND date >= ? AND date <= ?
		ORDER BY date ASC
	`, userID, encodeDate(dates.Normalize(start)), encodeDate(dates.Normalize(end)))
}

// GetByUsersInRange bulk-fetches records for several users within a window.
func (s *Storage) GetByUsersInRange(ctx context.Context, userIDs []string, start, end time.Time) ([]persistence.AvailabilityRecord, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(userIDs))
	args := make([]any, 0, len(userIDs)+2)
	for i, userID := range userIDs {
		placeholders[i] = "?"
		args = append(args, userID)
	}
	args = append(args, encodeDate(dates.Normalize(start)), encodeDate(dates.Normalize(end)))

	query := fmt.Sprintf(`
		SELECT user_id, date, slots, created_at, updated_at
		FROM availability
		WHERE user_id IN (%s) AND date >= ? AND date <= ?
		ORDER BY user_id ASC, date ASC
	`, strings.Join(placeholders, ","))

	return s.listAvailability(ctx, query, args...)
}

// Reset deletes the user's records for the given dates, or all of them when
// no dates are given.
func (s *Storage) Reset(ctx context.Context, userID string, days []time.Time) error {
	return s.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		if len(days) == 0 {
			_, err := tx.Exec("DELETE FROM availability WHERE user_id = ?", userID)
			return mapError(err)
		}
		for _, day := range days {
			if _, err := tx.Exec(
				"DELETE FROM availability WHERE user_id = ? AND date = ?",
				userID, encodeDate(dates.Normalize(day)),
			); err != nil {
				return mapError(err)
			}
		}
		return nil
	})
}

func (s *Storage) listAvailability(ctx context.Context, query string, args ...any) ([]persistence.AvailabilityRecord, error) {
	rows, err := s.pool.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var records []persistence.AvailabilityRecord
	for rows.Next() {
		var record persistence.AvailabilityRecord
		var dateStr, slotsStr, createdAtStr, updatedAtStr string

		if err := rows.Scan(&record.UserID, &dateStr, &slotsStr, &createdAtStr, &updatedAtStr); err != nil {
			return nil, mapError(err)
		}

		if record.Date, err = decodeDate(dateStr); err != nil {
			return nil, err
		}
		record.Slots = decodeSlotSet(slotsStr)
		if record.CreatedAt, err = decodeTime(createdAtStr); err != nil {
			return nil, err
		}
		if record.UpdatedAt, err = decodeTime(updatedAtStr); err != nil {
			return nil, err
		}

		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return records, nil
}
