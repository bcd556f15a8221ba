package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/group-matcher/internal/matching"
	"github.com/example/group-matcher/internal/persistence"
)

const eventColumns = `
	id, creator_id, requirement_kind, requirement_days, requirement_hours,
	allowed_slot_types, min_participants, max_participants, deadline,
	period_start, period_end, status, matched_result, created_at, updated_at
`

// CreateEvent inserts a new event with its participants.
func (s *Storage) CreateEvent(ctx context.Context, event persistence.Event) error {
	if event.ID == "" {
		return persistence.ErrConstraintViolation
	}

	now := s.now().UTC()
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}
	if event.UpdatedAt.IsZero() {
		event.UpdatedAt = event.CreatedAt
	}

	matchedResult, err := encodeMatchedResult(event.MatchedResult)
	if err != nil {
		return err
	}

	return s.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO events (`+eventColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			event.ID,
			event.CreatorID,
			string(event.Requirement.Kind),
			event.Requirement.Days,
			event.Requirement.Hours,
			nullableString(encodeSlotTypes(event.Requirement.AllowedSlotTypes)),
			event.MinParticipants,
			event.MaxParticipants,
			nullableTime(event.Deadline),
			encodeDate(event.PeriodStart),
			encodeDate(event.PeriodEnd),
			string(event.Status),
			nullableString(matchedResult),
			encodeTime(event.CreatedAt),
			encodeTime(event.UpdatedAt),
		)
		if err != nil {
			return mapError(err)
		}

		for _, participant := range event.Participants {
			if participant == "" || participant == event.CreatorID {
				continue
			}
			if _, err := tx.Exec(
				"INSERT OR IGNORE INTO event_participants (event_id, user_id) VALUES (?, ?)",
				event.ID, participant,
			); err != nil {
				return mapError(err)
			}
		}
		return nil
	})
}

// GetEvent retrieves an event with its participant set.
func (s *Storage) GetEvent(ctx context.Context, id string) (persistence.Event, error) {
	if id == "" {
		return persistence.Event{}, persistence.ErrNotFound
	}

	row := s.pool.DB().QueryRowContext(ctx, "SELECT"+eventColumns+"FROM events WHERE id = ?", id)
	event, err := scanEvent(row)
	if err != nil {
		return persistence.Event{}, err
	}

	participants, err := s.loadParticipants(ctx, id)
	if err != nil {
		return persistence.Event{}, err
	}
	event.Participants = participants
	return event, nil
}

// ListEventsByCreator returns events created by the given user.
func (s *Storage) ListEventsByCreator(ctx context.Context, creatorID string) ([]persistence.Event, error) {
	return s.listEvents(ctx,
		"SELECT"+eventColumns+"FROM events WHERE creator_id = ? ORDER BY created_at ASC, id ASC",
		creatorID)
}

// ListEventsByStatus returns events in the given status.
func (s *Storage) ListEventsByStatus(ctx context.Context, status matching.EventStatus) ([]persistence.Event, error) {
	return s.listEvents(ctx,
		"SELECT"+eventColumns+"FROM events WHERE status = ? ORDER BY created_at ASC, id ASC",
		string(status))
}

// ListEventsByParticipant returns events the user joined.
func (s *Storage) ListEventsByParticipant(ctx context.Context, userID string) ([]persistence.Event, error) {
	return s.listEvents(ctx, `
		SELECT`+eventColumns+`FROM events
		WHERE id IN (SELECT event_id FROM event_participants WHERE user_id = ?)
		ORDER BY created_at ASC, id ASC
	`, userID)
}

// AddParticipant appends the user unless they are the creator or already a
// participant; both cases report false without mutating.
func (s *Storage) AddParticipant(ctx context.Context, eventID, userID string) (bool, error) {
	if userID == "" {
		return false, nil
	}

	added := false
	err := s.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		var creatorID string
		var maxParticipants int
		err := tx.QueryRow("SELECT creator_id, max_participants FROM events WHERE id = ?", eventID).Scan(&creatorID, &maxParticipants)
		if err == sql.ErrNoRows {
			return persistence.ErrNotFound
		}
		if err != nil {
			return mapError(err)
		}
		if userID == creatorID {
			return nil
		}

		// Capacity is checked inside the transaction so concurrent joins
		// cannot overshoot the limit.
		if maxParticipants > 0 {
			var current int
			err := tx.QueryRow("SELECT COUNT(*) FROM event_participants WHERE event_id = ? AND user_id <> ?", eventID, userID).Scan(&current)
			if err != nil {
				return mapError(err)
			}
			if current >= maxParticipants {
				return persistence.ErrConstraintViolation
			}
		}

		result, err := tx.Exec(
			"INSERT OR IGNORE INTO event_participants (event_id, user_id) VALUES (?, ?)",
			eventID, userID,
		)
		if err != nil {
			return mapError(err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rows > 0 {
			added = true
			return s.touchEvent(tx, eventID)
		}
		return nil
	})
	return added, err
}

// RemoveParticipant drops the user from the participant set.
func (s *Storage) RemoveParticipant(ctx context.Context, eventID, userID string) (bool, error) {
	removed := false
	err := s.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRow("SELECT 1 FROM events WHERE id = ?", eventID).Scan(&exists)
		if err == sql.ErrNoRows {
			return persistence.ErrNotFound
		}
		if err != nil {
			return mapError(err)
		}

		result, err := tx.Exec(
			"DELETE FROM event_participants WHERE event_id = ? AND user_id = ?",
			eventID, userID,
		)
		if err != nil {
			return mapError(err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rows > 0 {
			removed = true
			return s.touchEvent(tx, eventID)
		}
		return nil
	})
	return removed, err
}

// UpdateStatus commits a transition out of open. The conditional write makes
// at most one concurrent caller win; losers get ErrInvalidTransition.
func (s *Storage) UpdateStatus(ctx context.Context, eventID string, status matching.EventStatus, result []matching.MatchedSlot) error {
	if !matching.KnownEventStatus(status) || status == matching.StatusOpen {
		return persistence.ErrConstraintViolation
	}
	if (status == matching.StatusMatched) != (len(result) > 0) {
		return persistence.ErrConstraintViolation
	}

	matchedResult, err := encodeMatchedResult(result)
	if err != nil {
		return err
	}

	return s.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		res, err := tx.Exec(`
			UPDATE events
			SET status = ?, matched_result = ?, updated_at = ?
			WHERE id = ? AND status = 'open'
		`,
			string(status),
			nullableString(matchedResult),
			encodeTime(s.now()),
			eventID,
		)
		if err != nil {
			return mapError(err)
		}

		rows, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rows > 0 {
			return nil
		}

		var exists int
		err = tx.QueryRow("SELECT 1 FROM events WHERE id = ?", eventID).Scan(&exists)
		if err == sql.ErrNoRows {
			return persistence.ErrNotFound
		}
		if err != nil {
			return mapError(err)
		}
		return persistence.ErrInvalidTransition
	})
}

// DeleteEvent removes the event; participants cascade via the foreign key.
func (s *Storage) DeleteEvent(ctx context.Context, id string) error {
	return s.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		result, err := tx.Exec("DELETE FROM events WHERE id = ?", id)
		if err != nil {
			return mapError(err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rows == 0 {
			return persistence.ErrNotFound
		}
		return nil
	})
}

// ListExpiredCandidates returns open events whose deadline lies before now.
func (s *Storage) ListExpiredCandidates(ctx context.Context, now time.Time) ([]persistence.Event, error) {
	return s.listEvents(ctx, `
		SELECT`+eventColumns+`FROM events
		WHERE status = 'open' AND deadline IS NOT NULL AND deadline < ?
		ORDER BY created_at ASC, id ASC
	`, encodeTime(now))
}

// CountEventsByStatus returns event counts keyed by status.
func (s *Storage) CountEventsByStatus(ctx context.Context) (map[matching.EventStatus]int, error) {
	rows, err := s.pool.DB().QueryContext(ctx, "SELECT status, COUNT(*) FROM events GROUP BY status")
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	counts := make(map[matching.EventStatus]int, 4)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, mapError(err)
		}
		counts[matching.EventStatus(status)] = count
	}
	return counts, rows.Err()
}

func (s *Storage) touchEvent(tx *sql.Tx, eventID string) error {
	_, err := tx.Exec("UPDATE events SET updated_at = ? WHERE id = ?", encodeTime(s.now()), eventID)
	return mapError(err)
}

func (s *Storage) listEvents(ctx context.Context, query string, args ...any) ([]persistence.Event, error) {
	rows, err := s.pool.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var events []persistence.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}

	for i := range events {
		participants, err := s.loadParticipants(ctx, events[i].ID)
		if err != nil {
			return nil, err
		}
		events[i].Participants = participants
	}
	return events, nil
}

func (s *Storage) loadParticipants(ctx context.Context, eventID string) ([]string, error) {
	rows, err := s.pool.DB().QueryContext(ctx,
		"SELECT user_id FROM event_participants WHERE event_id = ? ORDER BY user_id ASC",
		eventID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var participants []string
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, mapError(err)
		}
		participants = append(participants, userID)
	}
	return participants, rows.Err()
}

// rowScanner abstracts over *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (persistence.Event, error) {
	var event persistence.Event
	var kind, status, periodStartStr, periodEndStr, createdAtStr, updatedAtStr string
	var allowedTypes, deadlineStr, matchedResult sql.NullString

	err := row.Scan(
		&event.ID,
		&event.CreatorID,
		&kind,
		&event.Requirement.Days,
		&event.Requirement.Hours,
		&allowedTypes,
		&event.MinParticipants,
		&event.MaxParticipants,
		&deadlineStr,
		&periodStartStr,
		&periodEndStr,
		&status,
		&matchedResult,
		&createdAtStr,
		&updatedAtStr,
	)
	if err == sql.ErrNoRows {
		return persistence.Event{}, persistence.ErrNotFound
	}
	if err != nil {
		return persistence.Event{}, mapError(err)
	}

	event.Requirement.Kind = matching.RequirementKind(kind)
	event.Status = matching.EventStatus(status)
	if allowedTypes.Valid {
		event.Requirement.AllowedSlotTypes = decodeSlotTypes(allowedTypes.String)
	}
	if deadlineStr.Valid {
		deadline, err := decodeTime(deadlineStr.String)
		if err != nil {
			return persistence.Event{}, err
		}
		event.Deadline = &deadline
	}
	if matchedResult.Valid {
		result, err := decodeMatchedResult(matchedResult.String)
		if err != nil {
			return persistence.Event{}, err
		}
		event.MatchedResult = result
	}

	if event.PeriodStart, err = decodeDate(periodStartStr); err != nil {
		return persistence.Event{}, err
	}
	if event.PeriodEnd, err = decodeDate(periodEndStr); err != nil {
		return persistence.Event{}, err
	}
	if event.CreatedAt, err = decodeTime(createdAtStr); err != nil {
		return persistence.Event{}, err
	}
	if event.UpdatedAt, err = decodeTime(updatedAtStr); err != nil {
		return persistence.Event{}, err
	}
	return event, nil
}

func nullableString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}

func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: encodeTime(*t), Valid: true}
}
