// Package sqlite implements the persistence repositories on SQLite via
// modernc.org/sqlite. The schema lives in embedded migrations; see migrate.go.
package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/example/group-matcher/internal/matching"
)

// Storage implements persistence.EventRepository and
// persistence.AvailabilityRepository backed by a single SQLite database.
type Storage struct {
	pool *ConnectionPool
	now  func() time.Time
}

// Open opens (or creates) the database behind the DSN and verifies the
// connection. Callers must run Migrate before using the repositories.
func Open(dsn string) (*Storage, error) {
	pool, err := NewConnectionPool(dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(context.Background()); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}
	return &Storage{pool: pool, now: time.Now}, nil
}

// Close releases the underlying database handle.
func (s *Storage) Close() error {
	return s.pool.Close()
}

// SetNowFunc overrides the timestamp source. Intended for tests.
func (s *Storage) SetNowFunc(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// --- column codecs ---

const dateColumnFormat = "2006-01-02"

func encodeDate(t time.Time) string {
	return t.UTC().Format(dateColumnFormat)
}

func decodeDate(value string) (time.Time, error) {
	t, err := time.Parse(dateColumnFormat, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse date column %q: %w", value, err)
	}
	return t, nil
}

func encodeTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func decodeTime(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp column %q: %w", value, err)
	}
	return t, nil
}

// encodeSlotSet renders a slot set as a comma separated list in deterministic
// order.
func encodeSlotSet(slots matching.SlotSet) string {
	types := slots.Types()
	names := make([]string, len(types))
	for i, slot := range types {
		names[i] = string(slot)
	}
	return strings.Join(names, ",")
}

func decodeSlotSet(value string) matching.SlotSet {
	set := matching.SlotSet{}
	for _, name := range strings.Split(value, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		set[matching.SlotType(name)] = true
	}
	return set
}

func encodeSlotTypes(types []matching.SlotType) string {
	names := make([]string, len(types))
	for i, slot := range types {
		names[i] = string(slot)
	}
	return strings.Join(names, ",")
}

func decodeSlotTypes(value string) []matching.SlotType {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	types := make([]matching.SlotType, 0, len(parts))
	for _, name := range parts {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		types = append(types, matching.SlotType(name))
	}
	return types
}

func encodeMatchedResult(result []matching.MatchedSlot) (string, error) {
	if len(result) == 0 {
		return "", nil
	}
	data, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("failed to encode matched result: %w", err)
	}
	return string(data), nil
}

func decodeMatchedResult(value string) ([]matching.MatchedSlot, error) {
	if value == "" {
		return nil, nil
	}
	var result []matching.MatchedSlot
	if err := json.Unmarshal([]byte(value), &result); err != nil {
		return nil, fmt.Errorf("failed to decode matched result: %w", err)
	}
	return result, nil
}
