// Package dates provides calendar-day helpers shared by the matching engine
// and the stores. All dates are normalised to midnight UTC so that a calendar
// day has exactly one canonical representation.
package dates

import (
	"fmt"
	"time"
)

// ISO is the canonical textual form of a calendar date.
const ISO = "2006-01-02"

// Normalize truncates a timestamp to midnight UTC of its calendar day.
func Normalize(t time.Time) time.Time {
	utc := t.UTC()
	return time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC)
}

// Key renders a timestamp as its canonical calendar-date key.
func Key(t time.Time) string {
	return Normalize(t).Format(ISO)
}

// Parse converts a canonical date key back into a normalised date.
func Parse(value string) (time.Time, error) {
	t, err := time.Parse(ISO, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("dates: invalid date %q: %w", value, err)
	}
	return t, nil
}

// Range enumerates every calendar day from start through end inclusive, in
// ascending order. An inverted range yields nil.
func Range(start, end time.Time) []time.Time {
	first := Normalize(start)
	last := Normalize(end)
	if last.Before(first) {
		return nil
	}

	days := make([]time.Time, 0, int(last.Sub(first).Hours()/24)+1)
	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		days = append(days, day)
	}
	return days
}

// Consecutive reports whether next is exactly the calendar day after prev.
func Consecutive(prev, next time.Time) bool {
	return Normalize(prev).AddDate(0, 0, 1).Equal(Normalize(next))
}

// Within reports whether the day of t lies inside [start, end] inclusive,
// comparing calendar days only.
func Within(t, start, end time.Time) bool {
	day := Normalize(t)
	return !day.Before(Normalize(start)) && !day.After(Normalize(end))
}
