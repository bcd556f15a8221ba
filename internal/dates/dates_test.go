package dates

import (
	"testing"
	"time"
)

func TestNormalizeTruncatesToMidnightUTC(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("JST", 9*60*60)
	stamp := time.Date(2025, time.January, 21, 3, 30, 0, 0, loc)

	got := Normalize(stamp)
	want := time.Date(2025, time.January, 20, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestKeyAndParseRoundTrip(t *testing.T) {
	t.Parallel()

	day := time.Date(2025, time.January, 21, 0, 0, 0, 0, time.UTC)
	key := Key(day)
	if key != "2025-01-21" {
		t.Fatalf("expected 2025-01-21, got %s", key)
	}

	parsed, err := Parse(key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !parsed.Equal(day) {
		t.Fatalf("expected %v, got %v", day, parsed)
	}
}

func TestParseRejectsMalformedInput(t *testing.T) {
	t.Parallel()

	if _, err := Parse("21-01-2025"); err == nil {
		t.Fatal("expected error for malformed date")
	}
}

func TestRangeIsInclusive(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, time.January, 20, 10, 0, 0, 0, time.UTC)
	end := time.Date(2025, time.January, 22, 1, 0, 0, 0, time.UTC)

	days := Range(start, end)
	if len(days) != 3 {
		t.Fatalf("expected 3 days, got %d", len(days))
	}
	if Key(days[0]) != "2025-01-20" || Key(days[2]) != "2025-01-22" {
		t.Fatalf("unexpected bounds: %s .. %s", Key(days[0]), Key(days[2]))
	}
}

func TestRangeInvertedYieldsNil(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, time.January, 22, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, time.January, 20, 0, 0, 0, 0, time.UTC)

	if days := Range(start, end); days != nil {
		t.Fatalf("expected nil, got %d days", len(days))
	}
}

func TestConsecutiveAcrossMonthBoundary(t *testing.T) {
	t.Parallel()

	jan31 := time.Date(2025, time.January, 31, 0, 0, 0, 0, time.UTC)
	feb1 := time.Date(2025, time.February, 1, 0, 0, 0, 0, time.UTC)

	if !Consecutive(jan31, feb1) {
		t.Fatal("expected Jan 31 -> Feb 1 to be consecutive")
	}
	if Consecutive(feb1, jan31) {
		t.Fatal("expected reversed order to not be consecutive")
	}
}

func TestWithinComparesCalendarDays(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, time.January, 20, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, time.January, 25, 0, 0, 0, 0, time.UTC)

	inside := time.Date(2025, time.January, 25, 23, 0, 0, 0, time.UTC)
	if !Within(inside, start, end) {
		t.Fatal("expected end-day timestamp to be within range")
	}

	outside := time.Date(2025, time.January, 26, 0, 0, 0, 0, time.UTC)
	if Within(outside, start, end) {
		t.Fatal("expected next day to be outside range")
	}
}
