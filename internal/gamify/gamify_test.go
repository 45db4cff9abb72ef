package gamify

import (
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
)

func day(s string) time.Time {
	t, err := time.ParseInLocation("2006-01-02", s, time.UTC)
	if err != nil {
		panic(err)
	}
	return t
}

func TestDayKey(t *testing.T) {
	assert.Equal(t, "2024-01-02", DayKey(day("2024-01-02")))

	// Local-time instants normalize to the UTC calendar day.
	loc := time.FixedZone("UTC+13", 13*3600)
	late := time.Date(2024, 1, 3, 1, 30, 0, 0, loc) // still Jan 2 in UTC
	assert.Equal(t, "2024-01-02", DayKey(late))
}

func TestParseDayKey(t *testing.T) {
	_, err := ParseDayKey("2024-01-02")
	assert.Equal(t, err, nil)

	for _, bad := range []string{"01/02/2024", "2024-1-2", "2024-01-02T00:00:00Z", "yesterday"} {
		_, err := ParseDayKey(bad)
		assert.NotEqual(t, err, nil)
	}
}

func TestStreak(t *testing.T) {
	today := day("2024-01-02")

	// Both days done.
	history := map[string]bool{"2024-01-01": true, "2024-01-02": true}
	assert.Equal(t, 2, Streak(history, today))

	// Toggling today off leaves yesterday's streak intact: the day isn't
	// over yet.
	history = map[string]bool{"2024-01-01": true}
	assert.Equal(t, 1, Streak(history, today))

	// A gap before yesterday breaks it.
	history = map[string]bool{"2023-12-30": true, "2024-01-01": true}
	assert.Equal(t, 1, Streak(history, today))

	// Explicit false behaves like absent.
	history = map[string]bool{"2024-01-01": true, "2024-01-02": false}
	assert.Equal(t, 1, Streak(history, today))

	assert.Equal(t, 0, Streak(map[string]bool{}, today))

	long := map[string]bool{}
	d := day("2024-01-02")
	for i := 0; i < 30; i++ {
		long[DayKey(d)] = true
		d = d.AddDate(0, 0, -1)
	}
	assert.Equal(t, 30, Streak(long, today))
}

func TestLevelThresholds(t *testing.T) {
	cases := []struct {
		xp    int
		level int
	}{
		{0, 1},
		{99, 1},
		{100, 2},
		{399, 2},
		{400, 3},
		{899, 3},
		{900, 4},
		{-5, 1},
	}
	for _, c := range cases {
		assert.Equal(t, c.level, Level(c.xp))
	}
}

func TestLevelProgress(t *testing.T) {
	assert.Equal(t, 0.0, LevelProgress(0))
	assert.Equal(t, 0.5, LevelProgress(50))  // halfway through level 1
	assert.Equal(t, 0.0, LevelProgress(100)) // fresh level 2

	p := LevelProgress(399)
	if p < 0.99 || p >= 1.0 {
		t.Fatalf("LevelProgress(399) = %v, want just under 1", p)
	}
}

func TestChallengeProgress(t *testing.T) {
	start := day("2024-03-01")
	today := day("2024-03-02") // two elapsed days

	history := map[string][]string{
		"2024-03-01": {"a", "b"},
		"2024-03-02": {"a"},
	}
	// 3 of 4 possible action completions over 2 days x 2 actions.
	assert.Equal(t, 0.75, ChallengeProgress(history, 2, start, today))

	// Days outside the window contribute nothing.
	history["2024-02-28"] = []string{"a", "b"}
	assert.Equal(t, 0.75, ChallengeProgress(history, 2, start, today))

	assert.Equal(t, 0.0, ChallengeProgress(nil, 0, start, today))
	assert.Equal(t, 0.0, ChallengeProgress(history, 2, today.AddDate(0, 0, 5), today))
}

func TestSortedDayKeys(t *testing.T) {
	history := map[string]bool{"2024-01-03": true, "2024-01-01": true, "2024-01-02": false}
	assert.Equal(t, []string{"2024-01-01", "2024-01-02", "2024-01-03"}, SortedDayKeys(history))
}
