// Package gamify holds the date arithmetic and XP math behind the habit and
// challenge stats endpoints and the user level surface. Day keys are
// UTC-normalized YYYY-MM-DD strings everywhere; the server never keys history
// by local time.
package gamify

import (
	"fmt"
	"sort"
	"time"
)

const dayKeyLayout = "2006-01-02"

// DayKey returns t's UTC calendar day as YYYY-MM-DD.
func DayKey(t time.Time) string {
	return t.UTC().Format(dayKeyLayout)
}

// ParseDayKey validates a history map key.
func ParseDayKey(key string) (time.Time, error) {
	t, err := time.ParseInLocation(dayKeyLayout, key, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad day key %q: want YYYY-MM-DD", key)
	}
	return t, nil
}

// Streak counts contiguous trailing completed days, walking backward from
// today. A missing or false entry for today does not break the streak; the
// day simply isn't finished yet, so counting starts at yesterday in that
// case.
func Streak(history map[string]bool, today time.Time) int {
	day := today.UTC().Truncate(24 * time.Hour)
	if !history[DayKey(day)] {
		day = day.AddDate(0, 0, -1)
	}

	streak := 0
	for history[DayKey(day)] {
		streak++
		day = day.AddDate(0, 0, -1)
	}
	return streak
}

// CompletedDays returns the number of days marked true.
func CompletedDays(history map[string]bool) int {
	n := 0
	for _, done := range history {
		if done {
			n++
		}
	}
	return n
}

// Level thresholds are quadratic: reaching level n takes 100*n^2 XP, so
// level 1 starts at 0, level 2 at 100, level 3 at 400, level 4 at 900.
func Level(xp int) int {
	if xp < 0 {
		xp = 0
	}
	level := 1
	for xp >= 100*level*level {
		level++
	}
	return level
}

// LevelProgress reports progress within the current level as [0, 1).
func LevelProgress(xp int) float64 {
	if xp < 0 {
		xp = 0
	}
	level := Level(xp)
	floor := 100 * (level - 1) * (level - 1)
	ceil := 100 * level * level
	return float64(xp-floor) / float64(ceil-floor)
}

// ChallengeProgress is the fraction of the challenge's daily actions
// completed over the days elapsed so far, in [0, 1]. Days outside
// [start, today] contribute nothing; a challenge with no actions or no
// elapsed days reports 0.
func ChallengeProgress(history map[string][]string, actions int, start, today time.Time) float64 {
	if actions == 0 {
		return 0
	}
	startDay := start.UTC().Truncate(24 * time.Hour)
	endDay := today.UTC().Truncate(24 * time.Hour)
	if endDay.Before(startDay) {
		return 0
	}
	days := int(endDay.Sub(startDay).Hours()/24) + 1

	completed := 0
	for key, ids := range history {
		day, err := ParseDayKey(key)
		if err != nil || day.Before(startDay) || day.After(endDay) {
			continue
		}
		if len(ids) > actions {
			completed += actions
		} else {
			completed += len(ids)
		}
	}
	return float64(completed) / float64(days*actions)
}

// SortedDayKeys returns history keys ascending, for deterministic output.
func SortedDayKeys[V any](history map[string]V) []string {
	keys := make([]string, 0, len(history))
	for k := range history {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
