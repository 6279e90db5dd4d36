// Package timeutil provides UTC day-bucket utilities for daily leaderboards.
// Daily views are keyed by the UTC calendar day regardless of where players
// or serving processes are located, so every helper here works in UTC.
// No external dependencies - uses only standard library.
package timeutil

import (
	"fmt"
	"time"
)

// DayKeyLayout is the layout used for daily leaderboard bucket keys.
const DayKeyLayout = "20060102"

// DayKey returns the daily bucket key (YYYYMMDD) for the given time in UTC.
func DayKey(t time.Time) string {
	return t.UTC().Format(DayKeyLayout)
}

// TodayKey returns the daily bucket key for the current UTC day.
func TodayKey() string {
	return DayKey(time.Now())
}

// ParseDayKey parses a YYYYMMDD bucket key back into a UTC midnight time.
func ParseDayKey(key string) (time.Time, error) {
	t, err := time.ParseInLocation(DayKeyLayout, key, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("timeutil: invalid day key %q: %w", key, err)
	}
	return t, nil
}

// StartOfDay returns the start of the UTC day (00:00:00) containing t.
func StartOfDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// EndOfDay returns the last instant of the UTC day containing t.
func EndOfDay(t time.Time) time.Time {
	return StartOfDay(t).Add(24*time.Hour - time.Nanosecond)
}

// UntilEndOfDay returns how long remains in the UTC day containing t.
// Useful for choosing a TTL that expires a daily bucket at midnight.
func UntilEndOfDay(t time.Time) time.Duration {
	return StartOfDay(t).Add(24 * time.Hour).Sub(t.UTC())
}

// SameDay reports whether a and b fall on the same UTC calendar day.
func SameDay(a, b time.Time) bool {
	au, bu := a.UTC(), b.UTC()
	return au.Year() == bu.Year() && au.YearDay() == bu.YearDay()
}
