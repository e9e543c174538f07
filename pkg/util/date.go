package util

import (
	"strconv"
	"time"
)

const DateLayout = "2006-01-02"

// ParseTime accepts YYYY-MM-DD, RFC3339 (with or without nanos) and unix seconds.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		return time.Unix(ts, 0).UTC(), true
	}
	return time.Time{}, false
}

// ParseTimeDefault parses time or returns def if empty/invalid.
func ParseTimeDefault(s string, def time.Time) time.Time {
	if t, ok := ParseTime(s); ok {
		return t
	}
	return def
}

// Day truncates t to midnight UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// WindowStart returns the exclusive lower bound of a trailing window of
// days ending at now, or nil when days is nil (full history).
func WindowStart(now time.Time, days *int) *time.Time {
	if days == nil {
		return nil
	}
	start := now.AddDate(0, 0, -*days)
	return &start
}

// WithinDays reports whether t is no older than days before now.
func WithinDays(t, now time.Time, days int) bool {
	return !t.Before(now.AddDate(0, 0, -days))
}
