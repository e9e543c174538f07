package util

import (
	"strconv"
	"testing"
	"time"
)

func TestParseTimeDate(t *testing.T) {
	got, ok := ParseTime("2024-01-02")
	if !ok {
		t.Fatalf("expected ok")
	}
	if !got.Equal(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected time %v", got)
	}
}

func TestParseTimeRFC3339(t *testing.T) {
	s := "2024-10-10T10:10:10Z"
	got, ok := ParseTime(s)
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.UTC().Format(time.RFC3339) != s {
		t.Fatalf("unexpected time %v", got)
	}
}

func TestParseTimeUnix(t *testing.T) {
	ts := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC).Unix()
	got, ok := ParseTime(strconv.FormatInt(ts, 10))
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.Unix() != ts {
		t.Fatalf("unexpected unix %v", got.Unix())
	}
}

func TestParseTimeDefault(t *testing.T) {
	def := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC)
	if got := ParseTimeDefault("garbage", def); !got.Equal(def) {
		t.Fatalf("expected default")
	}
}

func TestWindowStart(t *testing.T) {
	now := time.Date(2024, 3, 31, 12, 0, 0, 0, time.UTC)
	if WindowStart(now, nil) != nil {
		t.Fatalf("nil period should mean full history")
	}
	days := 30
	got := WindowStart(now, &days)
	if got == nil || !got.Equal(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected window start %v", got)
	}
}

func TestWithinDays(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	if !WithinDays(now.AddDate(0, 0, -730), now, 730) {
		t.Fatalf("boundary should be inside the window")
	}
	if WithinDays(now.AddDate(0, 0, -731), now, 730) {
		t.Fatalf("731 days ago should be outside the window")
	}
}

func TestParseInt64s(t *testing.T) {
	got, err := ParseInt64s(" 1, 2,,55 ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 3 || got[2] != 55 {
		t.Fatalf("unexpected ids %v", got)
	}
	if _, err := ParseInt64s("1,x"); err == nil {
		t.Fatalf("expected error")
	}
}
