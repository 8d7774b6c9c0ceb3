package validate

import (
	"strings"
	"testing"
	"time"
)

func TestChannelID(t *testing.T) {
	t.Parallel()
	tests := []struct {
		id   string
		want bool
	}{
		{"-1001234567890", true},
		{"@acm_updates", true},
		{"@Abcde", true},
		{"@a2345", false}, // must start with a letter
		{"abc", false},
		{"-99123", false},
		{"@a", false},
		{"@" + strings.Repeat("a", 33), false},
		{"@" + strings.Repeat("a", 32), true},
		{"-100123456789", false},  // nine digits after -100
		{"-10012345678901", false}, // eleven digits after -100
		{"-100123456789x", false},
		{"", false},
		{"@with space", false},
	}
	for _, tt := range tests {
		if got := ChannelID(tt.id); got != tt.want {
			t.Errorf("ChannelID(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}

func TestUserID(t *testing.T) {
	t.Parallel()
	tests := []struct {
		id   string
		want bool
	}{
		{"1", true},
		{"123456789", true},
		{"9999999999", true},
		{"10000000000", false},
		{"0", false},
		{"-5", false},
		{"12ab", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := UserID(tt.id); got != tt.want {
			t.Errorf("UserID(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}

func TestParseScheduleTimeLayouts(t *testing.T) {
	t.Parallel()
	loc := time.UTC
	now := time.Date(2026, 8, 21, 12, 0, 0, 0, loc)

	tests := []struct {
		text string
		want time.Time
	}{
		{"2026-12-01 18:30:15", time.Date(2026, 12, 1, 18, 30, 15, 0, loc)},
		{"2026-12-01 18:30", time.Date(2026, 12, 1, 18, 30, 0, 0, loc)},
		{"01.12.2026 18:30:15", time.Date(2026, 12, 1, 18, 30, 15, 0, loc)},
		{"01.12.2026 18:30", time.Date(2026, 12, 1, 18, 30, 0, 0, loc)},
		{"  2026-12-01 18:30  ", time.Date(2026, 12, 1, 18, 30, 0, 0, loc)},
	}
	for _, tt := range tests {
		got, ok := ParseScheduleTime(tt.text, now, loc)
		if !ok {
			t.Fatalf("ParseScheduleTime(%q) not ok", tt.text)
		}
		if !got.Equal(tt.want) {
			t.Errorf("ParseScheduleTime(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestParseScheduleTimeBareClock(t *testing.T) {
	t.Parallel()
	loc := time.UTC

	// Still in the future today: resolves to today.
	now := time.Date(2026, 8, 21, 23, 58, 30, 0, loc)
	got, ok := ParseScheduleTime("23:59", now, loc)
	if !ok {
		t.Fatal("ParseScheduleTime(23:59) not ok")
	}
	want := time.Date(2026, 8, 21, 23, 59, 0, 0, loc)
	if !got.Equal(want) {
		t.Errorf("got %v, want %v (same day)", got, want)
	}

	// Already past for today: rolls to tomorrow.
	now = time.Date(2026, 8, 21, 23, 59, 30, 0, loc)
	got, ok = ParseScheduleTime("23:59", now, loc)
	if !ok {
		t.Fatal("ParseScheduleTime(23:59) not ok")
	}
	want = time.Date(2026, 8, 22, 23, 59, 0, 0, loc)
	if !got.Equal(want) {
		t.Errorf("got %v, want %v (next day)", got, want)
	}

	// Exactly now is not strictly future: rolls over.
	now = time.Date(2026, 8, 21, 23, 59, 0, 0, loc)
	got, _ = ParseScheduleTime("23:59", now, loc)
	if !got.Equal(want) {
		t.Errorf("got %v, want %v (boundary rolls over)", got, want)
	}
}

func TestParseScheduleTimeRejects(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 8, 21, 12, 0, 0, 0, time.UTC)
	for _, text := range []string{"", "tomorrow", "25:00", "12-01-2026 18:30", "18h30"} {
		if _, ok := ParseScheduleTime(text, now, time.UTC); ok {
			t.Errorf("ParseScheduleTime(%q) ok, want reject", text)
		}
	}
}
