package tradinghours

import (
	"testing"
	"time"
)

// TestIsOpen は立会時間と週末除外を検証します。
func TestIsOpen(t *testing.T) {
	t.Parallel()

	// 2024-01-03 は水曜日
	at := func(day, hour, min int) time.Time {
		return time.Date(2024, 1, day, hour, min, 0, 0, China)
	}
	atSec := func(day, hour, min, sec int) time.Time {
		return time.Date(2024, 1, day, hour, min, sec, 0, China)
	}

	tests := []struct {
		name string
		t    time.Time
		want bool
	}{
		{name: "before morning session", t: at(3, 9, 29), want: false},
		{name: "morning open", t: at(3, 9, 30), want: true},
		{name: "last second of morning", t: atSec(3, 11, 29, 59), want: true},
		{name: "morning close exclusive", t: at(3, 11, 30), want: false},
		{name: "within closing minute", t: atSec(3, 11, 30, 59), want: false},
		{name: "lunch break", t: at(3, 12, 0), want: false},
		{name: "afternoon open", t: at(3, 13, 0), want: true},
		{name: "last second of afternoon", t: atSec(3, 14, 59, 59), want: true},
		{name: "afternoon close exclusive", t: at(3, 15, 0), want: false},
		{name: "within afternoon closing minute", t: atSec(3, 15, 0, 59), want: false},
		{name: "after close", t: at(3, 15, 1), want: false},
		{name: "saturday", t: at(6, 10, 0), want: false},
		{name: "sunday", t: at(7, 10, 0), want: false},
		{name: "utc input converted", t: time.Date(2024, 1, 3, 2, 0, 0, 0, time.UTC), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := IsOpen(tt.t); got != tt.want {
				t.Errorf("IsOpen(%v) = %v, want %v", tt.t, got, tt.want)
			}
		})
	}
}

// TestTimeUntilNextOpen は次の寄り付きまでの期間を検証します。
func TestTimeUntilNextOpen(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		now  time.Time
		want time.Duration
	}{
		{name: "during session", now: time.Date(2024, 1, 3, 10, 0, 0, 0, China), want: 0},
		{name: "early morning", now: time.Date(2024, 1, 3, 9, 0, 0, 0, China), want: 30 * time.Minute},
		{name: "lunch break", now: time.Date(2024, 1, 3, 12, 0, 0, 0, China), want: time.Hour},
		{name: "at morning close", now: time.Date(2024, 1, 3, 11, 30, 0, 0, China), want: 90 * time.Minute},
		{name: "friday evening", now: time.Date(2024, 1, 5, 16, 0, 0, 0, China), want: 65*time.Hour + 30*time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := TimeUntilNextOpen(tt.now); got != tt.want {
				t.Errorf("TimeUntilNextOpen(%v) = %v, want %v", tt.now, got, tt.want)
			}
		})
	}
}
