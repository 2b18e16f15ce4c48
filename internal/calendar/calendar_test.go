package calendar

import (
	"testing"
	"time"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 12, 0, 0, 0, time.UTC)
}

func TestIsUSOpen(t *testing.T) {
	cases := []struct {
		name string
		date time.Time
		want bool
	}{
		{"regular tuesday", day(2026, time.March, 3), true},
		{"saturday", day(2026, time.March, 7), false},
		{"new year", day(2026, time.January, 1), false},
		{"independence day", day(2025, time.July, 4), false},
		{"mlk day third monday", day(2026, time.January, 19), false},
		{"presidents day", day(2026, time.February, 16), false},
		{"good friday 2026", day(2026, time.April, 3), false},
		{"memorial day", day(2026, time.May, 25), false},
		{"labor day", day(2026, time.September, 7), false},
		{"thanksgiving", day(2026, time.November, 26), false},
		{"christmas", day(2026, time.December, 25), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsUSOpen(tc.date); got != tc.want {
				t.Errorf("IsUSOpen(%s) = %v, want %v", tc.date.Format("2006-01-02"), got, tc.want)
			}
		})
	}
}

func TestIsEuropeOpen(t *testing.T) {
	cases := []struct {
		name string
		date time.Time
		want bool
	}{
		{"regular wednesday", day(2026, time.March, 4), true},
		{"easter monday 2026", day(2026, time.April, 6), false},
		{"good friday 2026", day(2026, time.April, 3), false},
		{"labour day", day(2026, time.May, 1), false},
		{"july fourth trades in europe", day(2025, time.July, 4), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsEuropeOpen(tc.date); got != tc.want {
				t.Errorf("IsEuropeOpen(%s) = %v, want %v", tc.date.Format("2006-01-02"), got, tc.want)
			}
		})
	}
}

func TestOpenMarkets(t *testing.T) {
	// 2025-07-04 为周五：美国休市，欧洲与亚洲照常交易。
	markets := OpenMarkets(day(2025, time.July, 4))
	if len(markets) != 2 {
		t.Fatalf("expected 2 open markets, got %v", markets)
	}
	for _, m := range markets {
		if m == "US (NYSE, NASDAQ)" {
			t.Errorf("US must be closed on July 4th")
		}
	}

	if got := OpenMarkets(day(2026, time.March, 7)); len(got) != 0 {
		t.Errorf("expected no open markets on saturday, got %v", got)
	}
}
