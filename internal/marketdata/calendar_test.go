package marketdata

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestIsTradingDay(t *testing.T) {
	cal := NewCalendar()

	tests := []struct {
		name string
		date time.Time
		want bool
	}{
		{"regular weekday", day(2025, time.January, 7), true},
		{"saturday", day(2025, time.January, 4), false},
		{"sunday", day(2025, time.January, 5), false},
		{"new year", day(2025, time.January, 1), false},
		{"mlk day 2025", day(2025, time.January, 20), false},
		{"presidents day 2025", day(2025, time.February, 17), false},
		{"memorial day 2025", day(2025, time.May, 26), false},
		{"juneteenth 2025", day(2025, time.June, 19), false},
		{"independence day 2025", day(2025, time.July, 4), false},
		{"labor day 2025", day(2025, time.September, 1), false},
		{"thanksgiving 2025", day(2025, time.November, 27), false},
		{"christmas 2025", day(2025, time.December, 25), false},
		// July 4 2026 falls on Saturday, observed Friday July 3
		{"observed july 4 2026", day(2026, time.July, 3), false},
		// Christmas 2027 falls on Saturday, observed Friday December 24
		{"observed christmas 2027", day(2027, time.December, 24), false},
		{"day after thanksgiving", day(2025, time.November, 28), true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, cal.IsTradingDay(tc.date))
		})
	}
}

func TestTradingDaysBetween(t *testing.T) {
	cal := NewCalendar()

	// Week of MLK day 2025: Mon Jan 20 is a holiday
	days := cal.TradingDaysBetween(day(2025, time.January, 18), day(2025, time.January, 24))
	var got []string
	for _, d := range days {
		got = append(got, d.Format(DateFormat))
	}
	assert.Equal(t, []string{"2025-01-21", "2025-01-22", "2025-01-23", "2025-01-24"}, got)
}

func TestPreviousTradingDay(t *testing.T) {
	cal := NewCalendar()

	// Monday -> previous Friday
	prev := cal.PreviousTradingDay(day(2025, time.January, 6))
	assert.Equal(t, "2025-01-03", prev.Format(DateFormat))

	// Tuesday after MLK day -> previous Friday
	prev = cal.PreviousTradingDay(day(2025, time.January, 21))
	assert.Equal(t, "2025-01-17", prev.Format(DateFormat))
}
