package marketdata

import "time"

// Calendar answers trading-day questions. Weekends and fixed-date US market
// holidays produce no calculation dates; observed shifts (Saturday -> Friday,
// Sunday -> Monday) follow NYSE convention.
type Calendar struct{}

// NewCalendar creates a new trading calendar
func NewCalendar() *Calendar {
	return &Calendar{}
}

// IsTradingDay reports whether t is a trading day
func (c *Calendar) IsTradingDay(t time.Time) bool {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return !c.isHoliday(t)
}

// TradingDaysBetween returns all trading days in [start, end], oldest first.
func (c *Calendar) TradingDaysBetween(start, end time.Time) []time.Time {
	var days []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if c.IsTradingDay(d) {
			days = append(days, d)
		}
	}
	return days
}

// PreviousTradingDay returns the last trading day strictly before t
func (c *Calendar) PreviousTradingDay(t time.Time) time.Time {
	d := t.AddDate(0, 0, -1)
	for !c.IsTradingDay(d) {
		d = d.AddDate(0, 0, -1)
	}
	return d
}

// isHoliday checks fixed-date holidays with weekend observation shifts.
// Floating holidays (Thanksgiving, MLK, Presidents Day, Memorial Day,
// Labor Day) are derived from weekday rules.
func (c *Calendar) isHoliday(t time.Time) bool {
	month, day := t.Month(), t.Day()

	// Fixed-date holidays, observed on the nearest weekday
	fixed := [][2]int{
		{int(time.January), 1},  // New Year's Day
		{int(time.June), 19},    // Juneteenth
		{int(time.July), 4},     // Independence Day
		{int(time.December), 25}, // Christmas
	}
	for _, h := range fixed {
		if c.observedMatches(t, time.Month(h[0]), h[1]) {
			return true
		}
	}

	switch {
	case month == time.January && nthWeekday(t, 3, time.Monday): // MLK Day
		return true
	case month == time.February && nthWeekday(t, 3, time.Monday): // Presidents Day
		return true
	case month == time.May && lastWeekday(t, time.Monday): // Memorial Day
		return true
	case month == time.September && nthWeekday(t, 1, time.Monday): // Labor Day
		return true
	case month == time.November && nthWeekday(t, 4, time.Thursday): // Thanksgiving
		return true
	}

	_ = day
	return false
}

// observedMatches reports whether t is the observed date of the holiday at
// month/day: the Friday before when it falls on Saturday, the Monday after
// when it falls on Sunday.
func (c *Calendar) observedMatches(t time.Time, month time.Month, day int) bool {
	holiday := time.Date(t.Year(), month, day, 0, 0, 0, 0, t.Location())
	observed := holiday
	switch holiday.Weekday() {
	case time.Saturday:
		observed = holiday.AddDate(0, 0, -1)
	case time.Sunday:
		observed = holiday.AddDate(0, 0, 1)
	}
	return t.Month() == observed.Month() && t.Day() == observed.Day()
}

// nthWeekday reports whether t is the nth given weekday of its month
func nthWeekday(t time.Time, n int, weekday time.Weekday) bool {
	if t.Weekday() != weekday {
		return false
	}
	return (t.Day()-1)/7 == n-1
}

// lastWeekday reports whether t is the last given weekday of its month
func lastWeekday(t time.Time, weekday time.Weekday) bool {
	if t.Weekday() != weekday {
		return false
	}
	return t.AddDate(0, 0, 7).Month() != t.Month()
}
