package util

import "time"

// NextWeekday returns the first date on or after t that falls on wd.
func NextWeekday(t time.Time, wd time.Weekday) time.Time {
	delta := (int(wd) - int(t.Weekday()) + 7) % 7
	return t.AddDate(0, 0, delta)
}

// IsWeekend reports whether t falls on a Saturday or Sunday.
func IsWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// Weekdays returns every Monday-Friday date in [start, end]. There is no
// holiday calendar.
func Weekdays(start, end time.Time) []time.Time {
	var days []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if !IsWeekend(d) {
			days = append(days, d)
		}
	}
	return days
}
