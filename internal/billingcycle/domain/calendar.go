package domain

import "time"

// CalendarDate truncates t to local midnight in loc. Billing dates are
// compared as calendar days in one reference zone, never as instants.
func CalendarDate(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// CompareDates returns -1, 0 or 1 as a's calendar day is before, equal to or after b's.
func CompareDates(a, b time.Time, loc *time.Location) int {
	return CalendarDate(a, loc).Compare(CalendarDate(b, loc))
}

func SameDay(a, b time.Time, loc *time.Location) bool {
	return CompareDates(a, b, loc) == 0
}

// Advance moves date forward by cycleDays calendar days.
func Advance(date time.Time, cycleDays int, loc *time.Location) time.Time {
	return CalendarDate(date, loc).AddDate(0, 0, cycleDays)
}
