package domain

import "time"

// DateLayout is the day-granularity format used for due dates and daily
// aggregate keys. ISO dates compare correctly as strings, which the storage
// layer relies on.
const DateLayout = "2006-01-02"

// DateOf truncates t to its UTC calendar day. All due-date and streak
// arithmetic in the core is calendar-day arithmetic, never elapsed hours.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// AddDays returns the calendar day n days after t.
func AddDays(t time.Time, n int) time.Time {
	return DateOf(t).AddDate(0, 0, n)
}

// SameDay reports whether a and b fall on the same UTC calendar day.
func SameDay(a, b time.Time) bool {
	return DateOf(a).Equal(DateOf(b))
}
