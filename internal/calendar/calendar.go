// Package calendar provides calendar-date helpers. All dates are represented
// as time.Time values truncated to midnight UTC so they can be compared with
// == and used as map keys.
package calendar

import (
	"fmt"
	"time"
)

// Layout is the date layout used for parsing and formatting (YYYY-MM-DD)
const Layout = "2006-01-02"

const secondsPerDay = 24 * 60 * 60

// Date returns midnight UTC of the given calendar date
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// Day truncates t to its calendar date, keeping the wall-clock date of t
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return Date(y, m, d)
}

// Parse parses a YYYY-MM-DD string
func Parse(s string) (time.Time, error) {
	t, err := time.Parse(Layout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

// Format formats a date as YYYY-MM-DD
func Format(t time.Time) string {
	return t.Format(Layout)
}

// AddDays returns the date n days after t (n may be negative)
func AddDays(t time.Time, n int) time.Time {
	return t.AddDate(0, 0, n)
}

// DaysBetween returns the number of days from start to end. It is negative
// when end is before start. Unix seconds are used because time.Duration
// overflows for spans longer than about 292 years.
func DaysBetween(start, end time.Time) int {
	return int((Day(end).Unix() - Day(start).Unix()) / secondsPerDay)
}

// Range returns every date from start through end inclusive. It returns nil
// when end is before start.
func Range(start, end time.Time) []time.Time {
	start, end = Day(start), Day(end)
	if end.Before(start) {
		return nil
	}

	days := make([]time.Time, 0, DaysBetween(start, end)+1)
	for d := start; !d.After(end); d = AddDays(d, 1) {
		days = append(days, d)
	}
	return days
}

// IsLeap reports whether year is a leap year
func IsLeap(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

// YearBounds returns January 1 and December 31 of year
func YearBounds(year int) (time.Time, time.Time) {
	return Date(year, time.January, 1), Date(year, time.December, 31)
}
