package timeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/stuartshay/stay-timeline/internal/calendar"
)

// ErrRangeTooLong is returned when a requested range spans more years than
// the caller allows
var ErrRangeTooLong = errors.New("range too long")

// CheckSpan validates a requested date range. It fails with ErrInvalidRange
// when start is after end and with ErrRangeTooLong when [start, end] covers
// more than maxYears years. maxYears <= 0 disables the length check.
func CheckSpan(start, end time.Time, maxYears int) error {
	start, end = calendar.Day(start), calendar.Day(end)
	if start.After(end) {
		return fmt.Errorf("%w: start %s is after end %s", ErrInvalidRange, calendar.Format(start), calendar.Format(end))
	}
	if maxYears > 0 && !end.Before(start.AddDate(maxYears, 0, 0)) {
		return fmt.Errorf("%w: %s..%s exceeds %d years", ErrRangeTooLong, calendar.Format(start), calendar.Format(end), maxYears)
	}
	return nil
}

// CheckYears is CheckSpan for an inclusive range of calendar years
func CheckYears(startYear, endYear, maxYears int) error {
	if startYear > endYear {
		return fmt.Errorf("%w: start year %d is after end year %d", ErrInvalidRange, startYear, endYear)
	}
	if maxYears > 0 && endYear-startYear+1 > maxYears {
		return fmt.Errorf("%w: %d..%d exceeds %d years", ErrRangeTooLong, startYear, endYear, maxYears)
	}
	return nil
}
