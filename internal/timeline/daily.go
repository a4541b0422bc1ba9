// Package timeline reconstructs where the traveler woke up on every day of a
// date range and turns that into a gap-free day-by-day distance series.
package timeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/stuartshay/stay-timeline/internal/calendar"
	"github.com/stuartshay/stay-timeline/internal/location"
	"github.com/stuartshay/stay-timeline/internal/stays"
)

// ErrInvalidRange is returned when a range starts after it ends
var ErrInvalidRange = errors.New("invalid date range")

// DayError identifies the day and location code a failure belongs to
type DayError struct {
	Date time.Time
	Code string
	Err  error
}

func (e *DayError) Error() string {
	return fmt.Sprintf("%s (%s): %v", calendar.Format(e.Date), e.Code, e.Err)
}

func (e *DayError) Unwrap() error { return e.Err }

// MalformedPolicy decides what happens to stays whose location code cannot
// be parsed
type MalformedPolicy int

const (
	// PolicyAbort fails the whole resolution
	PolicyAbort MalformedPolicy = iota
	// PolicySkip drops the stay; its days fall back to home
	PolicySkip
)

// ParsePolicy parses "abort" or "skip"
func ParsePolicy(s string) (MalformedPolicy, error) {
	switch s {
	case "", "abort":
		return PolicyAbort, nil
	case "skip":
		return PolicySkip, nil
	default:
		return PolicyAbort, fmt.Errorf("unknown malformed-code policy %q", s)
	}
}

func (p MalformedPolicy) String() string {
	switch p {
	case PolicyAbort:
		return "abort"
	case PolicySkip:
		return "skip"
	default:
		return fmt.Sprintf("MalformedPolicy(%d)", int(p))
	}
}

// DailyLocation is where the traveler was on the morning of Date. Stay is
// nil for days at home.
type DailyLocation struct {
	Date time.Time
	Code location.Code
	Stay *stays.Record
}

// Overlap records two stays claiming the same morning. The stay later in
// checkout order wins.
type Overlap struct {
	Date     time.Time
	Previous string
	Winner   string
}

// SkippedStay is a stay dropped under PolicySkip
type SkippedStay struct {
	Record stays.Record
	Err    error
}

// Resolution is the output of DayResolver.Resolve
type Resolution struct {
	Days     []DailyLocation
	Overlaps []Overlap
	Skipped  []SkippedStay
}

// DayResolver expands stay records into one location per day
type DayResolver struct {
	parser *location.Parser
	policy MalformedPolicy
	logger zerolog.Logger
}

// NewDayResolver creates a resolver using parser for location codes
func NewDayResolver(parser *location.Parser, policy MalformedPolicy, logger zerolog.Logger) *DayResolver {
	return &DayResolver{parser: parser, policy: policy, logger: logger}
}

type claim struct {
	code   location.Code
	record *stays.Record
}

// Resolve returns exactly one DailyLocation per day in [start, end],
// ascending by date. Stays are clipped to the range and unclaimed days are
// home.
func (r *DayResolver) Resolve(store *stays.Store, start, end time.Time) (*Resolution, error) {
	start, end = calendar.Day(start), calendar.Day(end)
	if start.After(end) {
		return nil, fmt.Errorf("%w: start %s is after end %s", ErrInvalidRange, calendar.Format(start), calendar.Format(end))
	}

	n := calendar.DaysBetween(start, end) + 1
	claims := make([]*claim, n)
	res := &Resolution{}

	for _, rec := range store.Overlapping(start, end) {
		code, err := r.parser.Parse(rec.CityID)
		if err != nil {
			first := rec.FirstMorning()
			if first.Before(start) {
				first = start
			}
			if r.policy == PolicyAbort {
				return nil, &DayError{Date: first, Code: rec.CityID, Err: err}
			}
			r.logger.Warn().
				Err(err).
				Str("city_id", rec.CityID).
				Str("checkout_date", calendar.Format(rec.CheckoutDate)).
				Msg("Skipping stay with malformed location code")
			res.Skipped = append(res.Skipped, SkippedStay{Record: rec, Err: err})
			continue
		}

		for _, day := range rec.Mornings() {
			i := calendar.DaysBetween(start, day)
			if i < 0 || i >= n {
				continue
			}
			if prev := claims[i]; prev != nil {
				overlap := Overlap{Date: day, Previous: prev.code.String(), Winner: code.String()}
				res.Overlaps = append(res.Overlaps, overlap)
				r.logger.Warn().
					Str("date", calendar.Format(day)).
					Str("previous", overlap.Previous).
					Str("winner", overlap.Winner).
					Msg("Overlapping stays resolved")
			}
			claims[i] = &claim{code: code, record: &rec}
		}
	}

	home := r.parser.Home()
	res.Days = make([]DailyLocation, n)
	for i := range claims {
		day := calendar.AddDays(start, i)
		if c := claims[i]; c != nil {
			res.Days[i] = DailyLocation{Date: day, Code: c.code, Stay: c.record}
			continue
		}
		res.Days[i] = DailyLocation{Date: day, Code: home}
	}

	return res, nil
}
