// Package stays holds the ordered, validated collection of lodging stay
// records that every timeline is derived from.
package stays

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/stuartshay/stay-timeline/internal/calendar"
)

// ErrInvalidRecord is returned when a stay record fails validation
var ErrInvalidRecord = errors.New("invalid stay record")

// Record is a single hotel/travel stay. The stay occupies the Nights
// calendar days ending the day before CheckoutDate.
type Record struct {
	CheckoutDate time.Time
	Nights       int
	CityID       string
	MetroID      string
	Purpose      string
}

// FirstMorning returns the earliest day occupied by the stay
func (r Record) FirstMorning() time.Time {
	return calendar.AddDays(r.CheckoutDate, -r.Nights)
}

// LastMorning returns the latest day occupied by the stay
func (r Record) LastMorning() time.Time {
	return calendar.AddDays(r.CheckoutDate, -1)
}

// Mornings returns every day occupied by the stay in ascending order
func (r Record) Mornings() []time.Time {
	return calendar.Range(r.FirstMorning(), r.LastMorning())
}

// Morning is one day away from home attributed to a stay
type Morning struct {
	Date time.Time
	// Index is the position of the owning record in the store
	Index  int
	Record Record
}

// Store is an immutable collection of records sorted by checkout date.
// Records sharing a checkout date keep their original relative order.
type Store struct {
	records []Record
}

// NewStore validates, normalizes and sorts records
func NewStore(records []Record) (*Store, error) {
	normalized := make([]Record, len(records))
	for i, r := range records {
		if r.Nights < 1 {
			return nil, fmt.Errorf("%w: row %d: nights must be >= 1, got %d", ErrInvalidRecord, i, r.Nights)
		}
		if r.CheckoutDate.IsZero() {
			return nil, fmt.Errorf("%w: row %d: missing checkout date", ErrInvalidRecord, i)
		}
		r.CityID = strings.ToUpper(strings.TrimSpace(r.CityID))
		if r.CityID == "" {
			return nil, fmt.Errorf("%w: row %d: missing city id", ErrInvalidRecord, i)
		}
		r.MetroID = strings.ToUpper(strings.TrimSpace(r.MetroID))
		r.Purpose = strings.TrimSpace(r.Purpose)
		r.CheckoutDate = calendar.Day(r.CheckoutDate)
		normalized[i] = r
	}

	sort.SliceStable(normalized, func(i, j int) bool {
		return normalized[i].CheckoutDate.Before(normalized[j].CheckoutDate)
	})

	return &Store{records: normalized}, nil
}

// Len returns the number of records
func (s *Store) Len() int { return len(s.records) }

// Records returns a copy of the sorted records
func (s *Store) Records() []Record {
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// FirstMorning returns the earliest occupied day across all stays
func (s *Store) FirstMorning() (time.Time, bool) {
	if len(s.records) == 0 {
		return time.Time{}, false
	}
	first := s.records[0].FirstMorning()
	for _, r := range s.records[1:] {
		if fm := r.FirstMorning(); fm.Before(first) {
			first = fm
		}
	}
	return first, true
}

// LastMorning returns the latest occupied day across all stays
func (s *Store) LastMorning() (time.Time, bool) {
	if len(s.records) == 0 {
		return time.Time{}, false
	}
	return s.records[len(s.records)-1].LastMorning(), true
}

// Mornings returns one entry per occupied day per record, in store order.
// A day claimed by more than one record appears once for each.
func (s *Store) Mornings() []Morning {
	var out []Morning
	for i, r := range s.records {
		for _, d := range r.Mornings() {
			out = append(out, Morning{Date: d, Index: i, Record: r})
		}
	}
	return out
}

// Overlapping returns the records whose occupied days intersect
// [start, end]
func (s *Store) Overlapping(start, end time.Time) []Record {
	start, end = calendar.Day(start), calendar.Day(end)
	var out []Record
	for _, r := range s.records {
		if r.LastMorning().Before(start) || r.FirstMorning().After(end) {
			continue
		}
		out = append(out, r)
	}
	return out
}
