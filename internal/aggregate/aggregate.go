// Package aggregate combines several yearly distance series into a single
// day-of-year average and per-year timelines for side-by-side comparison.
package aggregate

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/stuartshay/stay-timeline/internal/calculator"
	"github.com/stuartshay/stay-timeline/internal/calendar"
	"github.com/stuartshay/stay-timeline/internal/stays"
	"github.com/stuartshay/stay-timeline/internal/timeline"
)

// PlaceholderYear is the leap year averaged points are dated in, so that
// February 29 has somewhere to go
const PlaceholderYear = 2020

// AveragePoint is the mean distance observed on one calendar day
type AveragePoint struct {
	Date    time.Time
	Mean    float64
	Samples int
}

// Averaged is a day-of-year average series keyed by (month, day)
type Averaged struct {
	unit   calculator.Unit
	points []AveragePoint
}

// Unit returns the distance unit of the averaged values
func (a *Averaged) Unit() calculator.Unit { return a.unit }

// Len returns the number of calendar days with data
func (a *Averaged) Len() int { return len(a.points) }

// Points returns a copy of the points in calendar order
func (a *Averaged) Points() []AveragePoint {
	out := make([]AveragePoint, len(a.points))
	copy(out, a.points)
	return out
}

// At returns the average for a month and day
func (a *Averaged) At(month time.Month, day int) (AveragePoint, bool) {
	target := calendar.Date(PlaceholderYear, month, day)
	i := sort.Search(len(a.points), func(i int) bool { return !a.points[i].Date.Before(target) })
	if i < len(a.points) && a.points[i].Date.Equal(target) {
		return a.points[i], true
	}
	return AveragePoint{}, false
}

type monthDay struct {
	month time.Month
	day   int
}

// Average computes the unweighted mean of every year's distance on each
// calendar day. Days are grouped by (month, day) rather than ordinal day of
// year, so February 29 only appears when a leap year contributes it.
func Average(byYear map[int]*timeline.Series) (*Averaged, error) {
	var unit calculator.Unit
	sums := make(map[monthDay]float64)
	counts := make(map[monthDay]int)

	for year, s := range byYear {
		if s == nil {
			continue
		}
		if unit == "" {
			unit = s.Unit()
		} else if s.Unit() != unit {
			return nil, fmt.Errorf("year %d is in %s, expected %s", year, s.Unit(), unit)
		}
		for _, p := range s.Points() {
			key := monthDay{month: p.Date.Month(), day: p.Date.Day()}
			sums[key] += p.Distance
			counts[key]++
		}
	}

	points := make([]AveragePoint, 0, len(counts))
	for key, n := range counts {
		points = append(points, AveragePoint{
			Date:    calendar.Date(PlaceholderYear, key.month, key.day),
			Mean:    sums[key] / float64(n),
			Samples: n,
		})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })

	return &Averaged{unit: unit, points: points}, nil
}

// SplitByYear cuts a series into one series per calendar year. The first
// and last years may be partial.
func SplitByYear(s *timeline.Series) (map[int]*timeline.Series, error) {
	out := make(map[int]*timeline.Series)
	if s.Len() == 0 {
		return out, nil
	}
	for year := s.Start().Year(); year <= s.End().Year(); year++ {
		start, end := calendar.YearBounds(year)
		if start.Before(s.Start()) {
			start = s.Start()
		}
		if end.After(s.End()) {
			end = s.End()
		}
		ys, err := s.Slice(start, end)
		if err != nil {
			return nil, fmt.Errorf("split year %d: %w", year, err)
		}
		out[year] = ys
	}
	return out, nil
}

// Shift re-dates a series' points onto targetYear for overlay charts.
// February 29 maps to February 28 when targetYear is not a leap year.
func Shift(s *timeline.Series, targetYear int) []timeline.Point {
	points := s.Points()
	for i, p := range points {
		points[i].Date = p.Date.AddDate(targetYear-p.Date.Year(), 0, 0)
		if p.Date.Month() == time.February && p.Date.Day() == 29 && !calendar.IsLeap(targetYear) {
			points[i].Date = calendar.Date(targetYear, time.February, 28)
		}
	}
	return points
}

// Overlay is one year's series with earlier years re-dated onto it
type Overlay struct {
	Year   int
	Target *timeline.Series
	// Prior holds each earlier year's points shifted onto Year
	Prior map[int][]timeline.Point
}

// PriorYears returns the overlaid years in ascending order
func (o *Overlay) PriorYears() []int {
	years := make([]int, 0, len(o.Prior))
	for y := range o.Prior {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}

// NewOverlay shifts every year in byYear before year onto it. Later years
// are ignored.
func NewOverlay(byYear map[int]*timeline.Series, year int) (*Overlay, error) {
	target := byYear[year]
	if target == nil {
		return nil, fmt.Errorf("no series for year %d", year)
	}
	o := &Overlay{Year: year, Target: target, Prior: make(map[int][]timeline.Point)}
	for y, s := range byYear {
		if y >= year || s == nil {
			continue
		}
		if s.Unit() != target.Unit() {
			return nil, fmt.Errorf("year %d is in %s, expected %s", y, s.Unit(), target.Unit())
		}
		o.Prior[y] = Shift(s, year)
	}
	return o, nil
}

// Comparison holds each year's raw series alongside their average
type Comparison struct {
	Years   map[int]*timeline.Series
	Average *Averaged
}

// SortedYears returns the years in ascending order
func (c *Comparison) SortedYears() []int {
	years := make([]int, 0, len(c.Years))
	for y := range c.Years {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}

// Compare averages byYear and keeps the yearly series unmodified
func Compare(byYear map[int]*timeline.Series) (*Comparison, error) {
	avg, err := Average(byYear)
	if err != nil {
		return nil, err
	}
	return &Comparison{Years: byYear, Average: avg}, nil
}

// BuildYears builds a full calendar-year series for every year in
// [startYear, endYear] using up to workers goroutines, then averages them.
// Any failing year fails the whole call.
func BuildYears(ctx context.Context, b *timeline.Builder, store *stays.Store, startYear, endYear, workers int) (*Comparison, error) {
	if startYear > endYear {
		return nil, fmt.Errorf("%w: start year %d is after end year %d", timeline.ErrInvalidRange, startYear, endYear)
	}
	if workers < 1 {
		workers = 1
	}

	results := make([]*timeline.Series, endYear-startYear+1)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for year := startYear; year <= endYear; year++ {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			start, end := calendar.YearBounds(year)
			s, err := b.Build(store, start, end)
			if err != nil {
				return fmt.Errorf("year %d: %w", year, err)
			}
			results[year-startYear] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	byYear := make(map[int]*timeline.Series, len(results))
	for i, s := range results {
		byYear[startYear+i] = s
	}
	return Compare(byYear)
}
