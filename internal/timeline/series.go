package timeline

import (
	"fmt"
	"time"

	"github.com/stuartshay/stay-timeline/internal/calculator"
	"github.com/stuartshay/stay-timeline/internal/calendar"
	"github.com/stuartshay/stay-timeline/internal/location"
)

// Point is the distance from home on one day
type Point struct {
	Date     time.Time
	Code     location.Code
	Distance float64
}

// Series is an immutable, gap-free, date-ordered distance timeline
type Series struct {
	unit     calculator.Unit
	points   []Point
	overlaps []Overlap
	skipped  []SkippedStay
}

// FromPoints builds a series from points that cover consecutive days in
// ascending order
func FromPoints(unit calculator.Unit, points []Point) (*Series, error) {
	for i := 1; i < len(points); i++ {
		if calendar.DaysBetween(points[i-1].Date, points[i].Date) != 1 {
			return nil, fmt.Errorf("%w: %s does not follow %s",
				ErrInvalidRange, calendar.Format(points[i].Date), calendar.Format(points[i-1].Date))
		}
	}
	cp := make([]Point, len(points))
	copy(cp, points)
	return &Series{unit: unit, points: cp}, nil
}

// Len returns the number of days in the series
func (s *Series) Len() int { return len(s.points) }

// Unit returns the distance unit
func (s *Series) Unit() calculator.Unit { return s.unit }

// Start returns the first date, or the zero time for an empty series
func (s *Series) Start() time.Time {
	if len(s.points) == 0 {
		return time.Time{}
	}
	return s.points[0].Date
}

// End returns the last date, or the zero time for an empty series
func (s *Series) End() time.Time {
	if len(s.points) == 0 {
		return time.Time{}
	}
	return s.points[len(s.points)-1].Date
}

// Points returns a copy of the points
func (s *Series) Points() []Point {
	out := make([]Point, len(s.points))
	copy(out, s.points)
	return out
}

// At returns the point for date
func (s *Series) At(date time.Time) (Point, bool) {
	if len(s.points) == 0 {
		return Point{}, false
	}
	i := calendar.DaysBetween(s.Start(), date)
	if i < 0 || i >= len(s.points) {
		return Point{}, false
	}
	return s.points[i], true
}

// Dates returns the dates in order
func (s *Series) Dates() []time.Time {
	out := make([]time.Time, len(s.points))
	for i, p := range s.points {
		out[i] = p.Date
	}
	return out
}

// Distances returns the distances in date order
func (s *Series) Distances() []float64 {
	out := make([]float64, len(s.points))
	for i, p := range s.points {
		out[i] = p.Distance
	}
	return out
}

// Overlaps returns the overlapping stays resolved while building the series
func (s *Series) Overlaps() []Overlap {
	out := make([]Overlap, len(s.overlaps))
	copy(out, s.overlaps)
	return out
}

// Skipped returns stays dropped because of malformed location codes
func (s *Series) Skipped() []SkippedStay {
	out := make([]SkippedStay, len(s.skipped))
	copy(out, s.skipped)
	return out
}

// Summary returns distance statistics for the series
func (s *Series) Summary() calculator.DistanceMetrics {
	return calculator.CalculateMetrics(s.unit, s.Distances())
}

// Slice returns a new series restricted to [start, end], which must lie
// within the series
func (s *Series) Slice(start, end time.Time) (*Series, error) {
	start, end = calendar.Day(start), calendar.Day(end)
	if start.After(end) {
		return nil, fmt.Errorf("%w: start %s is after end %s", ErrInvalidRange, calendar.Format(start), calendar.Format(end))
	}
	i := calendar.DaysBetween(s.Start(), start)
	j := calendar.DaysBetween(s.Start(), end)
	if len(s.points) == 0 || i < 0 || j >= len(s.points) {
		return nil, fmt.Errorf("%w: %s..%s is outside the series", ErrInvalidRange, calendar.Format(start), calendar.Format(end))
	}

	out := &Series{unit: s.unit, points: make([]Point, j-i+1)}
	copy(out.points, s.points[i:j+1])
	for _, o := range s.overlaps {
		if !o.Date.Before(start) && !o.Date.After(end) {
			out.overlaps = append(out.overlaps, o)
		}
	}
	return out, nil
}
