// Package export renders timelines and reports as delimited text
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/stuartshay/stay-timeline/internal/aggregate"
	"github.com/stuartshay/stay-timeline/internal/calendar"
	"github.com/stuartshay/stay-timeline/internal/report"
	"github.com/stuartshay/stay-timeline/internal/timeline"
)

// Options controls the output format
type Options struct {
	// Delimiter separates fields; zero means comma
	Delimiter rune
	// Header writes a column header row first
	Header bool
}

// TSV is the tab-separated format with a header
var TSV = Options{Delimiter: '\t', Header: true}

// CSV is the comma-separated format with a header
var CSV = Options{Delimiter: ',', Header: true}

func (o Options) writer(w io.Writer) *csv.Writer {
	cw := csv.NewWriter(w)
	if o.Delimiter != 0 {
		cw.Comma = o.Delimiter
	}
	return cw
}

func formatDistance(d float64) string {
	return strconv.FormatFloat(d, 'f', 2, 64)
}

// WriteSeries writes one "date, distance" row per day
func WriteSeries(w io.Writer, s *timeline.Series, opts Options) error {
	cw := opts.writer(w)
	if opts.Header {
		if err := cw.Write([]string{"date", "distance_" + string(s.Unit())}); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}
	for _, p := range s.Points() {
		if err := cw.Write([]string{calendar.Format(p.Date), formatDistance(p.Distance)}); err != nil {
			return fmt.Errorf("write %s: %w", calendar.Format(p.Date), err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteAveraged writes one row per calendar day of an averaged series,
// dated in the placeholder year
func WriteAveraged(w io.Writer, a *aggregate.Averaged, opts Options) error {
	cw := opts.writer(w)
	if opts.Header {
		if err := cw.Write([]string{"date", "distance_" + string(a.Unit()), "samples"}); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}
	for _, p := range a.Points() {
		row := []string{calendar.Format(p.Date), formatDistance(p.Mean), strconv.Itoa(p.Samples)}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write %s: %w", calendar.Format(p.Date), err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteComparison writes one column per year next to the average, rows
// keyed by placeholder-year date. Missing values are left empty.
func WriteComparison(w io.Writer, c *aggregate.Comparison, opts Options) error {
	years := c.SortedYears()
	shifted := make([]map[string]float64, len(years))
	for i, year := range years {
		shifted[i] = make(map[string]float64)
		for _, p := range c.Years[year].Points() {
			md := calendar.Format(calendar.Date(aggregate.PlaceholderYear, p.Date.Month(), p.Date.Day()))
			shifted[i][md] = p.Distance
		}
	}

	cw := opts.writer(w)
	if opts.Header {
		header := []string{"date"}
		for _, year := range years {
			header = append(header, strconv.Itoa(year))
		}
		header = append(header, "average")
		if err := cw.Write(header); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}

	for _, p := range c.Average.Points() {
		date := calendar.Format(p.Date)
		row := []string{date}
		for i := range years {
			if d, ok := shifted[i][date]; ok {
				row = append(row, formatDistance(d))
			} else {
				row = append(row, "")
			}
		}
		row = append(row, formatDistance(p.Mean))
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write %s: %w", date, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteOverlay writes one row per day of the target year with a column for
// each earlier year and the target year last. A prior leap day shares
// February 28 with the day before it; the earlier value is kept.
func WriteOverlay(w io.Writer, o *aggregate.Overlay, opts Options) error {
	years := o.PriorYears()
	prior := make([]map[string]float64, len(years))
	for i, year := range years {
		prior[i] = make(map[string]float64)
		for _, p := range o.Prior[year] {
			date := calendar.Format(p.Date)
			if _, ok := prior[i][date]; !ok {
				prior[i][date] = p.Distance
			}
		}
	}

	cw := opts.writer(w)
	if opts.Header {
		header := []string{"date"}
		for _, year := range years {
			header = append(header, strconv.Itoa(year))
		}
		header = append(header, strconv.Itoa(o.Year))
		if err := cw.Write(header); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}

	for _, p := range o.Target.Points() {
		date := calendar.Format(p.Date)
		row := []string{date}
		for i := range years {
			if d, ok := prior[i][date]; ok {
				row = append(row, formatDistance(d))
			} else {
				row = append(row, "")
			}
		}
		row = append(row, formatDistance(p.Distance))
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write %s: %w", date, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFrequencies writes a ranked frequency table
func WriteFrequencies(w io.Writer, t *report.FrequencyTable, opts Options) error {
	cw := opts.writer(w)
	if opts.Header {
		header := []string{"rank", "key", "type", "name", "title", "metro_id", "latitude", "longitude", "nights"}
		if err := cw.Write(header); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}
	for _, r := range t.Rows {
		lat, lon := "", ""
		if r.HasCoordinates {
			lat = strconv.FormatFloat(r.Latitude, 'f', -1, 64)
			lon = strconv.FormatFloat(r.Longitude, 'f', -1, 64)
		}
		row := []string{strconv.Itoa(r.Rank), r.Key, r.Type, r.Name, r.Title, r.MetroID, lat, lon, strconv.Itoa(r.Nights)}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write %s: %w", r.Key, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteAnnualCounts writes nights per year with one column per purpose and
// a total column
func WriteAnnualCounts(w io.Writer, counts []report.AnnualCount, purposes []string, opts Options) error {
	cw := opts.writer(w)
	if opts.Header {
		header := append([]string{"year"}, purposes...)
		header = append(header, "total")
		if err := cw.Write(header); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}
	for _, c := range counts {
		row := []string{strconv.Itoa(c.Year)}
		for _, p := range purposes {
			row = append(row, strconv.Itoa(c.Nights[p]))
		}
		row = append(row, strconv.Itoa(c.Total()))
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write %d: %w", c.Year, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
