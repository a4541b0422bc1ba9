package report

import (
	"sort"

	"github.com/stuartshay/stay-timeline/internal/stays"
)

// UnspecifiedPurpose labels stays recorded without a purpose
const UnspecifiedPurpose = "Unspecified"

// AnnualCount is the number of nights away in one year, by stay purpose
type AnnualCount struct {
	Year   int
	Nights map[string]int
}

// Total returns the nights across all purposes
func (c AnnualCount) Total() int {
	total := 0
	for _, n := range c.Nights {
		total += n
	}
	return total
}

// AnnualNightCounts counts mornings away per year and purpose from the first
// year with a stay through thruYear. Years without stays are zero-filled.
// It also returns the sorted set of purposes seen.
func AnnualNightCounts(store *stays.Store, thruYear int) ([]AnnualCount, []string) {
	first, ok := store.FirstMorning()
	if !ok {
		return nil, nil
	}

	byYear := make(map[int]map[string]int)
	purposes := make(map[string]struct{})
	for _, m := range store.Mornings() {
		purpose := m.Record.Purpose
		if purpose == "" {
			purpose = UnspecifiedPurpose
		}
		purposes[purpose] = struct{}{}
		if byYear[m.Date.Year()] == nil {
			byYear[m.Date.Year()] = make(map[string]int)
		}
		byYear[m.Date.Year()][purpose]++
	}

	names := make([]string, 0, len(purposes))
	for p := range purposes {
		names = append(names, p)
	}
	sort.Strings(names)

	var out []AnnualCount
	for year := first.Year(); year <= thruYear; year++ {
		c := AnnualCount{Year: year, Nights: make(map[string]int, len(names))}
		for _, p := range names {
			c.Nights[p] = byYear[year][p]
		}
		out = append(out, c)
	}
	return out, names
}
