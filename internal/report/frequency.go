// Package report produces grouping and frequency reports over stay data:
// nights per location, consecutive away/home periods and annual night
// counts.
package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/stuartshay/stay-timeline/internal/calendar"
	"github.com/stuartshay/stay-timeline/internal/geocode"
	"github.com/stuartshay/stay-timeline/internal/location"
	"github.com/stuartshay/stay-timeline/internal/stays"
	"github.com/stuartshay/stay-timeline/internal/timeline"
)

// GroupBy selects how mornings are grouped in a frequency table
type GroupBy string

// Grouping modes
const (
	ByCity  GroupBy = "city"
	ByMetro GroupBy = "metro"
	ByState GroupBy = "state"
)

// ParseGroupBy parses "city", "metro" or "state"
func ParseGroupBy(s string) (GroupBy, error) {
	switch g := GroupBy(strings.ToLower(strings.TrimSpace(s))); g {
	case "":
		return ByCity, nil
	case ByCity, ByMetro, ByState:
		return g, nil
	default:
		return "", fmt.Errorf("unknown grouping %q", s)
	}
}

// Row types
const (
	TypeCity   = "city"
	TypeFlight = "flight"
	TypeMetro  = "metro"
	TypeState  = "state"
)

// FrequencyOptions configures Frequencies. Zero Start/Thru leave the range
// open on that side.
type FrequencyOptions struct {
	Start time.Time
	Thru  time.Time
	By    GroupBy

	// ExcludeFlights drops every flight morning
	ExcludeFlights bool
	// RejectFlightSegments drops true origin-destination flight mornings
	// but keeps single-airport layovers
	RejectFlightSegments bool

	// Metros supplies metro-area coordinates keyed by metro id
	Metros geocode.Table
	// Places supplies display names and each city's current metro
	Places Places
}

// Places holds display metadata keyed by upper-case id. Nil maps are empty.
type Places struct {
	Cities map[string]City
	Metros map[string]Metro
	// States maps a US state abbreviation to its name
	States map[string]string
}

// City is the display metadata of a city, region or airport
type City struct {
	Name string
	// MetroID is the metro area the city currently belongs to, if any
	MetroID string
}

// Metro is the display metadata of a metro area
type Metro struct {
	Title     string
	ShortName string
}

// FrequencyRow is the number of nights spent in one group
type FrequencyRow struct {
	Rank int
	Key  string
	Type string
	// Name is the city name, metro short name or state name
	Name string
	// Title is the full metro area title
	Title          string
	MetroID        string
	Latitude       float64
	Longitude      float64
	HasCoordinates bool
	Nights         int
}

// FrequencyTable is a ranked list of groups
type FrequencyTable struct {
	By          GroupBy
	Rows        []FrequencyRow
	TotalNights int
}

// Top returns the first n rows, or all rows when n <= 0
func (t *FrequencyTable) Top(n int) []FrequencyRow {
	if n <= 0 || n >= len(t.Rows) {
		return t.Rows
	}
	return t.Rows[:n]
}

// Frequencies counts nights per city, metro area or US state. Mornings
// outside [Start, Thru] are not counted, so stays straddling the range are
// clipped.
func Frequencies(store *stays.Store, parser *location.Parser, resolver *geocode.Resolver, opts FrequencyOptions) (*FrequencyTable, error) {
	if opts.By == "" {
		opts.By = ByCity
	}
	if !opts.Start.IsZero() && !opts.Thru.IsZero() && opts.Start.After(opts.Thru) {
		return nil, fmt.Errorf("%w: start %s is after thru %s", timeline.ErrInvalidRange, calendar.Format(opts.Start), calendar.Format(opts.Thru))
	}

	rows := make(map[string]*FrequencyRow)
	codes := make(map[string]location.Code)
	table := &FrequencyTable{By: opts.By}

	for _, m := range store.Mornings() {
		if !opts.Start.IsZero() && m.Date.Before(calendar.Day(opts.Start)) {
			continue
		}
		if !opts.Thru.IsZero() && m.Date.After(calendar.Day(opts.Thru)) {
			continue
		}

		code, ok := codes[m.Record.CityID]
		if !ok {
			var err error
			code, err = parser.Parse(m.Record.CityID)
			if err != nil {
				return nil, fmt.Errorf("stay checking out %s: %w", calendar.Format(m.Record.CheckoutDate), err)
			}
			codes[m.Record.CityID] = code
		}

		if code.Kind() == location.KindFlight {
			if opts.ExcludeFlights || (opts.RejectFlightSegments && code.IsSegment()) {
				continue
			}
		}

		row, err := groupRow(rows, code, m.Record, resolver, opts)
		if err != nil {
			return nil, err
		}
		if row == nil {
			continue
		}
		row.Nights++
		table.TotalNights++
	}

	table.Rows = make([]FrequencyRow, 0, len(rows))
	for _, r := range rows {
		table.Rows = append(table.Rows, *r)
	}
	sort.Slice(table.Rows, func(i, j int) bool {
		if table.Rows[i].Nights != table.Rows[j].Nights {
			return table.Rows[i].Nights > table.Rows[j].Nights
		}
		return table.Rows[i].Key < table.Rows[j].Key
	})
	for i := range table.Rows {
		if i > 0 && table.Rows[i].Nights == table.Rows[i-1].Nights {
			table.Rows[i].Rank = table.Rows[i-1].Rank
		} else {
			table.Rows[i].Rank = i + 1
		}
	}

	return table, nil
}

// groupRow returns the row a morning belongs to, creating it on first use.
// It returns nil when the morning has no group under the current mode.
func groupRow(rows map[string]*FrequencyRow, code location.Code, rec stays.Record, resolver *geocode.Resolver, opts FrequencyOptions) (*FrequencyRow, error) {
	switch opts.By {
	case ByState:
		segs := code.Segments()
		if code.Kind() == location.KindFlight || len(segs) < 2 || segs[0] != "US" {
			return nil, nil
		}
		key := segs[0] + location.PathSeparator + segs[1]
		if r, ok := rows[key]; ok {
			return r, nil
		}
		r := &FrequencyRow{Key: key, Type: TypeState, Name: opts.Places.States[segs[1]]}
		if c, err := resolver.ResolveKey(key); err == nil {
			r.Latitude, r.Longitude, r.HasCoordinates = c.Latitude, c.Longitude, true
		}
		rows[key] = r
		return r, nil

	case ByMetro:
		if metroID := currentMetro(code, rec, opts.Places); metroID != "" {
			key := TypeMetro + ":" + metroID
			if r, ok := rows[key]; ok {
				return r, nil
			}
			m := opts.Places.Metros[metroID]
			r := &FrequencyRow{Key: metroID, Type: TypeMetro, Name: m.ShortName, Title: m.Title, MetroID: metroID}
			if opts.Metros != nil {
				if c, ok := opts.Metros.Lookup(metroID); ok {
					r.Latitude, r.Longitude, r.HasCoordinates = c.Latitude, c.Longitude, true
				}
			}
			rows[key] = r
			return r, nil
		}
		return cityRow(rows, code, resolver, opts.Places)

	case ByCity:
		return cityRow(rows, code, resolver, opts.Places)

	default:
		return nil, fmt.Errorf("unknown grouping %q", opts.By)
	}
}

// currentMetro returns the metro a morning counts toward. A city listed in
// places uses its current metro; otherwise the stay's own metro id applies.
func currentMetro(code location.Code, rec stays.Record, places Places) string {
	if city, ok := places.Cities[code.String()]; ok {
		return city.MetroID
	}
	return rec.MetroID
}

func cityRow(rows map[string]*FrequencyRow, code location.Code, resolver *geocode.Resolver, places Places) (*FrequencyRow, error) {
	key := code.String()
	if r, ok := rows[key]; ok {
		return r, nil
	}

	c, err := resolver.Resolve(code)
	if err != nil {
		return nil, fmt.Errorf("frequency for %s: %w", key, err)
	}
	r := &FrequencyRow{
		Key:            key,
		Type:           TypeCity,
		Name:           places.Cities[key].Name,
		Latitude:       c.Latitude,
		Longitude:      c.Longitude,
		HasCoordinates: true,
	}
	if code.Kind() == location.KindFlight {
		r.Type = TypeFlight
	}
	rows[key] = r
	return r, nil
}
