package report

import (
	"fmt"
	"sort"
	"time"

	"github.com/stuartshay/stay-timeline/internal/calendar"
	"github.com/stuartshay/stay-timeline/internal/timeline"
)

// Period is a run of consecutive mornings all away or all at home. Start is
// the night before the first morning (the check-in date for away periods)
// and End is the last morning.
type Period struct {
	Away     bool
	Start    time.Time
	End      time.Time
	Nights   int
	Purposes []string
}

// FirstMorning returns the first morning of the period
func (p Period) FirstMorning() time.Time {
	return calendar.AddDays(p.Start, 1)
}

func (p Period) String() string {
	kind := "Home"
	if p.Away {
		kind = "Away"
	}
	plural := "s"
	if p.Nights == 1 {
		plural = ""
	}
	return fmt.Sprintf("%s thru %s (%d night%s)", kind, calendar.Format(p.End), p.Nights, plural)
}

// DateRange formats the period compactly, e.g. "2–4 Jan 2020",
// "30 Dec 2019–2 Jan 2020"
func (p Period) DateRange() string {
	start, end := p.Start, p.End
	var startStr string
	switch {
	case start.Year() != end.Year():
		startStr = fmt.Sprintf("%d %s %d", start.Day(), start.Format("Jan"), start.Year())
	case start.Month() != end.Month():
		startStr = fmt.Sprintf("%d %s", start.Day(), start.Format("Jan"))
	default:
		startStr = fmt.Sprintf("%d", start.Day())
	}
	return fmt.Sprintf("%s–%d %s %d", startStr, end.Day(), end.Format("Jan"), end.Year())
}

// Periods groups daily locations into consecutive away and home periods. A
// day is away when a stay claims it, including stays in the home city.
func Periods(days []timeline.DailyLocation) []Period {
	var out []Period
	for _, day := range days {
		away := day.Stay != nil
		if n := len(out); n > 0 && out[n-1].Away == away {
			last := &out[n-1]
			last.Nights++
			last.End = day.Date
			if away {
				last.Purposes = append(last.Purposes, day.Stay.Purpose)
			}
			continue
		}

		p := Period{Away: away, Start: calendar.AddDays(day.Date, -1), End: day.Date, Nights: 1}
		if away {
			p.Purposes = []string{day.Stay.Purpose}
		}
		out = append(out, p)
	}
	return out
}

// Pair is an away period followed by the home period after it. Away is nil
// when the range starts at home; Home is nil when it ends away.
type Pair struct {
	Away *Period
	Home *Period
}

// Pairs arranges periods into away/home pairs
func Pairs(periods []Period) []Pair {
	var out []Pair
	i := 0
	if len(periods) > 0 && !periods[0].Away {
		out = append(out, Pair{Home: &periods[0]})
		i = 1
	}
	for ; i < len(periods); i += 2 {
		pair := Pair{Away: &periods[i]}
		if i+1 < len(periods) {
			pair.Home = &periods[i+1]
		}
		out = append(out, pair)
	}
	return out
}

// HomeStats compares the current home stay against earlier ones
type HomeStats struct {
	// Current is the home period at the end of the range
	Current *Period
	// Longest reports whether no earlier home stay was as long
	Longest bool
	// MostRecentEqualOrLonger is the latest earlier home stay at least as
	// long as Current
	MostRecentEqualOrLonger *Period
	// Ranking lists earlier longer home stays, longest first, followed by
	// the current one
	Ranking []Period
}

// HomeStayStats computes statistics about the current home stay. It returns
// false when the range does not end at home.
func HomeStayStats(pairs []Pair) (HomeStats, bool) {
	if len(pairs) == 0 || pairs[len(pairs)-1].Home == nil {
		return HomeStats{}, false
	}

	current := pairs[len(pairs)-1].Home
	stats := HomeStats{Current: current}

	var longer []Period
	for _, p := range pairs[:len(pairs)-1] {
		if p.Home == nil {
			continue
		}
		if p.Home.Nights >= current.Nights {
			stats.MostRecentEqualOrLonger = p.Home
		}
		if p.Home.Nights > current.Nights {
			longer = append(longer, *p.Home)
		}
	}
	stats.Longest = stats.MostRecentEqualOrLonger == nil

	sort.SliceStable(longer, func(i, j int) bool { return longer[i].Nights > longer[j].Nights })
	stats.Ranking = append(longer, *current)

	return stats, true
}
