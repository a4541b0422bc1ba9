package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/hlog"

	"github.com/stuartshay/stay-timeline/internal/calculator"
	"github.com/stuartshay/stay-timeline/internal/calendar"
	"github.com/stuartshay/stay-timeline/internal/export"
	"github.com/stuartshay/stay-timeline/internal/geocode"
	"github.com/stuartshay/stay-timeline/internal/location"
	"github.com/stuartshay/stay-timeline/internal/report"
	"github.com/stuartshay/stay-timeline/internal/service"
	"github.com/stuartshay/stay-timeline/internal/stays"
	"github.com/stuartshay/stay-timeline/internal/timeline"
)

// errBadRequest marks query parameter errors
var errBadRequest = errors.New("bad request")

type handler struct {
	cfg RouterConfig
}

func (h *handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": h.cfg.ServiceName})
}

func (h *handler) readyz(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Database != nil {
		ctx, cancel := context.WithTimeout(r.Context(), h.cfg.ReadyTimeout)
		defer cancel()
		if err := h.cfg.Database.HealthCheck(ctx); err != nil {
			hlog.FromRequest(r).Warn().Err(err).Msg("Readiness check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready", "service": h.cfg.ServiceName})
}

// timelineCSV handles GET /v1/timeline.csv?start=&end=&unit=
func (h *handler) timelineCSV(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start, err := requiredDate(q.Get("start"), "start")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	end, err := requiredDate(q.Get("end"), "end")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	unit, err := optionalUnit(q.Get("unit"))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	res, err := h.cfg.Timelines.BuildTimeline(r.Context(), service.Request{Start: start, End: end, Unit: unit})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	filename := fmt.Sprintf("timeline_%s_%s_%s.csv",
		calendar.Format(start), calendar.Format(end), res.Series.Unit())
	writeCSV(w, r, filename, func(w http.ResponseWriter) error {
		return export.WriteSeries(w, res.Series, export.CSV)
	})
}

// averageCSV handles GET /v1/average.csv?start_year=&end_year=&unit=&include_years=
// include_years=false writes only the average with its sample counts.
func (h *handler) averageCSV(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	startYear, err := requiredInt(q.Get("start_year"), "start_year")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	endYear, err := requiredInt(q.Get("end_year"), "end_year")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	unit, err := optionalUnit(q.Get("unit"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	includeYears := true
	if v := q.Get("include_years"); v != "" {
		if includeYears, err = optionalBool(v, "include_years"); err != nil {
			h.fail(w, r, err)
			return
		}
	}

	res, err := h.cfg.Timelines.BuildYears(r.Context(), service.YearsRequest{StartYear: startYear, EndYear: endYear, Unit: unit})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	filename := fmt.Sprintf("average_%d_%d_%s.csv", startYear, endYear, res.Summary.Unit)
	writeCSV(w, r, filename, func(w http.ResponseWriter) error {
		if !includeYears {
			return export.WriteAveraged(w, res.Comparison.Average, export.CSV)
		}
		return export.WriteComparison(w, res.Comparison, export.CSV)
	})
}

// overlayCSV handles GET /v1/overlay.csv?year=&prior_from=&unit=
func (h *handler) overlayCSV(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	year, err := requiredInt(q.Get("year"), "year")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	priorFrom := 0
	if v := q.Get("prior_from"); v != "" {
		if priorFrom, err = requiredInt(v, "prior_from"); err != nil {
			h.fail(w, r, err)
			return
		}
	}
	unit, err := optionalUnit(q.Get("unit"))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	overlay, err := h.cfg.Timelines.BuildOverlay(r.Context(), service.OverlayRequest{Year: year, PriorFrom: priorFrom, Unit: unit})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeCSV(w, r, fmt.Sprintf("overlay_%d_%s.csv", year, overlay.Target.Unit()), func(w http.ResponseWriter) error {
		return export.WriteOverlay(w, overlay, export.CSV)
	})
}

type periodJSON struct {
	Away     bool     `json:"away"`
	Start    string   `json:"start"`
	End      string   `json:"end"`
	Nights   int      `json:"nights"`
	Purposes []string `json:"purposes,omitempty"`
	Label    string   `json:"label"`
}

func newPeriodJSON(p report.Period) periodJSON {
	return periodJSON{
		Away:     p.Away,
		Start:    calendar.Format(p.Start),
		End:      calendar.Format(p.End),
		Nights:   p.Nights,
		Purposes: p.Purposes,
		Label:    p.DateRange(),
	}
}

type homeStaysJSON struct {
	Periods                 []periodJSON `json:"periods"`
	Current                 *periodJSON  `json:"current,omitempty"`
	Longest                 bool         `json:"longest"`
	MostRecentEqualOrLonger *periodJSON  `json:"most_recent_equal_or_longer,omitempty"`
	Ranking                 []periodJSON `json:"ranking,omitempty"`
}

// homeStays handles GET /v1/home-stays?start=&end=
func (h *handler) homeStays(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start, err := requiredDate(q.Get("start"), "start")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	end, err := requiredDate(q.Get("end"), "end")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	periods, stats, ok, err := h.cfg.Timelines.HomeStays(r.Context(), start, end)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	body := homeStaysJSON{Periods: make([]periodJSON, 0, len(periods))}
	for _, p := range periods {
		body.Periods = append(body.Periods, newPeriodJSON(p))
	}
	if ok {
		current := newPeriodJSON(*stats.Current)
		body.Current = &current
		body.Longest = stats.Longest
		if stats.MostRecentEqualOrLonger != nil {
			prev := newPeriodJSON(*stats.MostRecentEqualOrLonger)
			body.MostRecentEqualOrLonger = &prev
		}
		for _, p := range stats.Ranking {
			body.Ranking = append(body.Ranking, newPeriodJSON(p))
		}
	}
	writeJSON(w, http.StatusOK, body)
}

// frequenciesCSV handles GET /v1/frequencies.csv?by=&start=&thru=&exclude_flights=&reject_flight_segments=&top=
func (h *handler) frequenciesCSV(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	by, err := report.ParseGroupBy(q.Get("by"))
	if err != nil {
		h.fail(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	opts := report.FrequencyOptions{By: by}
	if opts.Start, err = optionalDate(q.Get("start"), "start"); err != nil {
		h.fail(w, r, err)
		return
	}
	if opts.Thru, err = optionalDate(q.Get("thru"), "thru"); err != nil {
		h.fail(w, r, err)
		return
	}
	if opts.ExcludeFlights, err = optionalBool(q.Get("exclude_flights"), "exclude_flights"); err != nil {
		h.fail(w, r, err)
		return
	}
	if opts.RejectFlightSegments, err = optionalBool(q.Get("reject_flight_segments"), "reject_flight_segments"); err != nil {
		h.fail(w, r, err)
		return
	}
	top := 0
	if v := q.Get("top"); v != "" {
		if top, err = requiredInt(v, "top"); err != nil {
			h.fail(w, r, err)
			return
		}
	}

	table, err := h.cfg.Timelines.Frequencies(r.Context(), opts)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	table.Rows = table.Top(top)

	writeCSV(w, r, fmt.Sprintf("frequencies_%s.csv", by), func(w http.ResponseWriter) error {
		return export.WriteFrequencies(w, table, export.CSV)
	})
}

// annualCSV handles GET /v1/annual.csv?thru=YYYY; thru defaults to the current year
func (h *handler) annualCSV(w http.ResponseWriter, r *http.Request) {
	thru := time.Now().UTC().Year()
	if v := r.URL.Query().Get("thru"); v != "" {
		var err error
		if thru, err = requiredInt(v, "thru"); err != nil {
			h.fail(w, r, err)
			return
		}
	}

	counts, purposes, err := h.cfg.Timelines.AnnualNightCounts(r.Context(), thru)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeCSV(w, r, fmt.Sprintf("annual_%d.csv", thru), func(w http.ResponseWriter) error {
		return export.WriteAnnualCounts(w, counts, purposes, export.CSV)
	})
}

// fail maps err to an HTTP status and writes a JSON error body
func (h *handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	event := hlog.FromRequest(r).Warn()
	if code >= http.StatusInternalServerError {
		event = hlog.FromRequest(r).Error()
	}
	event.Err(err).Int("status", code).Msg("Request failed")
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, timeline.ErrInvalidRange),
		errors.Is(err, timeline.ErrRangeTooLong):
		return http.StatusBadRequest
	case errors.Is(err, geocode.ErrUnknownLocation),
		errors.Is(err, location.ErrMalformedLocationCode),
		errors.Is(err, stays.ErrInvalidRecord):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeCSV(w http.ResponseWriter, r *http.Request, filename string, write func(http.ResponseWriter) error) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if err := write(w); err != nil {
		// Headers are already sent.
		hlog.FromRequest(r).Error().Err(err).Msg("Failed to write CSV")
	}
}

func requiredDate(v, name string) (time.Time, error) {
	if v == "" {
		return time.Time{}, fmt.Errorf("%w: %s is required", errBadRequest, name)
	}
	return optionalDate(v, name)
}

func optionalDate(v, name string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	t, err := calendar.Parse(v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s: %v", errBadRequest, name, err)
	}
	return t, nil
}

func requiredInt(v, name string) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", errBadRequest, name)
	}
	return n, nil
}

func optionalBool(v, name string) (bool, error) {
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%w: %s must be a boolean", errBadRequest, name)
	}
	return b, nil
}

func optionalUnit(v string) (calculator.Unit, error) {
	if v == "" {
		return "", nil
	}
	u, err := calculator.ParseUnit(v)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return u, nil
}
