// Package service loads stays and coordinates from the data source, builds
// distance timelines and reports, and writes CSV output for queued jobs.
package service

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/stuartshay/stay-timeline/internal/aggregate"
	"github.com/stuartshay/stay-timeline/internal/calculator"
	"github.com/stuartshay/stay-timeline/internal/calendar"
	"github.com/stuartshay/stay-timeline/internal/export"
	"github.com/stuartshay/stay-timeline/internal/geocode"
	"github.com/stuartshay/stay-timeline/internal/location"
	"github.com/stuartshay/stay-timeline/internal/queue"
	"github.com/stuartshay/stay-timeline/internal/report"
	"github.com/stuartshay/stay-timeline/internal/stays"
	"github.com/stuartshay/stay-timeline/internal/timeline"
)

const tracerName = "github.com/stuartshay/stay-timeline/internal/service"

// Source provides stays, coordinate tables and place names;
// *database.Client satisfies it
type Source interface {
	GetStays(ctx context.Context) ([]stays.Record, error)
	GetCityCoordinates(ctx context.Context) (geocode.MapTable, error)
	GetMetroCoordinates(ctx context.Context) (geocode.MapTable, error)
	GetPlaces(ctx context.Context) (report.Places, error)
}

// Config holds the timeline settings the service builds with
type Config struct {
	HomeLocation    string
	FlightPrefix    string
	Unit            calculator.Unit
	MalformedPolicy timeline.MalformedPolicy
	Workers         int
	OutputDir       string
	// MaxRangeYears bounds every requested range; zero means unbounded
	MaxRangeYears int
}

// Option configures a Service
type Option func(*Service)

// WithLogger sets the service logger
func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithBuildObserver forwards build outcomes, e.g. to metrics
func WithBuildObserver(o timeline.Observer) Option {
	return func(s *Service) { s.observer = o }
}

// WithResolverObserver receives each request's coordinate cache statistics
func WithResolverObserver(fn func(geocode.Stats)) Option {
	return func(s *Service) { s.resolverStats = fn }
}

// Service builds timelines from a Source
type Service struct {
	source        Source
	cfg           Config
	parser        *location.Parser
	logger        zerolog.Logger
	observer      timeline.Observer
	resolverStats func(geocode.Stats)
	tracer        trace.Tracer
}

// New creates a service. It fails when the home location is not a valid
// place code.
func New(source Source, cfg Config, opts ...Option) (*Service, error) {
	var parserOpts []location.Option
	if cfg.FlightPrefix != "" {
		parserOpts = append(parserOpts, location.WithFlightPrefix(cfg.FlightPrefix))
	}
	parser, err := location.NewParser(cfg.HomeLocation, parserOpts...)
	if err != nil {
		return nil, err
	}
	if cfg.Unit == "" {
		cfg.Unit = calculator.Miles
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}

	s := &Service{
		source: source,
		cfg:    cfg,
		parser: parser,
		logger: zerolog.Nop(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Request selects a single timeline
type Request struct {
	Start time.Time
	End   time.Time
	// Unit overrides the configured unit when set
	Unit calculator.Unit
}

// Result is a built timeline with its summary
type Result struct {
	Series   *timeline.Series
	Summary  calculator.DistanceMetrics
	Overlaps []timeline.Overlap
	Skipped  []timeline.SkippedStay
}

// YearsRequest selects a range of calendar years to compare
type YearsRequest struct {
	StartYear int
	EndYear   int
	Unit      calculator.Unit
}

// YearsResult is every year's series plus their day-of-year average
type YearsResult struct {
	Comparison *aggregate.Comparison
	// Summary describes the averaged series
	Summary  calculator.DistanceMetrics
	Overlaps int
	Skipped  int
}

// dataset is everything loaded from the source for one request
type dataset struct {
	store    *stays.Store
	resolver *geocode.Resolver
	metros   geocode.MapTable
}

func (s *Service) load(ctx context.Context, withMetros bool) (*dataset, error) {
	ctx, span := s.tracer.Start(ctx, "service.load")
	defer span.End()

	records, err := s.source.GetStays(ctx)
	if err != nil {
		return nil, fmt.Errorf("load stays: %w", err)
	}
	store, err := stays.NewStore(records)
	if err != nil {
		return nil, err
	}

	cities, err := s.source.GetCityCoordinates(ctx)
	if err != nil {
		return nil, fmt.Errorf("load city coordinates: %w", err)
	}

	ds := &dataset{store: store, resolver: geocode.NewResolver(cities)}
	if withMetros {
		if ds.metros, err = s.source.GetMetroCoordinates(ctx); err != nil {
			return nil, fmt.Errorf("load metro coordinates: %w", err)
		}
	}

	span.SetAttributes(
		attribute.Int("stays.count", store.Len()),
		attribute.Int("cities.count", len(cities)),
	)
	return ds, nil
}

func (s *Service) builder(ds *dataset, unit calculator.Unit) *timeline.Builder {
	if unit == "" {
		unit = s.cfg.Unit
	}
	opts := []timeline.Option{
		timeline.WithUnit(unit),
		timeline.WithMalformedPolicy(s.cfg.MalformedPolicy),
		timeline.WithLogger(s.logger),
	}
	if s.observer != nil {
		opts = append(opts, timeline.WithObserver(s.observer))
	}
	return timeline.NewBuilder(s.parser, ds.resolver, opts...)
}

func (s *Service) reportResolver(ds *dataset) {
	if s.resolverStats != nil {
		s.resolverStats(ds.resolver.Stats())
	}
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// BuildTimeline builds the distance series for [req.Start, req.End]
func (s *Service) BuildTimeline(ctx context.Context, req Request) (*Result, error) {
	ctx, span := s.tracer.Start(ctx, "service.BuildTimeline", trace.WithAttributes(
		attribute.String("start", calendar.Format(req.Start)),
		attribute.String("end", calendar.Format(req.End)),
	))
	defer span.End()

	if err := timeline.CheckSpan(req.Start, req.End, s.cfg.MaxRangeYears); err != nil {
		return nil, fail(span, err)
	}

	ds, err := s.load(ctx, false)
	if err != nil {
		return nil, fail(span, err)
	}
	defer s.reportResolver(ds)

	series, err := s.builder(ds, req.Unit).Build(ds.store, req.Start, req.End)
	if err != nil {
		return nil, fail(span, err)
	}

	summary := series.Summary()
	span.SetAttributes(
		attribute.Int("days", series.Len()),
		attribute.Int("days_away", summary.DaysAway),
		attribute.Int("overlaps", len(series.Overlaps())),
	)
	s.logger.Info().
		Str("start", calendar.Format(req.Start)).
		Str("end", calendar.Format(req.End)).
		Int("days", series.Len()).
		Int("days_away", summary.DaysAway).
		Float64("max_distance", summary.MaxDistance).
		Str("unit", string(series.Unit())).
		Msg("Timeline built")

	return &Result{
		Series:   series,
		Summary:  summary,
		Overlaps: series.Overlaps(),
		Skipped:  series.Skipped(),
	}, nil
}

// BuildYears builds each calendar year in the request concurrently and
// averages them by day of year
func (s *Service) BuildYears(ctx context.Context, req YearsRequest) (*YearsResult, error) {
	ctx, span := s.tracer.Start(ctx, "service.BuildYears", trace.WithAttributes(
		attribute.Int("start_year", req.StartYear),
		attribute.Int("end_year", req.EndYear),
	))
	defer span.End()

	if err := timeline.CheckYears(req.StartYear, req.EndYear, s.cfg.MaxRangeYears); err != nil {
		return nil, fail(span, err)
	}

	ds, err := s.load(ctx, false)
	if err != nil {
		return nil, fail(span, err)
	}
	defer s.reportResolver(ds)

	cmp, err := aggregate.BuildYears(ctx, s.builder(ds, req.Unit), ds.store, req.StartYear, req.EndYear, s.cfg.Workers)
	if err != nil {
		return nil, fail(span, err)
	}

	res := &YearsResult{Comparison: cmp}
	means := make([]float64, 0, cmp.Average.Len())
	for _, p := range cmp.Average.Points() {
		means = append(means, p.Mean)
	}
	res.Summary = calculator.CalculateMetrics(cmp.Average.Unit(), means)
	for _, series := range cmp.Years {
		res.Overlaps += len(series.Overlaps())
		res.Skipped += len(series.Skipped())
	}

	s.logger.Info().
		Int("start_year", req.StartYear).
		Int("end_year", req.EndYear).
		Int("workers", s.cfg.Workers).
		Int("overlaps", res.Overlaps).
		Msg("Yearly timelines built")

	return res, nil
}

// Frequencies counts nights per city, metro or state
func (s *Service) Frequencies(ctx context.Context, opts report.FrequencyOptions) (*report.FrequencyTable, error) {
	ctx, span := s.tracer.Start(ctx, "service.Frequencies", trace.WithAttributes(
		attribute.String("by", string(opts.By)),
	))
	defer span.End()

	ds, err := s.load(ctx, opts.By == report.ByMetro)
	if err != nil {
		return nil, fail(span, err)
	}
	defer s.reportResolver(ds)

	if opts.Metros == nil {
		opts.Metros = ds.metros
	}
	if opts.Places.Cities == nil && opts.Places.Metros == nil && opts.Places.States == nil {
		if opts.Places, err = s.source.GetPlaces(ctx); err != nil {
			return nil, fail(span, fmt.Errorf("load places: %w", err))
		}
	}
	table, err := report.Frequencies(ds.store, s.parser, ds.resolver, opts)
	if err != nil {
		return nil, fail(span, err)
	}
	return table, nil
}

// AnnualNightCounts counts nights away per year and purpose through thruYear
func (s *Service) AnnualNightCounts(ctx context.Context, thruYear int) ([]report.AnnualCount, []string, error) {
	ds, err := s.load(ctx, false)
	if err != nil {
		return nil, nil, err
	}
	counts, purposes := report.AnnualNightCounts(ds.store, thruYear)
	return counts, purposes, nil
}

// HomeStays returns away/home periods in [start, end] and statistics for
// the current home stay
func (s *Service) HomeStays(ctx context.Context, start, end time.Time) ([]report.Period, report.HomeStats, bool, error) {
	if err := timeline.CheckSpan(start, end, s.cfg.MaxRangeYears); err != nil {
		return nil, report.HomeStats{}, false, err
	}
	ds, err := s.load(ctx, false)
	if err != nil {
		return nil, report.HomeStats{}, false, err
	}
	res, err := s.builder(ds, "").Resolve(ds.store, start, end)
	if err != nil {
		return nil, report.HomeStats{}, false, err
	}
	periods := report.Periods(res.Days)
	stats, ok := report.HomeStayStats(report.Pairs(periods))
	return periods, stats, ok, nil
}

// OverlayRequest selects a year and the earlier years drawn over it
type OverlayRequest struct {
	Year int
	// PriorFrom is the first earlier year; zero or Year means none
	PriorFrom int
	Unit      calculator.Unit
}

// BuildOverlay builds [PriorFrom, Year] as one timeline and re-dates each
// earlier year onto Year
func (s *Service) BuildOverlay(ctx context.Context, req OverlayRequest) (*aggregate.Overlay, error) {
	ctx, span := s.tracer.Start(ctx, "service.BuildOverlay", trace.WithAttributes(
		attribute.Int("year", req.Year),
		attribute.Int("prior_from", req.PriorFrom),
	))
	defer span.End()

	from := req.PriorFrom
	if from == 0 {
		from = req.Year
	}
	if err := timeline.CheckYears(from, req.Year, s.cfg.MaxRangeYears); err != nil {
		return nil, fail(span, err)
	}

	ds, err := s.load(ctx, false)
	if err != nil {
		return nil, fail(span, err)
	}
	defer s.reportResolver(ds)

	start, _ := calendar.YearBounds(from)
	_, end := calendar.YearBounds(req.Year)
	series, err := s.builder(ds, req.Unit).Build(ds.store, start, end)
	if err != nil {
		return nil, fail(span, err)
	}
	byYear, err := aggregate.SplitByYear(series)
	if err != nil {
		return nil, fail(span, err)
	}
	overlay, err := aggregate.NewOverlay(byYear, req.Year)
	if err != nil {
		return nil, fail(span, err)
	}

	s.logger.Info().
		Int("year", req.Year).
		Int("prior_years", len(overlay.Prior)).
		Str("unit", string(series.Unit())).
		Msg("Overlay built")
	return overlay, nil
}

// Process runs a queued job and writes its CSV; it is a queue.ProcessFunc
func (s *Service) Process(ctx context.Context, job *queue.Job) (*queue.JobResult, error) {
	s.logger.Info().
		Str("job_id", job.ID).
		Str("kind", string(job.Kind)).
		Msg("Processing timeline job")

	switch job.Kind {
	case queue.KindTimeline:
		res, err := s.BuildTimeline(ctx, Request{Start: job.Start, End: job.End, Unit: job.Unit})
		if err != nil {
			return nil, err
		}
		name := fmt.Sprintf("timeline_%s_%s_%s_%s.csv",
			res.Series.Start().Format("20060102"), res.Series.End().Format("20060102"), res.Series.Unit(), shortID(job.ID))
		path, err := s.writeCSV(name, func(w io.Writer) error { return export.WriteSeries(w, res.Series, export.CSV) })
		if err != nil {
			return nil, err
		}
		return &queue.JobResult{
			CSVPath:      path,
			Unit:         res.Summary.Unit,
			TotalDays:    res.Summary.TotalDays,
			DaysAway:     res.Summary.DaysAway,
			MaxDistance:  res.Summary.MaxDistance,
			MinDistance:  res.Summary.MinDistance,
			AvgDistance:  res.Summary.AvgDistance,
			Overlaps:     len(res.Overlaps),
			SkippedStays: len(res.Skipped),
		}, nil

	case queue.KindYears:
		res, err := s.BuildYears(ctx, YearsRequest{StartYear: job.StartYear, EndYear: job.EndYear, Unit: job.Unit})
		if err != nil {
			return nil, err
		}
		name := fmt.Sprintf("years_%d_%d_%s_%s.csv", job.StartYear, job.EndYear, res.Comparison.Average.Unit(), shortID(job.ID))
		path, err := s.writeCSV(name, func(w io.Writer) error { return export.WriteComparison(w, res.Comparison, export.CSV) })
		if err != nil {
			return nil, err
		}
		return &queue.JobResult{
			CSVPath:      path,
			Unit:         res.Summary.Unit,
			TotalDays:    res.Summary.TotalDays,
			DaysAway:     res.Summary.DaysAway,
			MaxDistance:  res.Summary.MaxDistance,
			MinDistance:  res.Summary.MinDistance,
			AvgDistance:  res.Summary.AvgDistance,
			Years:        len(res.Comparison.Years),
			Overlaps:     res.Overlaps,
			SkippedStays: res.Skipped,
		}, nil

	default:
		return nil, fmt.Errorf("%w: unknown kind %q", queue.ErrInvalidJob, job.Kind)
	}
}

// writeCSV creates name under the output directory and fills it with write
func (s *Service) writeCSV(name string, write func(io.Writer) error) (string, error) {
	if err := os.MkdirAll(s.cfg.OutputDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	path := filepath.Join(s.cfg.OutputDir, name)

	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create CSV file: %w", err)
	}
	if err := write(file); err != nil {
		_ = file.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("failed to write CSV file: %w", err)
	}
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("failed to close CSV file: %w", err)
	}

	s.logger.Info().Str("csv_path", path).Msg("CSV file generated successfully")
	return path, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
