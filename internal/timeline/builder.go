package timeline

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/stuartshay/stay-timeline/internal/calculator"
	"github.com/stuartshay/stay-timeline/internal/calendar"
	"github.com/stuartshay/stay-timeline/internal/geocode"
	"github.com/stuartshay/stay-timeline/internal/location"
	"github.com/stuartshay/stay-timeline/internal/stays"
)

// Observer receives build outcomes, e.g. for metrics
type Observer interface {
	BuildSucceeded(days, overlaps int, elapsed time.Duration)
	BuildFailed(err error, elapsed time.Duration)
}

// Builder turns stays into distance series
type Builder struct {
	parser   *location.Parser
	resolver *geocode.Resolver
	unit     calculator.Unit
	policy   MalformedPolicy
	logger   zerolog.Logger
	observer Observer
}

// Option configures a Builder
type Option func(*Builder)

// WithUnit sets the output distance unit (default miles)
func WithUnit(u calculator.Unit) Option {
	return func(b *Builder) { b.unit = u }
}

// WithMalformedPolicy sets how malformed location codes are handled
func WithMalformedPolicy(p MalformedPolicy) Option {
	return func(b *Builder) { b.policy = p }
}

// WithLogger sets the logger used for overlap and skip warnings
func WithLogger(l zerolog.Logger) Option {
	return func(b *Builder) { b.logger = l }
}

// WithObserver registers a build observer
func WithObserver(o Observer) Option {
	return func(b *Builder) { b.observer = o }
}

// NewBuilder creates a builder. The resolver may be shared between builders
// and goroutines; its cache is safe for concurrent use.
func NewBuilder(parser *location.Parser, resolver *geocode.Resolver, opts ...Option) *Builder {
	b := &Builder{
		parser:   parser,
		resolver: resolver,
		unit:     calculator.Miles,
		policy:   PolicyAbort,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Unit returns the builder's distance unit
func (b *Builder) Unit() calculator.Unit { return b.unit }

// Parser returns the builder's location parser
func (b *Builder) Parser() *location.Parser { return b.parser }

// Resolver returns the builder's coordinate resolver
func (b *Builder) Resolver() *geocode.Resolver { return b.resolver }

// Resolve returns the daily locations for [start, end] without computing
// distances
func (b *Builder) Resolve(store *stays.Store, start, end time.Time) (*Resolution, error) {
	return NewDayResolver(b.parser, b.policy, b.logger).Resolve(store, start, end)
}

// Build returns one distance-from-home value per day in [start, end]. It
// either succeeds for the whole range or returns an error and no series.
func (b *Builder) Build(store *stays.Store, start, end time.Time) (*Series, error) {
	began := time.Now()
	series, err := b.build(store, start, end)
	if b.observer != nil {
		if err != nil {
			b.observer.BuildFailed(err, time.Since(began))
		} else {
			b.observer.BuildSucceeded(series.Len(), len(series.overlaps), time.Since(began))
		}
	}
	return series, err
}

func (b *Builder) build(store *stays.Store, start, end time.Time) (*Series, error) {
	res, err := b.Resolve(store, start, end)
	if err != nil {
		return nil, err
	}

	var (
		home      calculator.Coordinate
		homeReady bool
		distances = make(map[location.Code]float64)
		points    = make([]Point, len(res.Days))
	)

	for i, day := range res.Days {
		points[i] = Point{Date: day.Date, Code: day.Code}

		switch day.Code.Kind() {
		case location.KindHome:
			continue
		case location.KindPlace, location.KindFlight:
		default:
			return nil, &DayError{Date: day.Date, Code: day.Code.String(), Err: location.ErrMalformedLocationCode}
		}

		if d, ok := distances[day.Code]; ok {
			points[i].Distance = d
			continue
		}

		if !homeReady {
			home, err = b.resolver.Resolve(b.parser.Home())
			if err != nil {
				return nil, &DayError{Date: day.Date, Code: b.parser.Home().String(), Err: err}
			}
			homeReady = true
		}

		coord, err := b.resolver.Resolve(day.Code)
		if err != nil {
			return nil, &DayError{Date: day.Date, Code: day.Code.String(), Err: err}
		}

		d := calculator.Distance(home, coord, b.unit)
		distances[day.Code] = d
		points[i].Distance = d
	}

	b.logger.Debug().
		Str("start", calendar.Format(res.Days[0].Date)).
		Str("end", calendar.Format(res.Days[len(res.Days)-1].Date)).
		Int("locations", len(distances)).
		Int("overlaps", len(res.Overlaps)).
		Msg("Timeline built")

	return &Series{
		unit:     b.unit,
		points:   points,
		overlaps: res.Overlaps,
		skipped:  res.Skipped,
	}, nil
}
