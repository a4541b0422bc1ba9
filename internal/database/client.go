// Package database provides PostgreSQL client functionality for loading
// stay records, the city/metro coordinate tables and place names with
// connection pooling and health checks.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/stuartshay/stay-timeline/internal/calculator"
	"github.com/stuartshay/stay-timeline/internal/geocode"
	"github.com/stuartshay/stay-timeline/internal/report"
	"github.com/stuartshay/stay-timeline/internal/stays"
)

const tracerName = "github.com/stuartshay/stay-timeline/internal/database"

// Client wraps a PostgreSQL database connection
type Client struct {
	db     *sqlx.DB
	tracer trace.Tracer
}

// Option configures NewClient
type Option func(*clientOptions)

type clientOptions struct {
	maxRetries  uint64
	pingTimeout time.Duration
}

// WithMaxRetries sets how many times the initial ping is retried
func WithMaxRetries(n uint64) Option {
	return func(o *clientOptions) { o.maxRetries = n }
}

// WithPingTimeout bounds each ping attempt
func WithPingTimeout(d time.Duration) Option {
	return func(o *clientOptions) { o.pingTimeout = d }
}

// stayRow is one row of the stays table
type stayRow struct {
	CheckoutDate time.Time      `db:"checkout_date"`
	Nights       int            `db:"nights"`
	CityID       string         `db:"city_id"`
	MetroID      sql.NullString `db:"metro_id"`
	Purpose      sql.NullString `db:"purpose"`
}

func (r stayRow) record() stays.Record {
	return stays.Record{
		CheckoutDate: r.CheckoutDate,
		Nights:       r.Nights,
		CityID:       r.CityID,
		MetroID:      r.MetroID.String,
		Purpose:      r.Purpose.String,
	}
}

// coordinateRow is an id with a position, from either cities or metros
type coordinateRow struct {
	ID        string          `db:"id"`
	Latitude  sql.NullFloat64 `db:"latitude"`
	Longitude sql.NullFloat64 `db:"longitude"`
}

// coordinateTable keeps rows with both coordinates set and in range. It
// also returns the ids of rows dropped for out-of-range values.
func coordinateTable(rows []coordinateRow) (geocode.MapTable, []string) {
	table := make(geocode.MapTable, len(rows))
	var invalid []string
	for _, r := range rows {
		if !r.Latitude.Valid || !r.Longitude.Valid {
			continue
		}
		c := calculator.Coordinate{Latitude: r.Latitude.Float64, Longitude: r.Longitude.Float64}
		if !c.Valid() {
			invalid = append(invalid, r.ID)
			continue
		}
		table.Add(r.ID, c)
	}
	return table, invalid
}

type cityRow struct {
	ID      string         `db:"id"`
	Name    sql.NullString `db:"name"`
	MetroID sql.NullString `db:"metro_id"`
}

type metroRow struct {
	ID        string         `db:"id"`
	Title     sql.NullString `db:"title"`
	ShortName sql.NullString `db:"short_name"`
}

type stateRow struct {
	Abbrev string `db:"abbrev"`
	Name   string `db:"name"`
}

func placeKey(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}

func newPlaces(cities []cityRow, metros []metroRow, states []stateRow) report.Places {
	p := report.Places{
		Cities: make(map[string]report.City, len(cities)),
		Metros: make(map[string]report.Metro, len(metros)),
		States: make(map[string]string, len(states)),
	}
	for _, c := range cities {
		p.Cities[placeKey(c.ID)] = report.City{Name: c.Name.String, MetroID: placeKey(c.MetroID.String)}
	}
	for _, m := range metros {
		p.Metros[placeKey(m.ID)] = report.Metro{Title: m.Title.String, ShortName: m.ShortName.String}
	}
	for _, s := range states {
		p.States[placeKey(s.Abbrev)] = s.Name
	}
	return p
}

// NewClient creates a new database client with connection pooling. The
// initial ping is retried with exponential backoff.
func NewClient(ctx context.Context, dsn string, opts ...Option) (*Client, error) {
	o := clientOptions{maxRetries: 5, pingTimeout: 5 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}

	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(1 * time.Minute)

	ping := func() error {
		pingCtx, cancel := context.WithTimeout(ctx, o.pingTimeout)
		defer cancel()
		return db.PingContext(pingCtx)
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), o.maxRetries), ctx)

	if err := backoff.Retry(ping, bo); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to ping database: %w (also failed to close: %w)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Client{db: db, tracer: otel.Tracer(tracerName)}, nil
}

// Close closes the database connection
func (c *Client) Close() error {
	return c.db.Close()
}

// GetStays retrieves every stay record ordered by checkout date
func (c *Client) GetStays(ctx context.Context) ([]stays.Record, error) {
	ctx, span := c.tracer.Start(ctx, "database.GetStays")
	defer span.End()

	query := `
		SELECT checkout_date, nights, city_id, metro_id, purpose
		FROM public.stays
		ORDER BY checkout_date ASC
	`

	var rows []stayRow
	if err := c.db.SelectContext(ctx, &rows, query); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return nil, fmt.Errorf("query stays failed: %w", err)
	}

	records := make([]stays.Record, len(rows))
	for i, r := range rows {
		records[i] = r.record()
	}
	span.SetAttributes(attribute.Int("stays.count", len(records)))

	return records, nil
}

// GetCityCoordinates returns the coordinate table for cities, regions and
// airports keyed by location code
func (c *Client) GetCityCoordinates(ctx context.Context) (geocode.MapTable, error) {
	return c.coordinates(ctx, "database.GetCityCoordinates", `SELECT id, latitude, longitude FROM public.cities`)
}

// GetMetroCoordinates returns the coordinate table for metro areas keyed by
// metro id
func (c *Client) GetMetroCoordinates(ctx context.Context) (geocode.MapTable, error) {
	return c.coordinates(ctx, "database.GetMetroCoordinates", `SELECT id, latitude, longitude FROM public.metros`)
}

func (c *Client) coordinates(ctx context.Context, spanName, query string) (geocode.MapTable, error) {
	ctx, span := c.tracer.Start(ctx, spanName)
	defer span.End()

	var rows []coordinateRow
	if err := c.db.SelectContext(ctx, &rows, query); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return nil, fmt.Errorf("query coordinates failed: %w", err)
	}

	table, invalid := coordinateTable(rows)
	span.SetAttributes(
		attribute.Int("coordinates.count", len(table)),
		attribute.StringSlice("coordinates.out_of_range", invalid),
	)
	return table, nil
}

// GetPlaces returns display names for cities, metro areas and US states,
// and the metro each city currently belongs to
func (c *Client) GetPlaces(ctx context.Context) (report.Places, error) {
	ctx, span := c.tracer.Start(ctx, "database.GetPlaces")
	defer span.End()

	var cities []cityRow
	if err := c.db.SelectContext(ctx, &cities, `SELECT id, name, metro_id FROM public.cities`); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return report.Places{}, fmt.Errorf("query cities failed: %w", err)
	}

	var metros []metroRow
	if err := c.db.SelectContext(ctx, &metros, `SELECT id, title, short_name FROM public.metros`); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return report.Places{}, fmt.Errorf("query metros failed: %w", err)
	}

	var states []stateRow
	if err := c.db.SelectContext(ctx, &states, `SELECT abbrev, name FROM public.us_states`); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return report.Places{}, fmt.Errorf("query states failed: %w", err)
	}

	span.SetAttributes(
		attribute.Int("cities.count", len(cities)),
		attribute.Int("metros.count", len(metros)),
		attribute.Int("states.count", len(states)),
	)
	return newPlaces(cities, metros, states), nil
}

// HealthCheck verifies database connectivity
func (c *Client) HealthCheck(ctx context.Context) error {
	return c.db.PingContext(ctx)
}
