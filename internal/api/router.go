// Package api provides the HTTP surface of the timeline service: health
// checks, Prometheus metrics and synchronous reports.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/stuartshay/stay-timeline/internal/aggregate"
	"github.com/stuartshay/stay-timeline/internal/report"
	"github.com/stuartshay/stay-timeline/internal/service"
)

// Timelines is the part of service.Service the HTTP handlers use
type Timelines interface {
	BuildTimeline(ctx context.Context, req service.Request) (*service.Result, error)
	BuildYears(ctx context.Context, req service.YearsRequest) (*service.YearsResult, error)
	Frequencies(ctx context.Context, opts report.FrequencyOptions) (*report.FrequencyTable, error)
	AnnualNightCounts(ctx context.Context, thruYear int) ([]report.AnnualCount, []string, error)
	BuildOverlay(ctx context.Context, req service.OverlayRequest) (*aggregate.Overlay, error)
	HomeStays(ctx context.Context, start, end time.Time) ([]report.Period, report.HomeStats, bool, error)
}

// Pinger reports whether a dependency is reachable
type Pinger interface {
	HealthCheck(ctx context.Context) error
}

// RouterConfig holds configuration for the router
type RouterConfig struct {
	ServiceName string
	Logger      zerolog.Logger
	Timelines   Timelines
	// Database is checked by /readyz; nil means always ready
	Database Pinger
	// Metrics serves /metrics when set
	Metrics http.Handler
	// ReadyTimeout bounds the readiness ping, default 2s
	ReadyTimeout time.Duration
}

// NewRouter creates a chi router with all routes configured
func NewRouter(cfg RouterConfig) *chi.Mux {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "stay-timeline"
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = 2 * time.Second
	}

	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(hlog.NewHandler(cfg.Logger))
	r.Use(hlog.RequestIDHandler("request_id", "X-Request-Id"))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("bytes", size).
			Dur("duration", duration).
			Msg("request completed")
	}))
	r.Use(chimiddleware.Recoverer)

	h := &handler{cfg: cfg}

	r.Get("/healthz", h.healthz)
	r.Get("/readyz", h.readyz)
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/timeline.csv", h.timelineCSV)
		r.Get("/average.csv", h.averageCSV)
		r.Get("/frequencies.csv", h.frequenciesCSV)
		r.Get("/annual.csv", h.annualCSV)
		r.Get("/overlay.csv", h.overlayCSV)
		r.Get("/home-stays", h.homeStays)
	})

	return r
}
