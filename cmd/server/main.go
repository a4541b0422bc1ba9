package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/stuartshay/stay-timeline/internal/api"
	"github.com/stuartshay/stay-timeline/internal/config"
	"github.com/stuartshay/stay-timeline/internal/database"
	"github.com/stuartshay/stay-timeline/internal/events"
	grpcserver "github.com/stuartshay/stay-timeline/internal/grpc"
	"github.com/stuartshay/stay-timeline/internal/metrics"
	"github.com/stuartshay/stay-timeline/internal/queue"
	"github.com/stuartshay/stay-timeline/internal/service"
	"github.com/stuartshay/stay-timeline/internal/tracing"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	// Initialize structured logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})

	log.Info().Str("version", version).Msg("Starting stay-timeline service")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	zerolog.SetGlobalLevel(cfg.LogLevel)

	log.Info().
		Str("service_name", cfg.ServiceName).
		Str("environment", cfg.Environment).
		Str("grpc_port", cfg.GRPCPort).
		Str("http_port", cfg.HTTPPort).
		Str("db_host", cfg.PostgresHost).
		Str("db_port", cfg.PostgresPort).
		Str("home", cfg.HomeLocation).
		Str("unit", string(cfg.DistanceUnit)).
		Str("malformed_policy", cfg.MalformedPolicy.String()).
		Int("workers", cfg.Workers).
		Int("max_range_years", cfg.MaxRangeYears).
		Msg("Configuration loaded")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Tracing
	shutdownTracer, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    cfg.ServiceName,
		ServiceVersion: version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		Enabled:        cfg.OTELEnabled,
		SampleRatio:    cfg.OTELSampleRatio,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize tracing")
	}

	// Initialize database client
	dbClient, err := database.NewClient(ctx, cfg.DatabaseDSN())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database client")
	}
	defer func() { _ = dbClient.Close() }()

	log.Info().Msg("Database connection established")

	collector := metrics.NewCollector()

	// Job lifecycle events
	var publisher events.Publisher = events.NopPublisher{}
	if cfg.NATSURL != "" {
		natsPublisher, err := events.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubject, collector, log.Logger)
		if err != nil {
			log.Fatal().Err(err).Str("url", cfg.NATSURL).Msg("Failed to connect to NATS")
		}
		publisher = natsPublisher
		log.Info().Str("subject", cfg.NATSSubject).Msg("Publishing job events to NATS")
	}

	svc, err := service.New(dbClient, service.Config{
		HomeLocation:    cfg.HomeLocation,
		FlightPrefix:    cfg.FlightPrefix,
		Unit:            cfg.DistanceUnit,
		MalformedPolicy: cfg.MalformedPolicy,
		Workers:         cfg.Workers,
		OutputDir:       cfg.CSVOutputPath,
		MaxRangeYears:   cfg.MaxRangeYears,
	},
		service.WithLogger(log.Logger),
		service.WithBuildObserver(collector),
		service.WithResolverObserver(collector.ObserveResolver),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create timeline service")
	}

	jobs := queue.NewQueue(cfg.Workers, svc.Process,
		queue.WithLogger(log.Logger),
		queue.WithMaxRangeYears(cfg.MaxRangeYears),
		queue.WithListener(collector.JobFinished),
		queue.WithListener(events.JobListener(publisher, log.Logger)),
	)
	collector.WatchQueue(jobs)

	timelineServer := grpcserver.NewServer(jobs, log.Logger)
	grpcServer, healthServer := newGRPCServer(timelineServer)

	// Start gRPC server
	listener, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.GRPCPort))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create TCP listener")
	}

	go func() {
		log.Info().Str("port", cfg.GRPCPort).Msg("gRPC server listening")
		if err := grpcServer.Serve(listener); err != nil {
			log.Fatal().Err(err).Msg("gRPC server failed")
		}
	}()

	// Start HTTP server
	httpServer := &http.Server{
		Addr: fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler: api.NewRouter(api.RouterConfig{
			ServiceName: cfg.ServiceName,
			Logger:      log.Logger,
			Timelines:   svc,
			Database:    dbClient,
			Metrics:     collector.Handler(),
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.HTTPPort).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("Shutdown signal received, gracefully stopping...")
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	// Stop gRPC server
	stopped := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-shutdownCtx.Done():
		log.Warn().Msg("Shutdown timeout exceeded, forcing stop")
		grpcServer.Stop()
	case <-stopped:
		log.Info().Msg("gRPC server stopped")
	}

	// Shutdown timeline workers
	if err := timelineServer.Shutdown(10 * time.Second); err != nil {
		log.Error().Err(err).Msg("Failed to shutdown timeline workers")
	}

	publisher.Close()

	if err := shutdownTracer(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Failed to flush traces")
	}

	log.Info().Msg("Service shutdown complete")
}

// newGRPCServer creates an instrumented gRPC server with the timeline,
// health and reflection services registered
func newGRPCServer(timelines grpcserver.TimelineServiceServer) (*grpc.Server, *health.Server) {
	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))

	grpcserver.RegisterTimelineServiceServer(grpcServer, timelines)

	// Register health check service
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(grpcserver.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	// Enable server reflection for debugging
	reflection.Register(grpcServer)

	return grpcServer, healthServer
}
