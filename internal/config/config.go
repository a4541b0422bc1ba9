// Package config provides application configuration management,
// loading settings from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/stuartshay/stay-timeline/internal/calculator"
	"github.com/stuartshay/stay-timeline/internal/location"
	"github.com/stuartshay/stay-timeline/internal/timeline"
)

// Config holds all configuration for the application
type Config struct {
	// Service configuration
	ServiceName string
	Environment string
	GRPCPort    string
	HTTPPort    string

	// Database configuration
	PostgresHost     string
	PostgresPort     string
	PostgresDB       string
	PostgresUser     string
	PostgresPassword string

	// Timeline configuration
	HomeLocation    string
	FlightPrefix    string
	DistanceUnit    calculator.Unit
	MalformedPolicy timeline.MalformedPolicy
	Workers         int
	// MaxRangeYears bounds the span of any requested range
	MaxRangeYears int

	// CSV output path
	CSVOutputPath string

	// NATS configuration, events are disabled when NATSURL is empty
	NATSURL     string
	NATSSubject string

	// OpenTelemetry configuration
	OTELEnabled     bool
	OTELEndpoint    string
	OTELSampleRatio float64

	// Logging
	LogLevel zerolog.Level
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	cfg := &Config{
		ServiceName: getEnv("SERVICE_NAME", "stay-timeline"),
		Environment: getEnv("ENVIRONMENT", "development"),
		GRPCPort:    getEnv("GRPC_PORT", "50051"),
		HTTPPort:    getEnv("HTTP_PORT", "8080"),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresDB:       getEnv("POSTGRES_DB", "travel"),
		PostgresUser:     getEnv("POSTGRES_USER", "development"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "development"),

		HomeLocation: strings.ToUpper(getEnv("HOME_LOCATION", "US/OH/BEAVERCREEK")),
		FlightPrefix: strings.ToUpper(getEnv("FLIGHT_PREFIX", location.DefaultFlightPrefix)),

		CSVOutputPath: getEnv("CSV_OUTPUT_PATH", "/data/csv"),
		NATSURL:       os.Getenv("NATS_URL"),
		NATSSubject:   getEnv("NATS_SUBJECT", "stay-timeline.jobs"),
		OTELEndpoint:  getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
	}

	var err error
	cfg.DistanceUnit, err = calculator.ParseUnit(getEnv("DISTANCE_UNIT", string(calculator.Miles)))
	if err != nil {
		return nil, fmt.Errorf("invalid DISTANCE_UNIT: %w", err)
	}

	cfg.MalformedPolicy, err = timeline.ParsePolicy(getEnv("MALFORMED_POLICY", "abort"))
	if err != nil {
		return nil, fmt.Errorf("invalid MALFORMED_POLICY: %w", err)
	}

	cfg.Workers, err = parseInt("WORKERS", "4")
	if err != nil {
		return nil, fmt.Errorf("invalid WORKERS: %w", err)
	}
	if cfg.Workers < 1 {
		return nil, fmt.Errorf("invalid WORKERS: must be at least 1, got %d", cfg.Workers)
	}

	cfg.MaxRangeYears, err = parseInt("MAX_RANGE_YEARS", "100")
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_RANGE_YEARS: %w", err)
	}
	if cfg.MaxRangeYears < 1 {
		return nil, fmt.Errorf("invalid MAX_RANGE_YEARS: must be at least 1, got %d", cfg.MaxRangeYears)
	}

	cfg.OTELEnabled, err = strconv.ParseBool(getEnv("OTEL_ENABLED", "false"))
	if err != nil {
		return nil, fmt.Errorf("invalid OTEL_ENABLED: %w", err)
	}

	cfg.OTELSampleRatio, err = strconv.ParseFloat(getEnv("OTEL_TRACES_SAMPLER_ARG", "1"), 64)
	if err != nil || cfg.OTELSampleRatio < 0 || cfg.OTELSampleRatio > 1 {
		return nil, fmt.Errorf("invalid OTEL_TRACES_SAMPLER_ARG: must be between 0 and 1")
	}

	cfg.LogLevel, err = zerolog.ParseLevel(strings.ToLower(getEnv("LOG_LEVEL", "info")))
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	if _, err := location.NewParser(cfg.HomeLocation, location.WithFlightPrefix(cfg.FlightPrefix)); err != nil {
		return nil, fmt.Errorf("invalid HOME_LOCATION: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN returns the PostgreSQL connection string
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s dbname=%s user=%s password=%s sslmode=disable",
		c.PostgresHost,
		c.PostgresPort,
		c.PostgresDB,
		c.PostgresUser,
		c.PostgresPassword,
	)
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseInt parses an int from an environment variable or default value
func parseInt(key, defaultValue string) (int, error) {
	return strconv.Atoi(getEnv(key, defaultValue))
}
