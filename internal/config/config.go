package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/bird-flu-hotspots/internal/domain"
	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Region sources and weights providers.
const (
	SourceGeoJSON = "geojson"
	SourcePostGIS = "postgis"

	WeightsQueen   = "queen"
	WeightsPostGIS = "postgis"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	RegionSource    string
	RegionsPath     string
	DatabaseURL     string
	WeightsProvider string

	Attribute    string
	Alpha        float64
	Permutations int
	Seed         *uint64
	Workers      int
	PValueMode   domain.PValueMode

	OutputPath        string
	SimplifyTolerance float64

	KafkaBrokers    []string
	KafkaSinkTopic  string
	KafkaEnabled    bool
	SinkMaxAttempts int

	HTTPEnabled     bool
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
}

// UsesPostGIS reports whether any stage needs a database connection.
func (c *Config) UsesPostGIS() bool {
	return c.RegionSource == SourcePostGIS || c.WeightsProvider == WeightsPostGIS
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	alpha, err := parseFloat("ALPHA", domain.DefaultAlpha)
	if err != nil {
		return nil, err
	}
	if err := domain.ValidateAlpha(alpha); err != nil {
		return nil, fmt.Errorf("invalid ALPHA: %w", err)
	}

	permutations, err := parseInt("PERMUTATIONS", 999)
	if err != nil {
		return nil, err
	}
	if permutations < 1 {
		return nil, errors.New("PERMUTATIONS must be at least 1")
	}

	workers, err := parseInt("WORKERS", runtime.GOMAXPROCS(0))
	if err != nil {
		return nil, err
	}
	if workers < 1 {
		return nil, errors.New("WORKERS must be at least 1")
	}

	seed, err := parseSeed()
	if err != nil {
		return nil, err
	}

	mode, err := domain.ParsePValueMode(sharedcfg.EnvOrDefault("PVALUE_MODE", string(domain.TwoSided)))
	if err != nil {
		return nil, fmt.Errorf("invalid PVALUE_MODE: %w", err)
	}

	tolerance, err := parseFloat("SIMPLIFY_TOLERANCE", 0)
	if err != nil {
		return nil, err
	}
	if tolerance < 0 {
		return nil, errors.New("SIMPLIFY_TOLERANCE must not be negative")
	}

	maxAttempts, err := parseInt("SINK_MAX_ATTEMPTS", 3)
	if err != nil {
		return nil, err
	}
	if maxAttempts < 1 {
		return nil, errors.New("SINK_MAX_ATTEMPTS must be at least 1")
	}

	cfg := &Config{
		RegionSource:    strings.ToLower(sharedcfg.EnvOrDefault("REGION_SOURCE", SourceGeoJSON)),
		RegionsPath:     sharedcfg.EnvOrDefault("REGIONS_PATH", "data/admin_areas.geojson"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		WeightsProvider: strings.ToLower(sharedcfg.EnvOrDefault("WEIGHTS_PROVIDER", WeightsQueen)),

		Attribute:    strings.ToLower(sharedcfg.EnvOrDefault("ATTRIBUTE", domain.PropInfected.Name)),
		Alpha:        alpha,
		Permutations: permutations,
		Seed:         seed,
		Workers:      workers,
		PValueMode:   mode,

		OutputPath:        sharedcfg.EnvOrDefault("OUTPUT_PATH", "maps/hotspots.geojson"),
		SimplifyTolerance: tolerance,

		KafkaBrokers:    sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSinkTopic:  sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "bird-flu-hotspots"),
		KafkaEnabled:    os.Getenv("KAFKA_ENABLED") == "true",
		SinkMaxAttempts: maxAttempts,

		HTTPEnabled:     os.Getenv("HTTP_ENABLED") == "true",
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
	}
	// An explicitly empty OUTPUT_PATH disables the file sink.
	if v, ok := os.LookupEnv("OUTPUT_PATH"); ok && v == "" {
		cfg.OutputPath = ""
	}

	switch cfg.RegionSource {
	case SourceGeoJSON:
		if cfg.RegionsPath == "" {
			return nil, errors.New("REGIONS_PATH is required when REGION_SOURCE is geojson")
		}
	case SourcePostGIS:
	default:
		return nil, fmt.Errorf("invalid REGION_SOURCE %q", cfg.RegionSource)
	}
	switch cfg.WeightsProvider {
	case WeightsQueen, WeightsPostGIS:
	default:
		return nil, fmt.Errorf("invalid WEIGHTS_PROVIDER %q", cfg.WeightsProvider)
	}
	if cfg.UsesPostGIS() && cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required when REGION_SOURCE or WEIGHTS_PROVIDER is postgis")
	}
	if _, ok := domain.AttributeByName(cfg.Attribute); !ok {
		return nil, fmt.Errorf("invalid ATTRIBUTE %q (want one of %s)", cfg.Attribute, strings.Join(domain.AttributeNames(), ", "))
	}
	if cfg.KafkaEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required")
		}
		if cfg.KafkaSinkTopic == "" {
			return nil, errors.New("KAFKA_SINK_TOPIC is required")
		}
	}

	return cfg, nil
}

func parseInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func parseFloat(key string, def float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func parseSeed() (*uint64, error) {
	s := os.Getenv("SEED")
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid SEED: %w", err)
	}
	return &v, nil
}
