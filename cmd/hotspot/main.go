// Command hotspot runs the Getis-Ord G* hot-spot analysis once over the
// configured region table and publishes the result. With HTTP_ENABLED it
// keeps serving /hotspots, /healthz, /readyz and /metrics until signalled.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/bird-flu-hotspots/internal/adapter/geofile"
	"github.com/couchcryptid/bird-flu-hotspots/internal/adapter/httpadapter"
	kafkaadapter "github.com/couchcryptid/bird-flu-hotspots/internal/adapter/kafka"
	"github.com/couchcryptid/bird-flu-hotspots/internal/adapter/postgis"
	"github.com/couchcryptid/bird-flu-hotspots/internal/config"
	"github.com/couchcryptid/bird-flu-hotspots/internal/domain"
	"github.com/couchcryptid/bird-flu-hotspots/internal/observability"
	"github.com/couchcryptid/bird-flu-hotspots/internal/pipeline"
	"github.com/couchcryptid/bird-flu-hotspots/internal/spatial"
	"github.com/couchcryptid/bird-flu-hotspots/internal/stats"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	if err := run(cfg, logger); err != nil {
		logger.Error("hot-spot service failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var store *postgis.Store
	if cfg.UsesPostGIS() {
		var err error
		store, err = postgis.Open(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := store.Close(); err != nil {
				logger.Error("postgis close error", "error", err)
			}
		}()
	}

	var source pipeline.RegionSource = geofile.NewLoader(cfg.RegionsPath, logger)
	if cfg.RegionSource == config.SourcePostGIS {
		source = store
	}
	var weights pipeline.WeightsProvider = spatial.NewQueenBuilder(spatial.DefaultTolerance, logger)
	if cfg.WeightsProvider == config.WeightsPostGIS {
		weights = store
	}

	computer, err := stats.New(stats.Config{
		Permutations: cfg.Permutations,
		Seed:         cfg.Seed,
		Workers:      cfg.Workers,
		Mode:         cfg.PValueMode,
	}, logger)
	if err != nil {
		return err
	}

	var sinks []pipeline.Sink
	if cfg.OutputPath != "" {
		sinks = append(sinks, pipeline.Sink{Name: "geojson", Loader: geofile.NewWriter(cfg.OutputPath, cfg.SimplifyTolerance, logger)})
	}
	if cfg.KafkaEnabled {
		writer := kafkaadapter.NewWriter(cfg, logger)
		defer func() {
			if err := writer.Close(); err != nil {
				logger.Error("kafka writer close error", "error", err)
			}
		}()
		sinks = append(sinks, pipeline.Sink{Name: "kafka", Loader: writer})
	}

	attr, ok := domain.AttributeByName(cfg.Attribute)
	if !ok {
		return fmt.Errorf("unknown attribute %q", cfg.Attribute)
	}
	p := pipeline.New(source, weights, computer, sinks, pipeline.Options{
		Attribute:       attr,
		Alpha:           cfg.Alpha,
		SinkMaxAttempts: cfg.SinkMaxAttempts,
	}, logger, metrics)

	if !cfg.HTTPEnabled {
		report, err := p.Run(ctx)
		if report != nil {
			printSummary(report)
		}
		return err
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, p, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Run the analysis once; the server keeps serving its result.
	go func() {
		report, err := p.Run(ctx)
		if err != nil {
			logger.Error("hot-spot run failed", "error", err)
		}
		if report != nil {
			printSummary(report)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	logger.Info("shutdown complete")
	return nil
}

func printSummary(report *domain.HotspotReport) {
	fmt.Printf("run %s: %d hot, %d cold, %d not significant (attribute=%s alpha=%g permutations=%d seed=%d)\n",
		report.RunID, len(report.Partition.Hot), len(report.Partition.Cold), len(report.Partition.NotSignificant),
		report.Attribute, report.Alpha, report.Permutations, report.Seed)
	for _, w := range report.Warnings {
		fmt.Println("warning:", w)
	}
}
