package pipeline

import (
	"context"
	"io"
	"log/slog"

	"github.com/couchcryptid/bird-flu-hotspots/internal/domain"
	"github.com/couchcryptid/bird-flu-hotspots/internal/observability"
	"github.com/couchcryptid/bird-flu-hotspots/internal/spatial"
	"github.com/couchcryptid/bird-flu-hotspots/internal/stats"
)

// ComputeOptions configures a single ComputeHotspots call. Zero values mean
// alpha 0.05, 999 permutations, a random seed, GOMAXPROCS workers, two-sided
// p-values and Queen contiguity.
type ComputeOptions struct {
	Alpha        float64
	Permutations int
	Seed         *uint64
	Workers      int
	Mode         domain.PValueMode

	// Weights replaces the in-process Queen builder.
	Weights WeightsProvider
	Logger  *slog.Logger
}

// ComputeHotspots is the batch entry point: it classifies every region by
// the local G* statistic of attr and returns the results keyed by region id.
// The regions slice is not modified.
func ComputeHotspots(ctx context.Context, regions []domain.Region, attr domain.Attribute, opts ComputeOptions) (map[string]domain.HotspotResult, error) {
	report, err := ComputeReport(ctx, regions, attr, opts)
	if err != nil {
		return nil, err
	}
	return report.ByRegion(), nil
}

// ComputeReport is ComputeHotspots returning the full report, warnings
// included.
func ComputeReport(ctx context.Context, regions []domain.Region, attr domain.Attribute, opts ComputeOptions) (*domain.HotspotReport, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	alpha := opts.Alpha
	if alpha == 0 {
		alpha = domain.DefaultAlpha
	}
	wp := opts.Weights
	if wp == nil {
		wp = spatial.NewQueenBuilder(spatial.DefaultTolerance, logger)
	}
	engine, err := stats.New(stats.Config{
		Permutations: opts.Permutations,
		Seed:         opts.Seed,
		Workers:      opts.Workers,
		Mode:         opts.Mode,
	}, logger)
	if err != nil {
		return nil, err
	}

	p := New(staticSource(regions), wp, engine, nil, Options{Attribute: attr, Alpha: alpha}, logger, observability.NewUnregisteredMetrics())
	return p.Run(ctx)
}

// staticSource serves an in-memory region table.
type staticSource []domain.Region

func (s staticSource) LoadRegions(_ context.Context) ([]domain.Region, error) {
	return s, nil
}
