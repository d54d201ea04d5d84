package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/bird-flu-hotspots/internal/domain"
	"github.com/couchcryptid/bird-flu-hotspots/internal/observability"
)

// RegionSource loads the region table: geometry plus capture counts.
type RegionSource interface {
	LoadRegions(ctx context.Context) ([]domain.Region, error)
}

// WeightsProvider derives the neighbour relation for a region table.
type WeightsProvider interface {
	Weights(ctx context.Context, regions []domain.Region) (*domain.Weights, error)
}

// LocalStatisticComputer evaluates a local statistic for values laid out in
// w.IDs() order.
type LocalStatisticComputer interface {
	Compute(ctx context.Context, values []float64, w *domain.Weights) (*domain.LocalResult, error)
}

// ReportLoader writes a finished report to a destination.
type ReportLoader interface {
	LoadReport(ctx context.Context, report *domain.HotspotReport) error
}

// Sink is a named ReportLoader. The name labels logs and metrics.
type Sink struct {
	Name   string
	Loader ReportLoader
}

// Options are the analysis settings of a pipeline.
type Options struct {
	Attribute       domain.Attribute
	Alpha           float64
	SinkMaxAttempts int
}

// Pipeline runs load -> weights -> local statistic -> classify -> sinks once
// per Run call.
type Pipeline struct {
	source   RegionSource
	weights  WeightsProvider
	computer LocalStatisticComputer
	sinks    []Sink
	opts     Options
	logger   *slog.Logger
	metrics  *observability.Metrics
	ready    atomic.Bool
	latest   atomic.Pointer[domain.HotspotReport]
}

// New creates a Pipeline with the given stages and observability.
func New(src RegionSource, wp WeightsProvider, lsc LocalStatisticComputer, sinks []Sink, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	if opts.SinkMaxAttempts < 1 {
		opts.SinkMaxAttempts = 1
	}
	if opts.Attribute.Value == nil {
		opts.Attribute = domain.PropInfected
	}
	return &Pipeline{
		source:   src,
		weights:  wp,
		computer: lsc,
		sinks:    sinks,
		opts:     opts,
		logger:   logger,
		metrics:  metrics,
	}
}

// CheckReadiness returns nil once a run has completed, or an error describing
// why the service is not yet ready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("no hot-spot run has completed yet")
	}
	return nil
}

// Latest returns the most recent successful report, or nil.
func (p *Pipeline) Latest() *domain.HotspotReport {
	return p.latest.Load()
}

// Run executes the pipeline once. Analysis failures abort the run with no
// report. A report is returned even when a sink fails; the sink error is
// returned alongside it.
func (p *Pipeline) Run(ctx context.Context) (*domain.HotspotReport, error) {
	start := time.Now()
	p.logger.Info("hot-spot run started", "attribute", p.opts.Attribute.Name, "alpha", p.opts.Alpha)

	report, err := p.analyse(ctx)
	if err != nil {
		p.metrics.Runs.WithLabelValues("error").Inc()
		p.logger.Error("hot-spot run failed", "error", err)
		return nil, err
	}

	p.latest.Store(report)
	p.recordReport(report)

	sinkErr := p.loadSinks(ctx, report)
	p.metrics.RunDuration.Observe(time.Since(start).Seconds())
	if sinkErr != nil {
		p.metrics.Runs.WithLabelValues("error").Inc()
		return report, sinkErr
	}

	p.metrics.Runs.WithLabelValues("success").Inc()
	p.ready.Store(true)
	p.logger.Info("hot-spot run complete",
		"run_id", report.RunID,
		"regions", len(report.Results),
		"hot", len(report.Partition.Hot),
		"cold", len(report.Partition.Cold),
		"duration", time.Since(start),
	)
	return report, nil
}

func (p *Pipeline) analyse(ctx context.Context) (*domain.HotspotReport, error) {
	if err := domain.ValidateAlpha(p.opts.Alpha); err != nil {
		return nil, err
	}

	regions, err := p.source.LoadRegions(ctx)
	if err != nil {
		return nil, fmt.Errorf("load regions: %w", err)
	}
	for _, r := range regions {
		if err := r.ValidateCounts(); err != nil {
			return nil, err
		}
	}

	w, err := p.weights.Weights(ctx, regions)
	if err != nil {
		return nil, fmt.Errorf("build weights: %w", err)
	}

	values, err := alignValues(regions, w, p.opts.Attribute)
	if err != nil {
		return nil, err
	}

	computeStart := time.Now()
	res, err := p.computer.Compute(ctx, values, w)
	if err != nil {
		return nil, fmt.Errorf("local statistic: %w", err)
	}
	p.metrics.PermutationDuration.Observe(time.Since(computeStart).Seconds())

	warnings := p.collectWarnings(res, w)
	res.Warnings = warnings

	report, err := domain.NewReport(domain.ReportParams{Attribute: p.opts.Attribute.Name, Alpha: p.opts.Alpha}, res, w, regions)
	if err != nil {
		return nil, err
	}
	if islands := w.Islands(); len(islands) > 0 {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("%d regions without neighbours: %s", len(islands), strings.Join(islands, ", ")))
	}
	return report, nil
}

// collectWarnings extends the engine's warnings with run-level ones, counts
// and logs them.
func (p *Pipeline) collectWarnings(res *domain.LocalResult, w *domain.Weights) []error {
	warnings := res.Warnings
	minP := 1 / float64(res.Permutations+1)
	if minP >= p.opts.Alpha {
		warnings = append(warnings, &domain.LowResolutionWarning{Permutations: res.Permutations, Alpha: p.opts.Alpha})
	}
	for _, warn := range warnings {
		kind := "other"
		if errors.Is(warn, domain.ErrLowResolution) {
			kind = "low_resolution"
			var lrw *domain.LowResolutionWarning
			if errors.As(warn, &lrw) && lrw.Alpha > 0 {
				kind = "alpha_unreachable"
			}
		}
		p.metrics.Warnings.WithLabelValues(kind).Inc()
		p.logger.Warn("run warning", "kind", kind, "warning", warn)
	}
	if islands := w.Islands(); len(islands) > 0 {
		p.metrics.Warnings.WithLabelValues("islands").Inc()
		p.logger.Warn("regions without neighbours", "count", len(islands), "ids", islands)
	}
	return warnings
}

func (p *Pipeline) recordReport(report *domain.HotspotReport) {
	p.metrics.Regions.Set(float64(len(report.Results)))
	p.metrics.Spots.WithLabelValues("hot").Set(float64(len(report.Partition.Hot)))
	p.metrics.Spots.WithLabelValues("cold").Set(float64(len(report.Partition.Cold)))
	p.metrics.Spots.WithLabelValues("not_significant").Set(float64(len(report.Partition.NotSignificant)))
	p.metrics.Islands.Set(float64(len(report.Islands)))
}

func (p *Pipeline) loadSinks(ctx context.Context, report *domain.HotspotReport) error {
	var errs []error
	for _, s := range p.sinks {
		if err := p.loadWithRetry(ctx, s, report); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// loadWithRetry attempts a sink up to SinkMaxAttempts times.
// Backoff starts at 200ms, doubles on each retry, and caps at 5s.
func (p *Pipeline) loadWithRetry(ctx context.Context, s Sink, report *domain.HotspotReport) error {
	backoff := 200 * time.Millisecond
	maxBackoff := 5 * time.Second

	var err error
	for attempt := 1; attempt <= p.opts.SinkMaxAttempts; attempt++ {
		if err = s.Loader.LoadReport(ctx, report); err == nil {
			p.logger.Debug("sink loaded", "sink", s.Name, "attempt", attempt)
			return nil
		}
		p.metrics.SinkErrors.WithLabelValues(s.Name).Inc()
		p.logger.Warn("sink failed", "sink", s.Name, "attempt", attempt, "error", err)

		if attempt == p.opts.SinkMaxAttempts || ctx.Err() != nil {
			break
		}
		if !sleepWithContext(ctx, backoff) {
			break
		}
		backoff = nextBackoff(backoff, maxBackoff)
	}
	return fmt.Errorf("sink %s: %w", s.Name, err)
}

// alignValues lays the attribute out in weights order.
func alignValues(regions []domain.Region, w *domain.Weights, attr domain.Attribute) ([]float64, error) {
	if len(regions) != w.Len() {
		return nil, &domain.DimensionMismatchError{Values: len(regions), Regions: w.Len()}
	}
	values := make([]float64, w.Len())
	seen := make([]bool, w.Len())
	for _, r := range regions {
		i, ok := w.Index(r.ID)
		if !ok || seen[i] {
			return nil, &domain.DimensionMismatchError{
				Values:  len(regions),
				Regions: w.Len(),
				Detail:  fmt.Sprintf("region %q does not line up with the weights", r.ID),
			}
		}
		seen[i] = true
		values[i] = attr.Value(r)
	}
	return values, nil
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
