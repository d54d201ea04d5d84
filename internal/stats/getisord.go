// Package stats computes the local Getis-Ord G* statistic with conditional
// permutation inference.
package stats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"runtime"
	"time"

	"github.com/couchcryptid/bird-flu-hotspots/internal/domain"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const (
	// DefaultPermutations matches the usual 999-draw pseudo p-value.
	DefaultPermutations = 999
	// MinReliablePermutations is the count below which p-values are coarse
	// enough to warn about.
	MinReliablePermutations = 99
)

// Config controls the permutation test.
type Config struct {
	Permutations int
	// Seed fixes every region's random stream. Nil draws a fresh base seed,
	// which is reported back in LocalResult.Seed.
	Seed    *uint64
	Workers int
	Mode    domain.PValueMode
}

// GetisOrd computes G* z-scores and pseudo p-values. It implements
// pipeline.LocalStatisticComputer.
type GetisOrd struct {
	cfg    Config
	logger *slog.Logger
}

// New validates cfg and fills defaults: 999 permutations, GOMAXPROCS
// workers and two-sided p-values.
func New(cfg Config, logger *slog.Logger) (*GetisOrd, error) {
	if cfg.Permutations == 0 {
		cfg.Permutations = DefaultPermutations
	}
	if cfg.Permutations < 1 {
		return nil, fmt.Errorf("permutations must be positive, got %d", cfg.Permutations)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	if cfg.Mode == "" {
		cfg.Mode = domain.TwoSided
	}
	if _, err := domain.ParsePValueMode(string(cfg.Mode)); err != nil {
		return nil, err
	}
	return &GetisOrd{cfg: cfg, logger: logger}, nil
}

// Compute evaluates every region of w against values, which must be in
// w.IDs() order. Regions are processed in parallel; each region draws from
// its own stream derived from the seed and its index, so results do not
// depend on the worker count.
func (g *GetisOrd) Compute(ctx context.Context, values []float64, w *domain.Weights) (*domain.LocalResult, error) {
	if w == nil {
		return nil, errors.New("nil weights")
	}
	n := w.Len()
	if len(values) != n {
		return nil, &domain.DimensionMismatchError{Values: len(values), Regions: n}
	}
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, &domain.InvalidValueError{RegionID: w.ID(i), Field: "attribute", Value: v, Reason: "non-finite value"}
		}
	}

	seed := rand.Uint64()
	if g.cfg.Seed != nil {
		seed = *g.cfg.Seed
	}

	res := &domain.LocalResult{
		Stats:        make([]domain.LocalStat, n),
		Permutations: g.cfg.Permutations,
		Seed:         seed,
		Mode:         g.cfg.Mode,
	}
	if g.cfg.Permutations < MinReliablePermutations {
		warn := &domain.LowResolutionWarning{Permutations: g.cfg.Permutations}
		g.logger.Warn("few permutations", "permutations", g.cfg.Permutations, "min_p", warn.MinPValue())
		res.Warnings = append(res.Warnings, warn)
	}

	mom := newMoments(values)

	start := time.Now()
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.cfg.Workers)
	for i := 0; i < n; i++ {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			st := mom.local(i, values, w)
			st.RegionID = w.ID(i)
			st.P = g.pseudoP(i, values, w, mom.sum, st.LocalSum, seed)
			res.Stats[i] = st
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	g.logger.Debug("local statistic computed",
		"regions", n,
		"permutations", g.cfg.Permutations,
		"workers", g.cfg.Workers,
		"mode", g.cfg.Mode,
		"seed", seed,
		"duration", time.Since(start),
	)
	return res, nil
}

// moments are the global quantities every region's statistic is scaled by.
type moments struct {
	n        int
	sum      float64
	mean     float64
	variance float64 // population variance
}

func newMoments(values []float64) moments {
	m := moments{n: len(values)}
	if m.n == 0 {
		return m
	}
	m.sum = floats.Sum(values)
	m.mean, m.variance = stat.PopMeanVariance(values, nil)
	// Rounding in the mean leaves a tiny positive variance on constant input.
	if floats.Max(values) == floats.Min(values) {
		m.variance = 0
	}
	return m
}

// local computes G* for region i with binary weights and the region itself
// counted in its own neighbourhood.
func (m moments) local(i int, values []float64, w *domain.Weights) domain.LocalStat {
	nbrs := w.Neighbors(i)
	sum := values[i]
	for _, j := range nbrs {
		sum += values[j]
	}
	wi := float64(len(nbrs) + 1)
	n := float64(m.n)

	expected := wi * m.mean
	variance := 0.0
	if m.n > 1 {
		variance = m.variance * wi * (n - wi) / (n - 1)
	}

	z := 0.0
	if variance > 0 {
		z = (sum - expected) / math.Sqrt(variance)
	}
	return domain.LocalStat{
		Value:       values[i],
		LocalSum:    sum,
		Expected:    expected,
		Variance:    variance,
		Z:           z,
		Cardinality: len(nbrs),
	}
}

// pseudoP holds values[i] fixed, draws as many values as region i has
// neighbours from the other n-1 regions without replacement, and compares
// the simulated local sums with the observed one.
func (g *GetisOrd) pseudoP(i int, values []float64, w *domain.Weights, total, observed float64, seed uint64) float64 {
	n := len(values)
	k := len(w.Neighbors(i))
	perms := g.cfg.Permutations
	// No neighbours, or every other region is a neighbour: each draw
	// reproduces the observed sum.
	if k == 0 || k == n-1 {
		return 1
	}

	others := make([]float64, 0, n-1)
	others = append(others, values[:i]...)
	others = append(others, values[i+1:]...)

	rng := rand.New(rand.NewPCG(seed, uint64(i)))
	xi := values[i]
	condMean := xi + float64(k)*(total-xi)/float64(n-1)
	obsDev := math.Abs(observed - condMean)
	tol := 1e-10 * math.Max(1, math.Abs(observed))

	count := 0
	for range perms {
		drawn := xi
		for t := 0; t < k; t++ {
			j := t + rng.IntN(len(others)-t)
			others[t], others[j] = others[j], others[t]
			drawn += others[t]
		}
		switch g.cfg.Mode {
		case domain.Folded:
			if drawn >= observed-tol {
				count++
			}
		default:
			if math.Abs(drawn-condMean) >= obsDev-tol {
				count++
			}
		}
	}

	if g.cfg.Mode == domain.Folded && perms-count < count {
		count = perms - count
	}
	return float64(count+1) / float64(perms+1)
}
