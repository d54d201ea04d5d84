// Command validate performs integrity checks on a hot-spot map written by the
// GeoJSON sink against the region table it was computed from. It verifies
// region parity, statistic ranges, label consistency and, when the run was
// seeded, that recomputing reproduces every z-score and p-value.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -regions data/mock/lattice.geojson \
//	  -map maps/hotspots.geojson
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strconv"

	"github.com/couchcryptid/bird-flu-hotspots/internal/adapter/geofile"
	"github.com/couchcryptid/bird-flu-hotspots/internal/domain"
	"github.com/couchcryptid/bird-flu-hotspots/internal/pipeline"
	"github.com/paulmach/orb/geojson"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

// mapRun is the run metadata and per-region results read back from a map.
type mapRun struct {
	attribute    string
	alpha        float64
	permutations int
	seed         uint64
	mode         domain.PValueMode
	islands      map[string]bool
	results      map[string]domain.HotspotResult
	counts       map[string][2]int
}

func main() {
	regionsPath := flag.String("regions", "", "path to the input region GeoJSON")
	mapPath := flag.String("map", "", "path to the hot-spot GeoJSON written by the service")
	skipRecompute := flag.Bool("skip-recompute", false, "skip the reproducibility phase")
	flag.Parse()

	if *regionsPath == "" || *mapPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(*regionsPath, *mapPath, !*skipRecompute); code != 0 {
		os.Exit(code)
	}
}

func run(regionsPath, mapPath string, recompute bool) int {
	fmt.Println("=== Hot-spot Map Integrity Validation ===")
	fmt.Println()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	regions, err := geofile.NewLoader(regionsPath, logger).LoadRegions(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load regions: %v\n", err)
		return 1
	}
	data, err := os.ReadFile(mapPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: read map: %v\n", err)
		return 1
	}
	m, err := decodeMap(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: decode map: %v\n", err)
		return 1
	}

	phases := []*phase{
		validateRegionParity(regions, m),
		validateStatisticRanges(m),
		validateLabels(m),
	}
	if recompute {
		phases = append(phases, validateReproducible(regions, m))
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Regions: %d input, %d mapped (attribute=%s alpha=%g permutations=%d mode=%s)\n",
		len(regions), len(m.results), m.attribute, m.alpha, m.permutations, m.mode)

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// ── Data loading ──

func decodeMap(data []byte) (*mapRun, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, err
	}
	extra := fc.ExtraMembers
	seed, err := strconv.ParseUint(extra.MustString("seed", "0"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("seed: %w", err)
	}
	mode, err := domain.ParsePValueMode(extra.MustString("p_value_mode", string(domain.TwoSided)))
	if err != nil {
		return nil, err
	}

	m := &mapRun{
		attribute:    extra.MustString("attribute", ""),
		alpha:        extra.MustFloat64("alpha", domain.DefaultAlpha),
		permutations: extra.MustInt("permutations", 0),
		seed:         seed,
		mode:         mode,
		islands:      map[string]bool{},
		results:      make(map[string]domain.HotspotResult, len(fc.Features)),
		counts:       make(map[string][2]int, len(fc.Features)),
	}
	if raw, ok := extra["islands"].([]any); ok {
		for _, id := range raw {
			m.islands[fmt.Sprint(id)] = true
		}
	}
	for _, f := range fc.Features {
		p := f.Properties
		id := p.MustString("id", "")
		label, ok := domain.ParseLabel(p.MustString("label", ""))
		if !ok {
			return nil, fmt.Errorf("feature %q: unknown label %q", id, p.MustString("label", ""))
		}
		m.results[id] = domain.HotspotResult{
			RegionID:  id,
			Value:     p.MustFloat64("value", math.NaN()),
			Z:         p.MustFloat64("z", math.NaN()),
			P:         p.MustFloat64("p", math.NaN()),
			Label:     label,
			Neighbors: p.MustInt("neighbors", -1),
		}
		m.counts[id] = [2]int{p.MustInt("total_birds", -1), p.MustInt("infected_birds", -1)}
	}
	return m, nil
}

// ── Validation phases ──

func validateRegionParity(regions []domain.Region, m *mapRun) *phase {
	p := &phase{name: "Region parity (input vs map)"}
	if len(regions) != len(m.results) {
		p.errorf("input has %d regions, map has %d features", len(regions), len(m.results))
	}
	for _, r := range regions {
		res, ok := m.results[r.ID]
		if !ok {
			p.errorf("region %q missing from map", r.ID)
			continue
		}
		if c := m.counts[r.ID]; c != [2]int{r.TotalBirds, r.InfectedBirds} {
			p.errorf("region %q: counts %v, input has [%d %d]", r.ID, c, r.TotalBirds, r.InfectedBirds)
		}
		if attr, ok := domain.AttributeByName(m.attribute); ok && math.Abs(attr.Value(r)-res.Value) > 1e-12 {
			p.errorf("region %q: value %g, input gives %g", r.ID, res.Value, attr.Value(r))
		}
	}
	return p
}

func validateStatisticRanges(m *mapRun) *phase {
	p := &phase{name: "Statistic ranges"}
	if m.permutations < 1 {
		p.errorf("permutations = %d", m.permutations)
		return p
	}
	grid := float64(m.permutations + 1)
	for id, res := range m.results {
		if math.IsNaN(res.Z) || math.IsInf(res.Z, 0) {
			p.errorf("region %q: z = %v", id, res.Z)
		}
		if res.P < 1/grid-1e-12 || res.P > 1+1e-12 {
			p.errorf("region %q: p = %v outside [1/%d, 1]", id, res.P, m.permutations+1)
		}
		if k := res.P * grid; math.Abs(k-math.Round(k)) > 1e-6 {
			p.errorf("region %q: p = %v is not a multiple of 1/%d", id, res.P, m.permutations+1)
		}
		if res.Neighbors < 0 {
			p.errorf("region %q: missing neighbors", id)
		}
		if m.islands[id] != (res.Neighbors == 0) {
			p.errorf("region %q: island flag disagrees with %d neighbors", id, res.Neighbors)
		}
	}
	return p
}

func validateLabels(m *mapRun) *phase {
	p := &phase{name: "Label consistency"}
	if err := domain.ValidateAlpha(m.alpha); err != nil {
		p.errorf("alpha: %v", err)
		return p
	}
	for id, res := range m.results {
		if want := domain.Classify(res.Z, res.P, m.alpha); res.Label != want {
			p.errorf("region %q: label %q, z=%g p=%g gives %q", id, res.Label, res.Z, res.P, want)
		}
		if m.islands[id] && res.Label != domain.NotSignificant {
			p.errorf("island %q labelled %q", id, res.Label)
		}
	}
	return p
}

func validateReproducible(regions []domain.Region, m *mapRun) *phase {
	p := &phase{name: "Seeded recomputation"}
	attr, ok := domain.AttributeByName(m.attribute)
	if !ok {
		p.errorf("unknown attribute %q", m.attribute)
		return p
	}
	seed := m.seed
	got, err := pipeline.ComputeHotspots(context.Background(), regions, attr, pipeline.ComputeOptions{
		Alpha:        m.alpha,
		Permutations: m.permutations,
		Seed:         &seed,
		Mode:         m.mode,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		p.errorf("recompute: %v", err)
		return p
	}
	for id, want := range got {
		res := m.results[id]
		if math.Abs(res.Z-want.Z) > 1e-9 {
			p.errorf("region %q: z %g, recomputed %g", id, res.Z, want.Z)
		}
		if math.Abs(res.P-want.P) > 1e-12 {
			p.errorf("region %q: p %g, recomputed %g", id, res.P, want.P)
		}
		if res.Label != want.Label {
			p.errorf("region %q: label %q, recomputed %q", id, res.Label, want.Label)
		}
	}
	return p
}
