// Command genmock generates a synthetic region lattice with a planted
// infection cluster, runs the real hot-spot analysis over it, and writes both
// the input table and the expected report as fixtures.
//
// Usage:
//
//	go run ./cmd/genmock \
//	  -rows 12 -cols 12 -seed 42 \
//	  -regions-out data/mock/lattice.geojson \
//	  -report-out data/mock/lattice_hotspots.json
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/couchcryptid/bird-flu-hotspots/internal/domain"
	"github.com/couchcryptid/bird-flu-hotspots/internal/pipeline"
	"github.com/jonboulle/clockwork"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// cellSize is the lattice spacing in metres on the Irish grid.
const cellSize = 5000

type lattice struct {
	rows, cols   int
	clusterRow   int
	clusterCol   int
	clusterSize  int
	baseRate     float64
	clusterRate  float64
	birdsPerCell int
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	rows := flag.Int("rows", 12, "lattice rows")
	cols := flag.Int("cols", 12, "lattice columns")
	clusterSize := flag.Int("cluster", 3, "side of the planted hot cluster, in cells")
	seed := flag.Uint64("seed", 42, "seed for counts and permutations")
	permutations := flag.Int("permutations", 999, "permutations for the expected report")
	regionsOut := flag.String("regions-out", "", "output path for the region GeoJSON fixture")
	reportOut := flag.String("report-out", "", "output path for the expected report JSON")
	flag.Parse()

	if *regionsOut == "" || *reportOut == "" {
		flag.Usage()
		return fmt.Errorf("missing required flags: -regions-out, -report-out")
	}
	if *rows < 2 || *cols < 2 || *clusterSize < 1 || *clusterSize > min(*rows, *cols) {
		return fmt.Errorf("invalid lattice %dx%d with cluster %d", *rows, *cols, *clusterSize)
	}

	// Fixed clock for a reproducible computed_at.
	domain.SetClock(clockwork.NewFakeClockAt(time.Date(2024, time.February, 1, 6, 0, 0, 0, time.UTC)))
	defer domain.SetClock(nil)

	l := lattice{
		rows: *rows, cols: *cols,
		clusterRow: 1, clusterCol: 1, clusterSize: *clusterSize,
		baseRate: 0.05, clusterRate: 0.6, birdsPerCell: 40,
	}
	regions := l.generate(rand.New(rand.NewPCG(*seed, 0)))
	log.Printf("generated %d regions", len(regions))

	fc := geojson.NewFeatureCollection()
	for _, r := range regions {
		f := geojson.NewFeature(r.Geometry)
		f.Properties = geojson.Properties{
			"id":             r.ID,
			"council":        r.Names.Council,
			"county":         r.Names.County,
			"total_birds":    r.TotalBirds,
			"infected_birds": r.InfectedBirds,
			"healthy_birds":  r.HealthyBirds(),
		}
		fc.Append(f)
	}
	if err := writeJSON(*regionsOut, fc); err != nil {
		return fmt.Errorf("writing regions fixture: %w", err)
	}
	log.Printf("wrote regions fixture: %s", *regionsOut)

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	report, err := pipeline.ComputeReport(context.Background(), regions, domain.PropInfected, pipeline.ComputeOptions{
		Alpha:        domain.DefaultAlpha,
		Permutations: *permutations,
		Seed:         seed,
		Workers:      1,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("computing expected report: %w", err)
	}
	if err := writeJSON(*reportOut, report); err != nil {
		return fmt.Errorf("writing report fixture: %w", err)
	}
	log.Printf("wrote report fixture: %s", *reportOut)

	printStats(l, report)
	return nil
}

// generate lays the cells out row-major from the south-west corner. Counts
// are binomial draws at the cluster or background rate.
func (l lattice) generate(rng *rand.Rand) []domain.Region {
	regions := make([]domain.Region, 0, l.rows*l.cols)
	for row := range l.rows {
		for col := range l.cols {
			x, y := float64(col*cellSize), float64(row*cellSize)
			rate := l.baseRate
			if l.inCluster(row, col) {
				rate = l.clusterRate
			}
			infected := 0
			for range l.birdsPerCell {
				if rng.Float64() < rate {
					infected++
				}
			}
			regions = append(regions, domain.Region{
				ID: fmt.Sprintf("r%02dc%02d", row, col),
				Names: domain.Names{
					Council: fmt.Sprintf("Cell %d-%d Council", row, col),
					County:  fmt.Sprintf("Row %d", row),
				},
				Geometry: orb.Polygon{orb.Ring{
					{x, y}, {x + cellSize, y}, {x + cellSize, y + cellSize}, {x, y + cellSize}, {x, y},
				}},
				TotalBirds:    l.birdsPerCell,
				InfectedBirds: infected,
			})
		}
	}
	return regions
}

func (l lattice) inCluster(row, col int) bool {
	return row >= l.clusterRow && row < l.clusterRow+l.clusterSize &&
		col >= l.clusterCol && col < l.clusterCol+l.clusterSize
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o600)
}

type labelCount struct {
	label domain.Label
	count int
}

func printStats(l lattice, report *domain.HotspotReport) {
	counts := map[domain.Label]int{}
	var plantedHot, planted int
	for _, res := range report.Results {
		counts[res.Label]++
		var row, col int
		if _, err := fmt.Sscanf(res.RegionID, "r%02dc%02d", &row, &col); err == nil && l.inCluster(row, col) {
			planted++
			if res.Label == domain.HotSpot {
				plantedHot++
			}
		}
	}

	lc := make([]labelCount, 0, len(counts))
	for k, v := range counts {
		lc = append(lc, labelCount{k, v})
	}
	sort.Slice(lc, func(i, j int) bool { return lc[i].label < lc[j].label })

	fmt.Println("\n=== Stats for updating test assertions ===")
	fmt.Printf("Regions: %d  Seed: %d  Permutations: %d\n", len(report.Results), report.Seed, report.Permutations)
	for _, c := range lc {
		fmt.Printf("  %s: %d\n", c.label, c.count)
	}
	fmt.Printf("Planted cluster cells labelled hot: %d/%d\n", plantedHot, planted)
	fmt.Printf("Hot: %v\n", report.Partition.Hot)
	for _, w := range report.Warnings {
		fmt.Println("warning:", w)
	}
}
