package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/couchcryptid/bird-flu-hotspots/internal/adapter/geofile"
	"github.com/couchcryptid/bird-flu-hotspots/internal/domain"
	"github.com/couchcryptid/bird-flu-hotspots/internal/pipeline"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lattice(size int) []domain.Region {
	var regions []domain.Region
	for row := range size {
		for col := range size {
			x, y := float64(col*1000), float64(row*1000)
			infected := 2
			if row < 2 && col < 2 {
				infected = 9
			}
			regions = append(regions, domain.Region{
				ID:            fmt.Sprintf("r%dc%d", row, col),
				Geometry:      orb.Polygon{orb.Ring{{x, y}, {x + 1000, y}, {x + 1000, y + 1000}, {x, y + 1000}, {x, y}}},
				TotalBirds:    10,
				InfectedBirds: infected,
			})
		}
	}
	return regions
}

// writeMap runs the analysis and writes the result map; the map doubles as
// the input table since the loader ignores the result properties.
func writeMap(t *testing.T) string {
	t.Helper()
	seed := uint64(11)
	report, err := pipeline.ComputeReport(context.Background(), lattice(5), domain.PropInfected,
		pipeline.ComputeOptions{Permutations: 199, Seed: &seed})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "hotspots.geojson")
	require.NoError(t, geofile.NewWriter(path, 0, discard()).LoadReport(context.Background(), report))
	return path
}

func TestRun_PassesOnServiceOutput(t *testing.T) {
	path := writeMap(t)
	assert.Equal(t, 0, run(path, path, true))
}

func TestRun_FailsOnTamperedMap(t *testing.T) {
	path := writeMap(t)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	fc, err := geojson.UnmarshalFeatureCollection(data)
	require.NoError(t, err)

	fc.Features[0].Properties["p"] = 0.0123
	data, err = fc.MarshalJSON()
	require.NoError(t, err)
	tampered := filepath.Join(t.TempDir(), "tampered.geojson")
	require.NoError(t, os.WriteFile(tampered, data, 0o600))

	assert.Equal(t, 1, run(path, tampered, false))
}

func TestValidatePhases(t *testing.T) {
	path := writeMap(t)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	m, err := decodeMap(data)
	require.NoError(t, err)
	assert.Equal(t, 199, m.permutations)
	assert.Equal(t, uint64(11), m.seed)
	assert.Equal(t, "prop_infected", m.attribute)

	t.Run("label mismatch", func(t *testing.T) {
		res := m.results["r0c0"]
		res.Label = domain.ColdSpot
		res.Z, res.P = 3, 0.005
		bad := *m
		bad.results = map[string]domain.HotspotResult{"r0c0": res}
		p := validateLabels(&bad)
		assert.False(t, p.passed())
	})

	t.Run("missing region", func(t *testing.T) {
		bad := *m
		bad.results = map[string]domain.HotspotResult{}
		p := validateRegionParity(lattice(5), &bad)
		assert.False(t, p.passed())
	})

	t.Run("clean map", func(t *testing.T) {
		assert.True(t, validateStatisticRanges(m).passed())
		assert.True(t, validateLabels(m).passed())
	})
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
