package pipeline_test

import (
	"context"
	"math"
	"testing"

	"github.com/couchcryptid/bird-flu-hotspots/internal/domain"
	"github.com/couchcryptid/bird-flu-hotspots/internal/pipeline"
	"github.com/google/go-cmp/cmp"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func square(x, y, size float64) orb.Polygon {
	return orb.Polygon{orb.Ring{
		{x, y}, {x + size, y}, {x + size, y + size}, {x, y + size}, {x, y},
	}}
}

// lineRegions lays out one 1km square per count pair along the x axis.
func lineRegions(ids []string, infected []int) []domain.Region {
	regions := make([]domain.Region, len(ids))
	for i, id := range ids {
		regions[i] = domain.Region{
			ID:            id,
			Geometry:      square(float64(i)*1000, 0, 1000),
			TotalBirds:    10,
			InfectedBirds: infected[i],
		}
	}
	return regions
}

func seedOf(v uint64) *uint64 { return &v }

func TestComputeHotspots_LineScenario(t *testing.T) {
	regions := lineRegions([]string{"A", "B", "C", "D", "E"}, []int{0, 0, 0, 10, 10})

	got, err := pipeline.ComputeHotspots(context.Background(), regions, domain.InfectedBirds,
		pipeline.ComputeOptions{Alpha: 0.05, Permutations: 999, Seed: seedOf(42), Logger: discardLogger()})
	require.NoError(t, err)
	require.Len(t, got, 5)

	assert.Greater(t, got["D"].Z, 0.0)
	assert.Greater(t, got["E"].Z, 0.0)
	assert.Less(t, got["A"].Z, 0.0)
	assert.Less(t, got["B"].Z, 0.0)
	for _, id := range []string{"A", "B", "D", "E"} {
		assert.Less(t, math.Abs(got["C"].Z), math.Abs(got[id].Z), id)
	}
	assert.InDelta(t, 2.0, got["E"].Z, 1e-9)
	assert.InDelta(t, -1.0/3, got["C"].Z, 1e-9)

	for id, r := range got {
		assert.Equal(t, domain.Classify(r.Z, r.P, 0.05), r.Label, id)
		assert.GreaterOrEqual(t, r.P, 0.001)
		assert.LessOrEqual(t, r.P, 1.0)
	}
	assert.Equal(t, 1, got["A"].Neighbors)
	assert.Equal(t, 2, got["C"].Neighbors)
}

func TestComputeHotspots_PropInfectedWithEmptyRegion(t *testing.T) {
	regions := lineRegions([]string{"A", "B", "C", "D"}, []int{1, 2, 3, 0})
	regions[3].TotalBirds = 0

	got, err := pipeline.ComputeHotspots(context.Background(), regions, domain.PropInfected,
		pipeline.ComputeOptions{Permutations: 99, Seed: seedOf(1), Logger: discardLogger()})
	require.NoError(t, err)

	d := got["D"]
	assert.Equal(t, 0.0, d.Value)
	assert.False(t, math.IsNaN(d.Z))
	assert.False(t, math.IsNaN(d.P))
}

func TestComputeHotspots_IsolatedRegion(t *testing.T) {
	regions := lineRegions([]string{"A", "B", "C"}, []int{1, 2, 3})
	regions = append(regions, domain.Region{
		ID:            "Tory",
		Geometry:      square(90000, 90000, 500),
		TotalBirds:    10,
		InfectedBirds: 9,
	})

	report, err := pipeline.ComputeReport(context.Background(), regions, domain.PropInfected,
		pipeline.ComputeOptions{Permutations: 99, Seed: seedOf(1), Logger: discardLogger()})
	require.NoError(t, err)

	assert.Equal(t, []string{"Tory"}, report.Islands)
	tory := report.ByRegion()["Tory"]
	assert.False(t, math.IsNaN(tory.Z) || math.IsInf(tory.Z, 0))
	assert.Equal(t, 0, tory.Neighbors)
	assert.Equal(t, domain.NotSignificant, tory.Label)
}

func TestComputeHotspots_UniformAttribute(t *testing.T) {
	regions := lineRegions([]string{"A", "B", "C", "D", "E", "F"}, []int{3, 3, 3, 3, 3, 3})

	got, err := pipeline.ComputeHotspots(context.Background(), regions, domain.PropInfected,
		pipeline.ComputeOptions{Alpha: 0.5, Permutations: 99, Seed: seedOf(4), Logger: discardLogger()})
	require.NoError(t, err)
	for id, r := range got {
		assert.Equal(t, 0.0, r.Z, id)
		assert.Equal(t, domain.NotSignificant, r.Label, id)
	}
}

func TestComputeHotspots_SeedReproducibleAndInputUntouched(t *testing.T) {
	regions := lineRegions([]string{"A", "B", "C", "D", "E", "F", "G"}, []int{0, 1, 7, 9, 8, 2, 0})
	before := lineRegions([]string{"A", "B", "C", "D", "E", "F", "G"}, []int{0, 1, 7, 9, 8, 2, 0})
	opts := pipeline.ComputeOptions{Permutations: 499, Seed: seedOf(2024), Logger: discardLogger()}

	first, err := pipeline.ComputeHotspots(context.Background(), regions, domain.PropInfected, opts)
	require.NoError(t, err)
	second, err := pipeline.ComputeHotspots(context.Background(), regions, domain.PropInfected, opts)
	require.NoError(t, err)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("seeded runs differ (-first +second):\n%s", diff)
	}
	assert.Equal(t, before, regions)
}

func TestComputeHotspots_DegenerateInput(t *testing.T) {
	regions := lineRegions([]string{"A"}, []int{1})
	_, err := pipeline.ComputeHotspots(context.Background(), regions, domain.PropInfected,
		pipeline.ComputeOptions{Logger: discardLogger()})
	assert.ErrorIs(t, err, domain.ErrDegenerateInput)
}
