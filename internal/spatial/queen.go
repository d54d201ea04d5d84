// Package spatial derives contiguity weights from region geometry.
package spatial

import (
	"cmp"
	"context"
	"log/slog"
	"math"
	"slices"
	"time"

	"github.com/couchcryptid/bird-flu-hotspots/internal/domain"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// DefaultTolerance is the snapping distance, in coordinate units, under which
// two boundary points are treated as the same point. Administrative polygons
// are in metres, so this is sub-millimetre.
const DefaultTolerance = 1e-6

// QueenBuilder computes Queen contiguity: two regions are neighbours when
// their boundaries share at least one point, a corner touch included.
// It implements pipeline.WeightsProvider.
type QueenBuilder struct {
	tolerance float64
	logger    *slog.Logger
}

// NewQueenBuilder creates a builder. A non-positive tolerance falls back to
// DefaultTolerance.
func NewQueenBuilder(tolerance float64, logger *slog.Logger) *QueenBuilder {
	if !(tolerance > 0) {
		tolerance = DefaultTolerance
	}
	return &QueenBuilder{tolerance: tolerance, logger: logger}
}

type vertexKey struct{ x, y int64 }

type segment struct{ a, b orb.Point }

// shape is the boundary of one region flattened for neighbour tests.
type shape struct {
	bound    orb.Bound
	vertices []orb.Point
	segments []segment
}

// Weights builds the neighbour relation for regions, in input order.
func (q *QueenBuilder) Weights(ctx context.Context, regions []domain.Region) (*domain.Weights, error) {
	start := time.Now()
	if err := ValidateRegions(regions); err != nil {
		return nil, err
	}

	shapes := make([]shape, len(regions))
	for i, r := range regions {
		shapes[i] = flatten(r.Geometry)
	}

	pairs := make(map[[2]int]struct{})
	q.sharedVertices(shapes, pairs)

	touching, err := q.touchingBounds(ctx, shapes)
	if err != nil {
		return nil, err
	}
	for _, pr := range touching {
		if _, done := pairs[pr]; done {
			continue
		}
		if q.touches(shapes[pr[0]], shapes[pr[1]]) {
			pairs[pr] = struct{}{}
		}
	}

	ids := make([]string, len(regions))
	for i, r := range regions {
		ids[i] = r.ID
	}
	adjacency := make(map[string][]string, len(regions))
	for pr := range pairs {
		a, b := ids[pr[0]], ids[pr[1]]
		adjacency[a] = append(adjacency[a], b)
	}

	w, err := domain.NewWeights(ids, adjacency)
	if err != nil {
		return nil, err
	}
	q.logger.Debug("queen weights built",
		"regions", w.Len(),
		"pairs", len(pairs),
		"islands", len(w.Islands()),
		"duration", time.Since(start),
	)
	return w, nil
}

// sharedVertices records every pair of regions that have a vertex in the
// same snapping cell.
func (q *QueenBuilder) sharedVertices(shapes []shape, pairs map[[2]int]struct{}) {
	owners := make(map[vertexKey][]int)
	for i, s := range shapes {
		for _, p := range s.vertices {
			k := q.key(p)
			list := owners[k]
			if n := len(list); n > 0 && list[n-1] == i {
				continue
			}
			owners[k] = append(list, i)
		}
	}
	for _, list := range owners {
		if len(list) < 2 {
			continue
		}
		for x := 0; x < len(list); x++ {
			for y := x + 1; y < len(list); y++ {
				if list[x] != list[y] {
					pairs[orderedPair(list[x], list[y])] = struct{}{}
				}
			}
		}
	}
}

// touchingBounds sweeps along x and returns every pair of regions whose
// padded bounding boxes intersect. Disjoint bounds can never be neighbours.
func (q *QueenBuilder) touchingBounds(ctx context.Context, shapes []shape) ([][2]int, error) {
	order := make([]int, len(shapes))
	for i := range order {
		order[i] = i
	}
	slices.SortFunc(order, func(a, b int) int {
		return cmp.Compare(shapes[a].bound.Min[0], shapes[b].bound.Min[0])
	})

	var out [][2]int
	for oi, i := range order {
		if oi%64 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		bi := shapes[i].bound.Pad(q.tolerance)
		for _, j := range order[oi+1:] {
			bj := shapes[j].bound
			if bj.Min[0] > bi.Max[0] {
				break
			}
			if bi.Intersects(bj) {
				out = append(out, orderedPair(i, j))
			}
		}
	}
	return out, nil
}

// touches reports whether a vertex of either shape lies on a boundary
// segment of the other, within tolerance. This catches T-junctions where one
// region's corner sits on the middle of a neighbour's edge.
func (q *QueenBuilder) touches(a, b shape) bool {
	return q.vertexOnBoundary(a, b) || q.vertexOnBoundary(b, a)
}

func (q *QueenBuilder) vertexOnBoundary(from, onto shape) bool {
	area := onto.bound.Pad(q.tolerance)
	for _, p := range from.vertices {
		if !area.Contains(p) {
			continue
		}
		for _, s := range onto.segments {
			sb := orb.Bound{Min: s.a, Max: s.a}.Extend(s.b).Pad(q.tolerance)
			if !sb.Contains(p) {
				continue
			}
			if planar.DistanceFromSegment(s.a, s.b, p) <= q.tolerance {
				return true
			}
		}
	}
	return false
}

func (q *QueenBuilder) key(p orb.Point) vertexKey {
	return vertexKey{
		x: int64(math.Round(p[0] / q.tolerance)),
		y: int64(math.Round(p[1] / q.tolerance)),
	}
}

func flatten(g orb.Geometry) shape {
	var polys []orb.Polygon
	switch geom := g.(type) {
	case orb.Polygon:
		polys = []orb.Polygon{geom}
	case orb.MultiPolygon:
		polys = geom
	}
	s := shape{bound: g.Bound()}
	for _, p := range polys {
		for _, ring := range p {
			if !ring.Closed() {
				ring = append(slices.Clone(ring), ring[0])
			}
			s.vertices = append(s.vertices, ring[:len(ring)-1]...)
			for k := 0; k+1 < len(ring); k++ {
				s.segments = append(s.segments, segment{a: ring[k], b: ring[k+1]})
			}
		}
	}
	return s
}

func orderedPair(a, b int) [2]int {
	if a > b {
		a, b = b, a
	}
	return [2]int{a, b}
}
