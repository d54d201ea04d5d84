package spatial

import (
	"fmt"
	"math"

	"github.com/couchcryptid/bird-flu-hotspots/internal/domain"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// ValidateRegions checks that a region table can carry contiguity weights:
// at least two regions, unique non-empty ids, and polygonal geometry with
// finite coordinates and positive area.
func ValidateRegions(regions []domain.Region) error {
	if len(regions) < 2 {
		return &domain.DegenerateInputError{Reason: fmt.Sprintf("need at least 2 regions, got %d", len(regions))}
	}
	seen := make(map[string]struct{}, len(regions))
	for i, r := range regions {
		if r.ID == "" {
			return &domain.DegenerateInputError{Reason: fmt.Sprintf("empty region id at position %d", i)}
		}
		if _, dup := seen[r.ID]; dup {
			return &domain.DegenerateInputError{RegionID: r.ID, Reason: "duplicate region id"}
		}
		seen[r.ID] = struct{}{}
		if err := validateGeometry(r.Geometry); err != nil {
			return &domain.DegenerateInputError{RegionID: r.ID, Reason: err.Error()}
		}
	}
	return nil
}

func validateGeometry(g orb.Geometry) error {
	var polys []orb.Polygon
	switch geom := g.(type) {
	case nil:
		return fmt.Errorf("missing geometry")
	case orb.Polygon:
		polys = []orb.Polygon{geom}
	case orb.MultiPolygon:
		polys = geom
	default:
		return fmt.Errorf("unsupported geometry type %s", g.GeoJSONType())
	}
	if len(polys) == 0 {
		return fmt.Errorf("empty multipolygon")
	}
	for _, p := range polys {
		if len(p) == 0 {
			return fmt.Errorf("polygon without rings")
		}
		for _, ring := range p {
			if len(ring) < 4 {
				return fmt.Errorf("ring with %d points, need at least 4", len(ring))
			}
			for _, pt := range ring {
				if !finite(pt[0]) || !finite(pt[1]) {
					return fmt.Errorf("non-finite coordinate %v", pt)
				}
			}
		}
	}
	if a := math.Abs(planar.Area(g)); !(a > 0) {
		return fmt.Errorf("zero area")
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
