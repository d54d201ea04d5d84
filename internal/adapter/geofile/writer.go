package geofile

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/couchcryptid/bird-flu-hotspots/internal/domain"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/simplify"
)

// Writer renders a report as a GeoJSON FeatureCollection, one feature per
// region. It implements pipeline.ReportLoader.
type Writer struct {
	path      string
	tolerance float64
	logger    *slog.Logger
}

// NewWriter creates a writer for path. A positive tolerance simplifies the
// written geometry with Douglas-Peucker; the analysed regions are untouched.
func NewWriter(path string, tolerance float64, logger *slog.Logger) *Writer {
	return &Writer{path: path, tolerance: tolerance, logger: logger}
}

// LoadReport writes the report to a temp file next to the target and renames
// it into place, so readers never see a partial file.
func (w *Writer) LoadReport(ctx context.Context, report *domain.HotspotReport) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := EncodeReport(report, w.tolerance)
	if err != nil {
		return err
	}

	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".hotspots-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), w.path); err != nil {
		return fmt.Errorf("rename into %s: %w", w.path, err)
	}

	w.logger.Info("hot-spot map written", "path", w.path, "features", len(report.Results), "bytes", len(data))
	return nil
}

// EncodeReport builds the FeatureCollection. Run metadata goes into foreign
// members of the collection.
func EncodeReport(report *domain.HotspotReport, tolerance float64) ([]byte, error) {
	regions := make(map[string]domain.Region, len(report.Regions))
	for _, r := range report.Regions {
		regions[r.ID] = r
	}

	fc := geojson.NewFeatureCollection()
	for _, res := range report.Results {
		r, ok := regions[res.RegionID]
		if !ok {
			r = domain.Region{ID: res.RegionID}
		}

		var g orb.Geometry
		if r.Geometry != nil {
			g = orb.Clone(r.Geometry)
			if tolerance > 0 {
				g = simplify.DouglasPeucker(tolerance).Simplify(g)
			}
		}

		f := geojson.NewFeature(g)
		f.ID = res.RegionID
		f.Properties = geojson.Properties{
			"id":                  res.RegionID,
			"council":             r.Names.Council,
			"county":              r.Names.County,
			"gaeilge":             r.Names.Gaeilge,
			"total_birds":         r.TotalBirds,
			"infected_birds":      r.InfectedBirds,
			"healthy_birds":       r.HealthyBirds(),
			"prop_infected":       r.PropInfected(),
			"prop_healthy":        r.PropHealthy(),
			"label_prop_infected": r.LabelPropInfected(),
			"label_prop_healthy":  r.LabelPropHealthy(),
			"value":               res.Value,
			"z":                   res.Z,
			"p":                   res.P,
			"label":               string(res.Label),
			"neighbors":           res.Neighbors,
		}
		fc.Append(f)
	}

	fc.ExtraMembers = geojson.Properties{
		"run_id":       report.RunID,
		"computed_at":  report.ComputedAt.Format(time.RFC3339),
		"attribute":    report.Attribute,
		"alpha":        report.Alpha,
		"permutations": report.Permutations,
		"seed":         fmt.Sprint(report.Seed),
		"p_value_mode": string(report.PValueMode),
		"islands":      report.Islands,
		"warnings":     report.Warnings,
	}

	data, err := fc.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("encode feature collection: %w", err)
	}
	return data, nil
}
