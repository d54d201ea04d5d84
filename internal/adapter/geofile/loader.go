// Package geofile reads region tables from GeoJSON and writes hot-spot
// results back as GeoJSON.
package geofile

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/couchcryptid/bird-flu-hotspots/internal/domain"
	"github.com/paulmach/orb/geojson"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Property keys, lower-cased. The first key found wins, so the renamed
// schema takes precedence over the raw administrative-areas export.
var (
	idKeys      = []string{"id", "objectid"}
	councilKeys = []string{"council", "english"}
	countyKeys  = []string{"county"}
	gaeilgeKeys = []string{"gaeilge", "contae"}
)

// Loader reads regions from a GeoJSON FeatureCollection on disk.
// It implements pipeline.RegionSource.
type Loader struct {
	path   string
	logger *slog.Logger
}

// NewLoader creates a loader for the file at path.
func NewLoader(path string, logger *slog.Logger) *Loader {
	return &Loader{path: path, logger: logger}
}

// LoadRegions reads and decodes the file.
func (l *Loader) LoadRegions(ctx context.Context) ([]domain.Region, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("read regions: %w", err)
	}
	regions, err := DecodeRegions(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", l.path, err)
	}
	l.logger.Info("regions loaded", "path", l.path, "regions", len(regions))
	return regions, nil
}

// DecodeRegions parses a FeatureCollection into regions, in feature order.
func DecodeRegions(data []byte) ([]domain.Region, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parse feature collection: %w", err)
	}

	title := cases.Title(language.English)
	regions := make([]domain.Region, 0, len(fc.Features))
	for i, f := range fc.Features {
		props := lowerKeys(f.Properties)

		id := stringProp(props, idKeys...)
		if id == "" && f.ID != nil {
			id = formatID(f.ID)
		}
		if id == "" {
			return nil, &domain.DegenerateInputError{Reason: fmt.Sprintf("feature %d has no id", i)}
		}

		r := domain.Region{
			ID: id,
			Names: domain.Names{
				Council: title.String(strings.TrimSpace(stringProp(props, councilKeys...))),
				County:  title.String(strings.TrimSpace(stringProp(props, countyKeys...))),
				Gaeilge: strings.TrimSpace(stringProp(props, gaeilgeKeys...)),
			},
			Geometry: f.Geometry,
		}
		if err := decodeCounts(&r, props); err != nil {
			return nil, err
		}
		regions = append(regions, r)
	}
	return regions, nil
}

// decodeCounts fills the bird counts. A missing total is derived from
// infected plus healthy; a present healthy count must agree with the others.
func decodeCounts(r *domain.Region, props map[string]any) error {
	total, hasTotal, err := countProp(r.ID, props, "total_birds")
	if err != nil {
		return err
	}
	infected, _, err := countProp(r.ID, props, "infected_birds")
	if err != nil {
		return err
	}
	healthy, hasHealthy, err := countProp(r.ID, props, "healthy_birds")
	if err != nil {
		return err
	}

	if !hasTotal {
		total = infected + healthy
	}
	r.TotalBirds = total
	r.InfectedBirds = infected
	if err := r.ValidateCounts(); err != nil {
		return err
	}
	if hasHealthy && hasTotal && healthy != r.HealthyBirds() {
		return &domain.InvalidValueError{
			RegionID: r.ID,
			Field:    "healthy_birds",
			Value:    float64(healthy),
			Reason:   fmt.Sprintf("%d healthy does not match %d captured minus %d infected", healthy, total, infected),
		}
	}
	return nil
}

func countProp(id string, props map[string]any, key string) (int, bool, error) {
	v, ok := props[key]
	if !ok || v == nil {
		return 0, false, nil
	}
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false, &domain.InvalidValueError{RegionID: id, Field: key, Reason: fmt.Sprintf("not a number: %q", n)}
		}
		f = parsed
	default:
		return 0, false, &domain.InvalidValueError{RegionID: id, Field: key, Reason: fmt.Sprintf("unexpected type %T", v)}
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false, &domain.InvalidValueError{RegionID: id, Field: key, Value: f, Reason: "not a whole number"}
	}
	if f < 0 {
		return 0, false, &domain.InvalidValueError{RegionID: id, Field: key, Value: f, Reason: "negative count"}
	}
	return int(f), true, nil
}

func stringProp(props map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := props[k]; ok && v != nil {
			return formatID(v)
		}
	}
	return ""
}

func formatID(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

func lowerKeys(props geojson.Properties) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		out[strings.ToLower(k)] = v
	}
	return out
}
