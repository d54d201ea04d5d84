// Package postgis loads regions from, and computes contiguity inside, a
// PostGIS database.
package postgis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/bird-flu-hotspots/internal/domain"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/paulmach/orb/geojson"
)

// Schema creates the region table when it is missing. Geometry is stored in
// the projected Irish grid the source data ships in.
const Schema = `
CREATE EXTENSION IF NOT EXISTS postgis;
CREATE TABLE IF NOT EXISTS admin_areas (
	id             TEXT PRIMARY KEY,
	council        TEXT,
	county         TEXT,
	gaeilge        TEXT,
	total_birds    INTEGER NOT NULL DEFAULT 0 CHECK (total_birds >= 0),
	infected_birds INTEGER NOT NULL DEFAULT 0 CHECK (infected_birds >= 0),
	geom           geometry(MultiPolygon, 29902) NOT NULL
);
CREATE INDEX IF NOT EXISTS admin_areas_geom_idx ON admin_areas USING GIST (geom);
`

// Store is a region source and a weights provider backed by PostGIS.
// It implements pipeline.RegionSource and pipeline.WeightsProvider.
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// Open connects with the pgx driver and pings the database.
func Open(ctx context.Context, dsn string, logger *slog.Logger) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxIdleTime(time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logger.Info("postgis connected")
	return NewStore(db, logger), nil
}

// NewStore wraps an existing connection.
func NewStore(db *sqlx.DB, logger *slog.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// EnsureSchema applies Schema.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

type regionRow struct {
	ID            string `db:"id"`
	Council       string `db:"council"`
	County        string `db:"county"`
	Gaeilge       string `db:"gaeilge"`
	TotalBirds    int    `db:"total_birds"`
	InfectedBirds int    `db:"infected_birds"`
	GeoJSON       string `db:"geometry_json"`
}

// LoadRegions reads every region ordered by id.
func (s *Store) LoadRegions(ctx context.Context) ([]domain.Region, error) {
	const query = `
		SELECT
			id,
			COALESCE(council, '') AS council,
			COALESCE(county, '') AS county,
			COALESCE(gaeilge, '') AS gaeilge,
			total_birds,
			infected_birds,
			ST_AsGeoJSON(geom) AS geometry_json
		FROM admin_areas
		ORDER BY id
	`
	var rows []regionRow
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("select regions: %w", err)
	}

	regions := make([]domain.Region, 0, len(rows))
	for _, row := range rows {
		g, err := geojson.UnmarshalGeometry([]byte(row.GeoJSON))
		if err != nil {
			return nil, &domain.DegenerateInputError{RegionID: row.ID, Reason: fmt.Sprintf("decode geometry: %v", err)}
		}
		regions = append(regions, domain.Region{
			ID:            row.ID,
			Names:         domain.Names{Council: row.Council, County: row.County, Gaeilge: row.Gaeilge},
			Geometry:      g.Geometry(),
			TotalBirds:    row.TotalBirds,
			InfectedBirds: row.InfectedBirds,
		})
	}
	s.logger.Info("regions loaded", "source", "postgis", "regions", len(regions))
	return regions, nil
}

type pairRow struct {
	A string `db:"a_id"`
	B string `db:"b_id"`
}

// Weights derives contiguity with ST_Intersects: boundaries that share any
// point, corners included. Every region must exist in admin_areas.
func (s *Store) Weights(ctx context.Context, regions []domain.Region) (*domain.Weights, error) {
	if len(regions) < 2 {
		return nil, &domain.DegenerateInputError{Reason: fmt.Sprintf("need at least 2 regions, got %d", len(regions))}
	}
	ids := make([]string, len(regions))
	for i, r := range regions {
		ids[i] = r.ID
	}

	var found int
	if err := s.db.GetContext(ctx, &found, `SELECT count(*) FROM admin_areas WHERE id = ANY($1)`, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("count regions: %w", err)
	}
	if found != len(ids) {
		return nil, &domain.DimensionMismatchError{
			Values:  found,
			Regions: len(ids),
			Detail:  "regions missing from admin_areas",
		}
	}

	const query = `
		SELECT a.id AS a_id, b.id AS b_id
		FROM admin_areas a
		JOIN admin_areas b
			ON a.id < b.id
			AND a.geom && b.geom
			AND ST_Intersects(a.geom, b.geom)
		WHERE a.id = ANY($1) AND b.id = ANY($1)
	`
	var pairs []pairRow
	if err := s.db.SelectContext(ctx, &pairs, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("select neighbour pairs: %w", err)
	}

	adjacency := make(map[string][]string, len(ids))
	for _, p := range pairs {
		adjacency[p.A] = append(adjacency[p.A], p.B)
	}
	w, err := domain.NewWeights(ids, adjacency)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("postgis weights built", "regions", w.Len(), "pairs", len(pairs))
	return w, nil
}

// SaveRegions upserts regions in one transaction. Polygons are promoted to
// MultiPolygon to fit the column type.
func (s *Store) SaveRegions(ctx context.Context, regions []domain.Region) error {
	const upsert = `
		INSERT INTO admin_areas (id, council, county, gaeilge, total_birds, infected_birds, geom)
		VALUES ($1, $2, $3, $4, $5, $6, ST_Multi(ST_SetSRID(ST_GeomFromGeoJSON($7), 29902)))
		ON CONFLICT (id) DO UPDATE SET
			council = EXCLUDED.council,
			county = EXCLUDED.county,
			gaeilge = EXCLUDED.gaeilge,
			total_birds = EXCLUDED.total_birds,
			infected_birds = EXCLUDED.infected_birds,
			geom = EXCLUDED.geom
	`
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	for _, r := range regions {
		geom, err := geojson.NewGeometry(r.Geometry).MarshalJSON()
		if err != nil {
			return fmt.Errorf("encode geometry of %s: %w", r.ID, err)
		}
		if _, err := tx.ExecContext(ctx, upsert,
			r.ID, r.Names.Council, r.Names.County, r.Names.Gaeilge, r.TotalBirds, r.InfectedBirds, string(geom),
		); err != nil {
			return fmt.Errorf("upsert region %s: %w", r.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// CheckReadiness pings the database.
func (s *Store) CheckReadiness(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.logger.Info("closing postgis connection")
	return s.db.Close()
}
