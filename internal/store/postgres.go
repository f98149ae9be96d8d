package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/osm-poi-cli/internal/db"
	"github.com/sells-group/osm-poi-cli/internal/extract"
	"github.com/sells-group/osm-poi-cli/internal/spatial"
)

// recordColumns is the COPY column order for osm.poi_records.
var recordColumns = []string{"run_id", "seq", "name", "highway", "amenity", "x", "y", "geom"}

// PostgresStore implements Store on PostGIS.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pool, err := db.Connect(ctx, connString, db.PoolConfig{})
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool. The caller owns its lifecycle.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE EXTENSION IF NOT EXISTS postgis;
CREATE SCHEMA IF NOT EXISTS osm;

CREATE TABLE IF NOT EXISTS osm.runs (
	id         TEXT PRIMARY KEY,
	source     TEXT NOT NULL,
	srid       INTEGER NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	stats      JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS osm.poi_records (
	run_id  TEXT NOT NULL REFERENCES osm.runs(id) ON DELETE CASCADE,
	seq     INTEGER NOT NULL,
	name    TEXT,
	highway TEXT,
	amenity TEXT,
	x       DOUBLE PRECISION NOT NULL,
	y       DOUBLE PRECISION NOT NULL,
	geom    geometry(Point),
	PRIMARY KEY (run_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_osm_runs_created_at ON osm.runs(created_at);
CREATE INDEX IF NOT EXISTS idx_osm_poi_records_amenity ON osm.poi_records(run_id, amenity);
CREATE INDEX IF NOT EXISTS idx_osm_poi_records_geom ON osm.poi_records USING GIST (geom);
`

// Migrate creates the osm schema and tables.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Close releases the pool when the store created it.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, source string, srid int) (*Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO osm.runs (id, source, srid, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		id, source, srid, string(RunStatusRunning), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &Run{
		ID:        id,
		Source:    source,
		SRID:      srid,
		Status:    RunStatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) FinishRun(ctx context.Context, runID string, status RunStatus, stats RunStats) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal stats")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE osm.runs SET status = $1, stats = $2, updated_at = now() WHERE id = $3`,
		string(status), statsJSON, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, source, srid, status, stats, created_at, updated_at FROM osm.runs WHERE id = $1`,
		runID,
	)
	run, err := scanPgRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return run, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, source, srid, status, stats, created_at, updated_at FROM osm.runs ORDER BY created_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	runs := make([]Run, 0)
	for rows.Next() {
		run, err := scanPgRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *run)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: iterate runs")
}

// SaveRecords upserts records keyed on (run_id, seq) with an EWKB point
// geometry in the run's SRID.
func (s *PostgresStore) SaveRecords(ctx context.Context, runID string, records []extract.Record) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return 0, err
	}

	rows := make([][]any, 0, len(records))
	for i, r := range records {
		wkb, err := spatial.EncodeEWKB(r.Point, run.SRID)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: encode record %d", i)
		}
		rows = append(rows, []any{runID, int32(i), r.Name, r.Highway, r.Amenity, r.Point.X, r.Point.Y, wkb})
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "osm.poi_records",
		Columns:      recordColumns,
		ConflictKeys: []string{"run_id", "seq"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: save records")
	}
	return n, nil
}

func (s *PostgresStore) ListRecords(ctx context.Context, runID string, amenities []string) ([]extract.Record, error) {
	query := `SELECT name, highway, amenity, x, y FROM osm.poi_records WHERE run_id = $1`
	args := []any{runID}
	if len(amenities) > 0 {
		query += ` AND amenity = ANY($2)`
		args = append(args, amenities)
	}
	query += ` ORDER BY seq`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list records for run %s", runID)
	}
	defer rows.Close()

	records := make([]extract.Record, 0)
	for rows.Next() {
		var r extract.Record
		if err := rows.Scan(&r.Name, &r.Highway, &r.Amenity, &r.Point.X, &r.Point.Y); err != nil {
			return nil, eris.Wrap(err, "postgres: scan record")
		}
		records = append(records, r)
	}
	return records, eris.Wrap(rows.Err(), "postgres: iterate records")
}

func scanPgRun(row pgx.Row) (*Run, error) {
	var run Run
	var status string
	var stats []byte
	if err := row.Scan(&run.ID, &run.Source, &run.SRID, &status, &stats, &run.CreatedAt, &run.UpdatedAt); err != nil {
		return nil, err
	}
	run.Status = RunStatus(status)
	if len(stats) > 0 {
		if err := json.Unmarshal(stats, &run.Stats); err != nil {
			return nil, eris.Wrap(err, "unmarshal stats")
		}
	}
	return &run, nil
}
