// Package store persists extraction runs and their records.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/osm-poi-cli/internal/extract"
)

// RunStatus is the lifecycle state of an extraction run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// RunStats summarises an extraction run.
type RunStats struct {
	Features int `json:"features"`
	Records  int `json:"records"`
	Kept     int `json:"kept"`
	Warnings int `json:"warnings"`
}

// Run is one invocation of the extraction pipeline against a source file.
type Run struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	SRID      int       `json:"srid"`
	Status    RunStatus `json:"status"`
	Stats     RunStats  `json:"stats"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store defines the persistence interface for extraction runs.
type Store interface {
	CreateRun(ctx context.Context, source string, srid int) (*Run, error)
	FinishRun(ctx context.Context, runID string, status RunStatus, stats RunStats) error
	GetRun(ctx context.Context, runID string) (*Run, error)
	ListRuns(ctx context.Context, limit int) ([]Run, error)

	// SaveRecords stores records under runID keyed by their slice index.
	SaveRecords(ctx context.Context, runID string, records []extract.Record) (int64, error)
	// ListRecords returns the run's records in their original order. A
	// non-empty amenities list restricts the result to those amenity values.
	ListRecords(ctx context.Context, runID string, amenities []string) ([]extract.Record, error)

	Migrate(ctx context.Context) error
	Close() error
}

// Open returns a Store for the given driver ("sqlite" or "postgres").
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case "sqlite":
		return NewSQLite(dsn)
	case "postgres":
		return NewPostgres(ctx, dsn)
	default:
		return nil, eris.Errorf("store: unknown driver %q (valid: sqlite, postgres)", driver)
	}
}

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = eris.New("store: not found")
