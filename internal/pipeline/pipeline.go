// Package pipeline runs an OSM export through extraction, filtering,
// reprojection, storage and export.
package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/osm-poi-cli/internal/driver"
	"github.com/sells-group/osm-poi-cli/internal/export"
	"github.com/sells-group/osm-poi-cli/internal/extract"
	"github.com/sells-group/osm-poi-cli/internal/spatial"
	"github.com/sells-group/osm-poi-cli/internal/store"
)

// Options configures a pipeline run.
type Options struct {
	Source    string         // path of the OSM file
	Driver    driver.Options // scan options; Format inferred from Source when empty
	Amenities []string       // keep only these amenities; nil keeps every record
	SRID      int            // output SRID; 0 means 4326
	Store     store.Store    // optional; records are saved when set
	Sinks     []export.Sink  // written in parallel after extraction
	SinkLimit int            // max concurrent sinks; default 4
}

// Result summarises a pipeline run.
type Result struct {
	RunID    string                  `json:"run_id,omitempty"`
	Source   string                  `json:"source"`
	SRID     int                     `json:"srid"`
	Scan     driver.Stats            `json:"scan"`
	Stats    store.RunStats          `json:"stats"`
	Warnings []*extract.ParseWarning `json:"-"`
	Records  []extract.Record        `json:"-"`
	Elapsed  time.Duration           `json:"elapsed"`
}

// Run reads opts.Source through the OSM driver and processes its points.
func Run(ctx context.Context, opts Options) (*Result, error) {
	features, scan, err := driver.Open(ctx, opts.Source, opts.Driver)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: read source")
	}

	res, err := Process(ctx, opts.Source, features, opts)
	if res != nil {
		res.Scan = scan
	}
	return res, err
}

// Process runs already-parsed features through the rest of the pipeline.
// Extraction is sequential; only the sinks run concurrently.
func Process(ctx context.Context, source string, features []extract.Feature, opts Options) (*Result, error) {
	start := time.Now()
	log := zap.L().With(zap.String("component", "pipeline"), zap.String("source", source))

	srid := opts.SRID
	if srid == 0 {
		srid = spatial.SRIDWGS84
	}
	if !spatial.ValidSRID(srid) {
		return nil, eris.Errorf("pipeline: unsupported srid %d", srid)
	}

	res := &Result{Source: source, SRID: srid}

	if opts.Store != nil {
		run, err := opts.Store.CreateRun(ctx, source, srid)
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: create run")
		}
		res.RunID = run.ID
		log = log.With(zap.String("run_id", run.ID))
	}

	err := process(ctx, log, features, opts, srid, res)
	res.Elapsed = time.Since(start)

	if opts.Store != nil {
		status := store.RunStatusComplete
		if err != nil {
			status = store.RunStatusFailed
		}
		// The run may have been cancelled; recording its outcome must not be.
		if finishErr := opts.Store.FinishRun(context.WithoutCancel(ctx), res.RunID, status, res.Stats); finishErr != nil {
			log.Error("failed to record run outcome", zap.Error(finishErr))
		}
	}

	if err != nil {
		return res, err
	}

	log.Info("pipeline complete",
		zap.Int("features", res.Stats.Features),
		zap.Int("kept", res.Stats.Kept),
		zap.Int("warnings", res.Stats.Warnings),
		zap.Duration("elapsed", res.Elapsed),
	)
	return res, nil
}

func process(ctx context.Context, log *zap.Logger, features []extract.Feature, opts Options, srid int, res *Result) error {
	records, warnings := extract.Extract(features)
	for _, w := range warnings {
		log.Warn("skipping amenity for malformed other_tags",
			zap.Int("index", w.Index),
			zap.Int("offset", w.Offset),
			zap.String("reason", w.Reason),
		)
	}

	kept := records
	if opts.Amenities != nil {
		kept = extract.FilterAmenity(records, opts.Amenities...)
	}

	projected, err := spatial.Reproject(kept, srid)
	if err != nil {
		return eris.Wrap(err, "pipeline: reproject")
	}

	res.Warnings = warnings
	res.Records = projected
	res.Stats = store.RunStats{
		Features: len(features),
		Records:  len(records),
		Kept:     len(projected),
		Warnings: len(warnings),
	}

	if opts.Store != nil {
		if _, err := opts.Store.SaveRecords(ctx, res.RunID, projected); err != nil {
			return eris.Wrap(err, "pipeline: save records")
		}
	}

	return writeSinks(ctx, log, opts, projected)
}

func writeSinks(ctx context.Context, log *zap.Logger, opts Options, records []extract.Record) error {
	if len(opts.Sinks) == 0 {
		return nil
	}

	limit := opts.SinkLimit
	if limit <= 0 {
		limit = 4
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for _, s := range opts.Sinks {
		g.Go(func() error {
			start := time.Now()
			if err := s.Write(gctx, records); err != nil {
				return eris.Wrapf(err, "pipeline: sink %s", s.Name())
			}
			log.Info("sink written",
				zap.String("sink", s.Name()),
				zap.Int("records", len(records)),
				zap.Duration("elapsed", time.Since(start)),
			)
			return nil
		})
	}

	return g.Wait()
}
