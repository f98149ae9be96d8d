package main

import (
	"fmt"
	"io"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/osm-poi-cli/internal/driver"
	"github.com/sells-group/osm-poi-cli/internal/export"
	"github.com/sells-group/osm-poi-cli/internal/extract"
	"github.com/sells-group/osm-poi-cli/internal/pipeline"
)

var (
	extractFormat    string
	extractCharset   string
	extractProfile   string
	extractAmenities []string
	extractAll       bool
	extractSRID      int
	extractOut       []string
	extractStore     bool
)

var extractCmd = &cobra.Command{
	Use:   "extract <file>",
	Short: "Extract name, highway and amenity from OSM point features",
	Long: `Reads an OSM XML (.osm) or PBF (.osm.pbf) export and extracts one record per
point feature. By default only cafe, pub and bar amenities are kept.

Records are written to every --out target (kind=path, kind one of csv, xlsx,
geojson, shp). Without --out they are printed to stdout as CSV.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		opts, err := extractOptions(args[0])
		if err != nil {
			return err
		}

		if extractStore {
			st, err := initStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck
			opts.Store = st
		}

		res, err := pipeline.Run(ctx, opts)
		if err != nil {
			return eris.Wrap(err, "extract")
		}

		if len(opts.Sinks) == 0 {
			if err := export.WriteCSV(ctx, cmd.OutOrStdout(), res.Records); err != nil {
				return err
			}
		}

		printSummary(cmd.ErrOrStderr(), res)
		return nil
	},
}

func init() {
	f := extractCmd.Flags()
	f.StringVar(&extractFormat, "format", "", "input format: xml or pbf (default from file extension)")
	f.StringVar(&extractCharset, "charset", "", "source text encoding, e.g. iso-8859-1 (default from config)")
	f.StringVar(&extractProfile, "profile", "", "YAML profile of promoted and ignored OSM keys (default from config)")
	f.StringSliceVar(&extractAmenities, "amenity", nil, "amenity values to keep (default from config)")
	f.BoolVar(&extractAll, "all", false, "keep every point feature")
	f.IntVar(&extractSRID, "srid", 0, "output SRID: 4326 or 3857 (default from config)")
	f.StringArrayVar(&extractOut, "out", nil, "output target kind=path (repeatable)")
	f.BoolVar(&extractStore, "store", false, "record the run and its records in the configured store")
	rootCmd.AddCommand(extractCmd)
}

// extractOptions merges flags over config into pipeline options.
func extractOptions(source string) (pipeline.Options, error) {
	if extractSRID != 0 {
		cfg.Extract.SRID = extractSRID
	}
	if extractCharset != "" {
		cfg.Extract.Charset = extractCharset
	}
	if extractProfile != "" {
		cfg.Extract.Profile = extractProfile
	}
	if err := cfg.Validate("extract"); err != nil {
		return pipeline.Options{}, err
	}

	drv := driver.Options{
		Charset: cfg.Extract.Charset,
		Procs:   cfg.Extract.PBFProcs,
	}
	if extractFormat != "" {
		format, err := driver.ParseFormat(extractFormat)
		if err != nil {
			return pipeline.Options{}, err
		}
		drv.Format = format
	}
	if cfg.Extract.Profile != "" {
		profile, err := driver.LoadProfile(cfg.Extract.Profile)
		if err != nil {
			return pipeline.Options{}, err
		}
		drv.Profile = profile
	}

	opts := pipeline.Options{
		Source:    source,
		Driver:    drv,
		Amenities: amenityFilter(),
		SRID:      cfg.Extract.SRID,
		SinkLimit: cfg.Extract.SinkLimit,
	}

	for _, target := range extractOut {
		kind, path, err := export.ParseTarget(target)
		if err != nil {
			return pipeline.Options{}, err
		}
		sink, err := export.New(kind, path, opts.SRID)
		if err != nil {
			return pipeline.Options{}, err
		}
		opts.Sinks = append(opts.Sinks, sink)
	}

	return opts, nil
}

// amenityFilter returns nil when every record should be kept.
func amenityFilter() []string {
	if extractAll {
		return nil
	}
	if values := splitAndTrim(extractAmenities); len(values) > 0 {
		return values
	}
	if values := splitAndTrim(cfg.Extract.Amenities); len(values) > 0 {
		return values
	}
	return extract.DefaultAmenities
}

// splitAndTrim flattens comma lists and drops blanks.
func splitAndTrim(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func printSummary(w io.Writer, res *pipeline.Result) {
	zap.L().Info("extract complete",
		zap.String("run_id", res.RunID),
		zap.Int64("nodes", res.Scan.Nodes),
		zap.Int("kept", res.Stats.Kept),
	)

	_, _ = fmt.Fprintf(w, "%d points scanned, %d records kept, %d warnings (srid %d, %s)\n",
		res.Stats.Features, res.Stats.Kept, res.Stats.Warnings, res.SRID, res.Elapsed.Round(time.Millisecond))
	if res.RunID != "" {
		_, _ = fmt.Fprintf(w, "run %s\n", res.RunID)
	}
	for _, a := range sortedCounts(extract.CountByAmenity(res.Records)) {
		_, _ = fmt.Fprintf(w, "  %s\t%d\n", a.name, a.n)
	}
}

type amenityCount struct {
	name string
	n    int
}

func sortedCounts(counts map[string]int) []amenityCount {
	out := make([]amenityCount, 0, len(counts))
	for name, n := range counts {
		if name == "" {
			name = "(none)"
		}
		out = append(out, amenityCount{name, n})
	}
	slices.SortFunc(out, func(a, b amenityCount) int { return strings.Compare(a.name, b.name) })
	return out
}
