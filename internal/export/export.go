// Package export writes extracted records to tabular and geospatial files.
package export

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/osm-poi-cli/internal/extract"
)

// Columns is the tabular column order shared by every sink.
var Columns = []string{"name", "highway", "amenity", "x", "y"}

// Sink consumes a full record set.
type Sink interface {
	// Name identifies the sink in logs (e.g., "csv:out/pois.csv").
	Name() string
	// Write persists records in order.
	Write(ctx context.Context, records []extract.Record) error
}

// Kinds lists the supported sink kinds.
var Kinds = []string{"csv", "xlsx", "geojson", "shp"}

// New builds a sink of the given kind writing to path. srid tags geometry
// for the formats that carry it.
func New(kind, path string, srid int) (Sink, error) {
	if path == "" {
		return nil, eris.Errorf("export: %s sink needs a path", kind)
	}
	switch kind {
	case "csv":
		return &CSVSink{Path: path}, nil
	case "xlsx":
		return &XLSXSink{Path: path}, nil
	case "geojson":
		return &GeoJSONSink{Path: path, SRID: srid}, nil
	case "shp":
		return &ShapefileSink{Path: path, SRID: srid}, nil
	default:
		return nil, eris.Errorf("export: unknown kind %q (valid: %s)", kind, strings.Join(Kinds, ", "))
	}
}

// ParseTarget splits "kind=path". A bare path infers the kind from its extension.
func ParseTarget(s string) (kind, path string, err error) {
	if k, p, ok := strings.Cut(s, "="); ok {
		return strings.ToLower(strings.TrimSpace(k)), strings.TrimSpace(p), nil
	}

	switch strings.ToLower(filepath.Ext(s)) {
	case ".csv":
		return "csv", s, nil
	case ".xlsx":
		return "xlsx", s, nil
	case ".geojson", ".json":
		return "geojson", s, nil
	case ".shp":
		return "shp", s, nil
	default:
		return "", "", eris.Errorf("export: cannot infer kind for %q, use kind=path", s)
	}
}

// row renders a record as strings in Columns order.
func row(r extract.Record) []string {
	return []string{
		extract.Value(r.Name),
		extract.Value(r.Highway),
		extract.Value(r.Amenity),
		formatFloat(r.Point.X),
		formatFloat(r.Point.Y),
	}
}
