package export

import (
	"context"
	"os"

	"github.com/rotisserie/eris"

	"github.com/sells-group/osm-poi-cli/internal/extract"
	"github.com/sells-group/osm-poi-cli/internal/spatial"
)

// GeoJSONSink writes a FeatureCollection of point features.
type GeoJSONSink struct {
	Path string
	SRID int
}

func (s *GeoJSONSink) Name() string { return "geojson:" + s.Path }

func (s *GeoJSONSink) Write(_ context.Context, records []extract.Record) error {
	data, err := spatial.FeatureCollection(records, s.SRID)
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.Path, data, 0o644); err != nil {
		return eris.Wrapf(err, "geojson: write %s", s.Path)
	}
	return nil
}
