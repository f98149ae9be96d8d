package spatial

import (
	"encoding/json"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/osm-poi-cli/internal/extract"
)

// FeatureCollection renders records as a GeoJSON FeatureCollection. Feature
// IDs are the record's position in the slice; absent attributes are null.
func FeatureCollection(records []extract.Record, srid int) ([]byte, error) {
	fc := geojson.FeatureCollection{
		Features: make([]*geojson.Feature, 0, len(records)),
	}

	for i, r := range records {
		if !finite(r.Point.X) || !finite(r.Point.Y) {
			return nil, eris.Errorf("spatial: record %d has non-finite coordinates (%g, %g)", i, r.Point.X, r.Point.Y)
		}
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:       strconv.Itoa(i),
			Geometry: NewPoint(r.Point, srid),
			Properties: map[string]any{
				"name":    nullable(r.Name),
				"highway": nullable(r.Highway),
				"amenity": nullable(r.Amenity),
			},
		})
	}

	data, err := json.Marshal(&fc)
	if err != nil {
		return nil, eris.Wrap(err, "spatial: marshal feature collection")
	}
	return data, nil
}

func nullable(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}
