// Package spatial attaches geometry to extracted records: reprojection, EWKB
// for PostGIS, GeoJSON for plotting and the extent of a record set.
package spatial

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"github.com/sells-group/osm-poi-cli/internal/extract"
)

// Supported spatial reference identifiers.
const (
	SRIDWGS84       = 4326
	SRIDWebMercator = 3857
)

// ValidSRID reports whether srid is a supported target.
func ValidSRID(srid int) bool {
	return srid == SRIDWGS84 || srid == SRIDWebMercator
}

// Reproject returns a copy of records with each Point converted from WGS84
// to srid. The input slice is not modified. Points at or beyond the poles
// cannot be projected to 3857 and are reported as an error.
func Reproject(records []extract.Record, srid int) ([]extract.Record, error) {
	if !ValidSRID(srid) {
		return nil, eris.Errorf("spatial: unsupported srid %d (valid: 4326, 3857)", srid)
	}

	out := make([]extract.Record, len(records))
	copy(out, records)

	if srid == SRIDWGS84 {
		return out, nil
	}

	for i := range out {
		lon, lat := out[i].Point.X, out[i].Point.Y
		if math.Abs(lat) >= 90 {
			return nil, eris.Errorf("spatial: record %d: latitude %g has no Web Mercator projection", i, lat)
		}
		p := project.Point(orb.Point{lon, lat}, project.WGS84.ToMercator)
		if !finite(p.X()) || !finite(p.Y()) {
			return nil, eris.Errorf("spatial: record %d: (%g, %g) projects outside Web Mercator", i, lon, lat)
		}
		out[i].Point = extract.Point{X: p.X(), Y: p.Y()}
	}
	return out, nil
}

func finite(v float64) bool {
	return !math.IsInf(v, 0) && !math.IsNaN(v)
}

// NewPoint builds a go-geom point tagged with srid.
func NewPoint(p extract.Point, srid int) *geom.Point {
	return geom.NewPointFlat(geom.XY, []float64{p.X, p.Y}).SetSRID(srid)
}

// EncodeEWKB converts a point to little-endian EWKB bytes carrying srid.
func EncodeEWKB(p extract.Point, srid int) ([]byte, error) {
	data, err := ewkb.Marshal(NewPoint(p, srid), ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "spatial: encode EWKB")
	}
	return data, nil
}

// Bounds returns the extent of the record points. ok is false for no records.
func Bounds(records []extract.Record) (minX, minY, maxX, maxY float64, ok bool) {
	if len(records) == 0 {
		return 0, 0, 0, 0, false
	}

	b := geom.NewBounds(geom.XY)
	for _, r := range records {
		b.Extend(NewPoint(r.Point, 0))
	}
	return b.Min(0), b.Min(1), b.Max(0), b.Max(1), true
}
