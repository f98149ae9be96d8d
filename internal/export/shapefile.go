package export

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"

	"github.com/sells-group/osm-poi-cli/internal/extract"
	"github.com/sells-group/osm-poi-cli/internal/spatial"
)

// ShapefileSink writes POINT shapes with name, highway and amenity DBF
// fields. DBF has no null, so absent values become empty strings.
type ShapefileSink struct {
	Path string
	SRID int
}

const (
	wgs84WKT = `GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137.0,298.257223563]],` +
		`PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]]`
	webMercatorWKT = `PROJCS["WGS_1984_Web_Mercator_Auxiliary_Sphere",` + wgs84WKT + `,` +
		`PROJECTION["Mercator_Auxiliary_Sphere"],PARAMETER["False_Easting",0.0],PARAMETER["False_Northing",0.0],` +
		`PARAMETER["Central_Meridian",0.0],PARAMETER["Standard_Parallel_1",0.0],PARAMETER["Auxiliary_Sphere_Type",0.0],` +
		`UNIT["Meter",1.0]]`
)

// projections holds the .prj WKT for the SRIDs spatial supports.
var projections = map[int]string{
	spatial.SRIDWGS84:       wgs84WKT,
	spatial.SRIDWebMercator: webMercatorWKT,
}

// dbfFieldSize is the widest DBF character field.
const dbfFieldSize = 254

func (s *ShapefileSink) Name() string { return "shp:" + s.Path }

func (s *ShapefileSink) Write(ctx context.Context, records []extract.Record) error {
	// go-shp derives the .shx and .dbf names by replacing a three letter extension.
	path := s.Path
	if !strings.EqualFold(filepath.Ext(path), ".shp") {
		path += ".shp"
	}

	w, err := shp.Create(path, shp.POINT)
	if err != nil {
		return eris.Wrapf(err, "shp: create %s", path)
	}
	defer w.Close()

	fields := []shp.Field{
		shp.StringField("name", dbfFieldSize),
		shp.StringField("highway", dbfFieldSize),
		shp.StringField("amenity", dbfFieldSize),
	}
	if err := w.SetFields(fields); err != nil {
		return eris.Wrap(err, "shp: set fields")
	}

	for i, r := range records {
		if ctx.Err() != nil {
			return eris.Wrap(ctx.Err(), "shp: context cancelled")
		}
		n := int(w.Write(&shp.Point{X: r.Point.X, Y: r.Point.Y}))
		for j, v := range []*string{r.Name, r.Highway, r.Amenity} {
			if err := w.WriteAttribute(n, j, truncateUTF8(extract.Value(v), dbfFieldSize)); err != nil {
				return eris.Wrapf(err, "shp: write attribute %d of record %d", j, i)
			}
		}
	}

	if wkt, ok := projections[s.SRID]; ok {
		prj := path[:len(path)-len(".shp")] + ".prj"
		if err := os.WriteFile(prj, []byte(wkt), 0o644); err != nil {
			return eris.Wrapf(err, "shp: write %s", prj)
		}
	}
	return nil
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
