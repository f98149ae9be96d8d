package export

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/osm-poi-cli/internal/extract"
)

// XLSXSink writes records to a single "records" sheet.
type XLSXSink struct {
	Path string
}

func (s *XLSXSink) Name() string { return "xlsx:" + s.Path }

func (s *XLSXSink) Write(ctx context.Context, records []extract.Record) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("records")
	if err != nil {
		return eris.Wrap(err, "xlsx: add sheet")
	}

	header := sheet.AddRow()
	for _, c := range Columns {
		header.AddCell().SetString(c)
	}

	for _, r := range records {
		if ctx.Err() != nil {
			return eris.Wrap(ctx.Err(), "xlsx: context cancelled")
		}
		row := sheet.AddRow()
		row.AddCell().SetString(extract.Value(r.Name))
		row.AddCell().SetString(extract.Value(r.Highway))
		row.AddCell().SetString(extract.Value(r.Amenity))
		row.AddCell().SetFloat(r.Point.X)
		row.AddCell().SetFloat(r.Point.Y)
	}

	if err := f.Save(s.Path); err != nil {
		return eris.Wrapf(err, "xlsx: save %s", s.Path)
	}
	return nil
}
