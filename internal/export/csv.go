package export

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/osm-poi-cli/internal/extract"
)

// CSVSink writes a header row followed by one row per record. Absent values
// are empty cells.
type CSVSink struct {
	Path string
}

func (s *CSVSink) Name() string { return "csv:" + s.Path }

func (s *CSVSink) Write(ctx context.Context, records []extract.Record) error {
	f, err := os.Create(s.Path)
	if err != nil {
		return eris.Wrapf(err, "csv: create %s", s.Path)
	}
	if err := WriteCSV(ctx, f, records); err != nil {
		f.Close() //nolint:errcheck
		return err
	}
	return eris.Wrapf(f.Close(), "csv: close %s", s.Path)
}

// WriteCSV streams records as CSV to w.
func WriteCSV(ctx context.Context, w io.Writer, records []extract.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return eris.Wrap(err, "csv: write header")
	}
	for i, r := range records {
		if ctx.Err() != nil {
			return eris.Wrap(ctx.Err(), "csv: context cancelled")
		}
		if err := cw.Write(row(r)); err != nil {
			return eris.Wrapf(err, "csv: write row %d", i)
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "csv: flush")
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
