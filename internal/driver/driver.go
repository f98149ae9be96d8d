// Package driver adapts OSM XML and PBF scanners into point features with a
// property mapping, the shape the extract package consumes.
package driver

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"
	"github.com/paulmach/osm/osmxml"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/sells-group/osm-poi-cli/internal/extract"
)

// Format identifies the on-disk OSM encoding.
type Format string

const (
	// FormatXML is the .osm XML export format.
	FormatXML Format = "xml"
	// FormatPBF is the protocol buffer binary format.
	FormatPBF Format = "pbf"
)

// ParseFormat converts a string into a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "xml", "osm":
		return FormatXML, nil
	case "pbf", "osm.pbf":
		return FormatPBF, nil
	default:
		return "", eris.Errorf("unknown format: %q (valid: xml, pbf)", s)
	}
}

// FormatFromPath infers the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".osm", ".xml":
		return FormatXML, nil
	case ".pbf":
		return FormatPBF, nil
	default:
		return "", eris.Errorf("driver: cannot infer format from %q", path)
	}
}

// Options configures a scan.
type Options struct {
	Format  Format  // required for ReadPoints; inferred by Open when empty
	Charset string  // source charset for XML input; empty means the declared encoding, else UTF-8
	Profile Profile // zero value means DefaultProfile
	Procs   int     // PBF decoder goroutines; default 1
}

// Stats counts what a scan saw.
type Stats struct {
	Nodes     int64 `json:"nodes"`
	Points    int64 `json:"points"`
	Ways      int64 `json:"ways"`
	Relations int64 `json:"relations"`
}

// Open reads point features from the OSM file at path.
func Open(ctx context.Context, path string, opts Options) ([]extract.Feature, Stats, error) {
	if opts.Format == "" {
		f, err := FormatFromPath(path)
		if err != nil {
			return nil, Stats{}, err
		}
		opts.Format = f
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, Stats{}, eris.Wrapf(err, "driver: open %s", path)
	}
	defer func() { _ = file.Close() }()

	return ReadPoints(ctx, file, opts)
}

// ReadPoints scans r and returns one feature per tagged node, in document order.
// Ways and relations are counted but not emitted.
func ReadPoints(ctx context.Context, r io.Reader, opts Options) ([]extract.Feature, Stats, error) {
	log := zap.L().With(zap.String("component", "driver"), zap.String("format", string(opts.Format)))

	profile := opts.Profile
	if profile.Promoted == nil && profile.Ignored == nil {
		profile = DefaultProfile()
	}

	scanner, err := newScanner(ctx, r, opts)
	if err != nil {
		return nil, Stats{}, err
	}
	defer func() { _ = scanner.Close() }()

	b := newBuilder(profile)
	var stats Stats
	features := make([]extract.Feature, 0)

	for scanner.Scan() {
		switch o := scanner.Object().(type) {
		case *osm.Node:
			stats.Nodes++
			if f, ok := b.build(o); ok {
				features = append(features, f)
				stats.Points++
			}
		case *osm.Way:
			stats.Ways++
		case *osm.Relation:
			stats.Relations++
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, stats, eris.Wrap(err, "driver: scan")
	}

	log.Debug("scan complete",
		zap.Int64("nodes", stats.Nodes),
		zap.Int64("points", stats.Points),
		zap.Int64("ways", stats.Ways),
		zap.Int64("relations", stats.Relations),
	)
	return features, stats, nil
}

func newScanner(ctx context.Context, r io.Reader, opts Options) (osm.Scanner, error) {
	switch opts.Format {
	case FormatXML:
		src, err := decodeCharset(r, opts.Charset)
		if err != nil {
			return nil, err
		}
		return osmxml.New(ctx, src), nil
	case FormatPBF:
		procs := opts.Procs
		if procs < 1 {
			procs = 1
		}
		s := osmpbf.New(ctx, r, procs)
		s.SkipWays = true
		s.SkipRelations = true
		return s, nil
	default:
		return nil, eris.Errorf("driver: unsupported format %q", opts.Format)
	}
}

// xmlEncodingAttr matches the encoding pseudo-attribute of an XML declaration.
var xmlEncodingAttr = regexp.MustCompile(`^(\s*(?:\x{FEFF})?<\?xml\b[^>]*?)\s+encoding\s*=\s*(?:"([^"]*)"|'([^']*)')`)

// decodeCharset wraps r so the XML scanner always receives UTF-8. An empty
// charset falls back to the encoding named in the XML declaration. When the
// stream is re-decoded, the declaration's encoding is dropped so the XML
// decoder does not try to decode it a second time.
func decodeCharset(r io.Reader, charset string) (io.Reader, error) {
	br := bufio.NewReader(r)
	prolog, err := br.ReadString('>')
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, eris.Wrap(err, "driver: read xml prolog")
	}

	m := xmlEncodingAttr.FindStringSubmatch(prolog)
	if charset == "" && m != nil {
		charset = m[2] + m[3]
	}

	if isUTF8(charset) {
		return io.MultiReader(strings.NewReader(prolog), br), nil
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, eris.Wrapf(err, "driver: unsupported charset %q", charset)
	}

	if m != nil {
		prolog = xmlEncodingAttr.ReplaceAllString(prolog, "$1")
	}
	return enc.NewDecoder().Reader(io.MultiReader(strings.NewReader(prolog), br)), nil
}

func isUTF8(charset string) bool {
	switch strings.ToLower(charset) {
	case "", "utf-8", "utf8":
		return true
	}
	return false
}
