package driver

import (
	"strings"

	"github.com/paulmach/osm"

	"github.com/sells-group/osm-poi-cli/internal/extract"
)

// builder turns tagged nodes into features according to a Profile.
type builder struct {
	promoted map[string]bool
	ignored  map[string]bool
}

func newBuilder(p Profile) *builder {
	return &builder{promoted: p.promotedSet(), ignored: p.ignoredSet()}
}

// build returns false for nodes without any significant tag; those are
// geometry vertices rather than points of interest.
func (b *builder) build(n *osm.Node) (extract.Feature, bool) {
	props := make(map[string]*string)
	var other []osm.Tag

	for _, t := range n.Tags {
		if b.ignored[t.Key] {
			continue
		}
		if b.promoted[t.Key] {
			props[t.Key] = extract.Str(t.Value)
			continue
		}
		other = append(other, t)
	}

	if len(props) == 0 && len(other) == 0 {
		return extract.Feature{}, false
	}

	if len(other) > 0 {
		props[extract.KeyOtherTags] = extract.Str(EncodeOtherTags(other))
	}

	return extract.Feature{
		ID:         int64(n.ID),
		Lon:        n.Lon,
		Lat:        n.Lat,
		Properties: props,
	}, true
}

// EncodeOtherTags packs tags into the hstore form "k"=>"v","k2"=>"v2".
func EncodeOtherTags(tags []osm.Tag) string {
	var b strings.Builder
	for i, t := range tags {
		if i > 0 {
			b.WriteByte(',')
		}
		writeQuoted(&b, t.Key)
		b.WriteString("=>")
		writeQuoted(&b, t.Value)
	}
	return b.String()
}

func writeQuoted(b *strings.Builder, s string) {
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		if s[i] == '"' || s[i] == '\\' {
			b.WriteByte('\\')
		}
		b.WriteByte(s[i])
	}
	b.WriteByte('"')
}
