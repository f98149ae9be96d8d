package extract

import (
	"fmt"
	"strings"
)

// Tag is one key/value pair decoded from an other_tags string.
type Tag struct {
	Key   string
	Value string
}

// ParseWarning reports an other_tags string that could not be decoded.
// It is recovered per record and never aborts a batch.
type ParseWarning struct {
	Index  int    // position of the offending feature, -1 when unknown
	Raw    string // the undecodable string
	Offset int    // byte offset where decoding stopped
	Reason string
}

func (w *ParseWarning) Error() string {
	if w.Index >= 0 {
		return fmt.Sprintf("extract: feature %d: malformed other_tags at byte %d: %s", w.Index, w.Offset, w.Reason)
	}
	return fmt.Sprintf("extract: malformed other_tags at byte %d: %s", w.Offset, w.Reason)
}

// ParseOtherTags decodes an other_tags string into its pairs, in order.
//
// The canonical encoding is the hstore form written by OSM drivers:
//
//	"cuisine"=>"coffee_shop","amenity"=>"cafe"
//
// A bare-key form (amenity="cafe") separated by commas or semicolons is also
// accepted. Inside quotes, \" and \\ are escapes. An empty string yields no tags.
func ParseOtherTags(s string) ([]Tag, error) {
	p := &tagParser{src: s}
	var tags []Tag

	p.skipSpace()
	for !p.done() {
		key, err := p.key()
		if err != nil {
			return nil, err
		}
		if err := p.assign(); err != nil {
			return nil, err
		}
		val, err := p.quoted()
		if err != nil {
			return nil, err
		}
		tags = append(tags, Tag{Key: key, Value: val})

		p.skipSpace()
		if p.done() {
			break
		}
		if c := p.src[p.pos]; c != ',' && c != ';' {
			return nil, p.fail(fmt.Sprintf("expected separator, found %q", c))
		}
		p.pos++
		p.skipSpace()
		if p.done() {
			return nil, p.fail("trailing separator")
		}
	}
	return tags, nil
}

// Lookup returns the value of the first tag whose key equals key exactly.
func Lookup(tags []Tag, key string) (string, bool) {
	for _, t := range tags {
		if t.Key == key {
			return t.Value, true
		}
	}
	return "", false
}

type tagParser struct {
	src string
	pos int
}

func (p *tagParser) done() bool { return p.pos >= len(p.src) }

func (p *tagParser) fail(reason string) *ParseWarning {
	return &ParseWarning{Index: -1, Raw: p.src, Offset: p.pos, Reason: reason}
}

func (p *tagParser) skipSpace() {
	for !p.done() && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t' || p.src[p.pos] == '\n' || p.src[p.pos] == '\r') {
		p.pos++
	}
}

func (p *tagParser) key() (string, error) {
	if p.src[p.pos] == '"' {
		return p.quoted()
	}
	start := p.pos
	for !p.done() {
		c := p.src[p.pos]
		if c == '=' || c == ' ' || c == ',' || c == ';' || c == '"' {
			break
		}
		p.pos++
	}
	if p.pos == start {
		return "", p.fail("empty key")
	}
	return p.src[start:p.pos], nil
}

// assign consumes "=>" or "=" surrounded by optional whitespace.
func (p *tagParser) assign() error {
	p.skipSpace()
	switch {
	case strings.HasPrefix(p.src[p.pos:], "=>"):
		p.pos += 2
	case strings.HasPrefix(p.src[p.pos:], "="):
		p.pos++
	default:
		return p.fail("expected => after key")
	}
	p.skipSpace()
	return nil
}

func (p *tagParser) quoted() (string, error) {
	if p.done() || p.src[p.pos] != '"' {
		return "", p.fail("expected opening quote")
	}
	p.pos++

	var b strings.Builder
	for !p.done() {
		c := p.src[p.pos]
		switch c {
		case '\\':
			if p.pos+1 >= len(p.src) {
				return "", p.fail("dangling escape")
			}
			b.WriteByte(p.src[p.pos+1])
			p.pos += 2
		case '"':
			p.pos++
			return b.String(), nil
		default:
			b.WriteByte(c)
			p.pos++
		}
	}
	return "", p.fail("unterminated quote")
}
