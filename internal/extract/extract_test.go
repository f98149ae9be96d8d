package extract

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feature(lon, lat float64, props map[string]string) Feature {
	f := Feature{Lon: lon, Lat: lat, Properties: map[string]*string{}}
	for k, v := range props {
		f.Properties[k] = Str(v)
	}
	return f
}

func TestExtract_NameOnly(t *testing.T) {
	f := Feature{
		Lon: -0.1276, Lat: 51.5072,
		Properties: map[string]*string{
			"name":       Str("Cafe Coco"),
			"highway":    nil,
			"other_tags": nil,
		},
	}

	records, warnings := Extract([]Feature{f})
	require.Len(t, records, 1)
	assert.Empty(t, warnings)

	r := records[0]
	require.NotNil(t, r.Name)
	assert.Equal(t, "Cafe Coco", *r.Name)
	assert.Nil(t, r.Highway)
	assert.Nil(t, r.Amenity)
	assert.Equal(t, Point{X: -0.1276, Y: 51.5072}, r.Point)
}

func TestExtract_AmenityExactKey(t *testing.T) {
	tests := []struct {
		name      string
		otherTags string
		want      *string
	}{
		{"amenity after other key", `"cuisine"=>"coffee_shop","amenity"=>"cafe"`, Str("cafe")},
		{"no amenity key", `"shop"=>"bakery"`, nil},
		{"substring key only", `"not_amenity"=>"foo"`, nil},
		{"substring key then real key", `"amenity_extra"=>"x","amenity"=>"pub"`, Str("pub")},
		{"amenity in a value", `"note"=>"amenity"`, nil},
		{"bare key form", `cuisine="coffee_shop";amenity="bar"`, Str("bar")},
		{"empty string", ``, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, warnings := Extract([]Feature{feature(1, 2, map[string]string{"other_tags": tt.otherTags})})
			require.Len(t, records, 1)
			assert.Empty(t, warnings)
			assert.Equal(t, tt.want, records[0].Amenity)
		})
	}
}

func TestExtract_MalformedTagsRecovered(t *testing.T) {
	features := []Feature{
		feature(1, 1, map[string]string{"name": "A", "other_tags": `"amenity"=>"cafe"`}),
		feature(2, 2, map[string]string{"name": "B", "other_tags": `"amenity"=>"cafe`}),
		feature(3, 3, map[string]string{"name": "C", "other_tags": `"amenity"=>"pub"`}),
	}

	records, warnings := Extract(features)
	require.Len(t, records, 3)
	require.Len(t, warnings, 1)

	assert.Equal(t, 1, warnings[0].Index)
	assert.Contains(t, warnings[0].Error(), "unterminated quote")

	assert.Equal(t, "cafe", Value(records[0].Amenity))
	assert.Nil(t, records[1].Amenity)
	assert.Equal(t, "B", Value(records[1].Name))
	assert.Equal(t, "pub", Value(records[2].Amenity))
}

func TestExtract_EmptyInput(t *testing.T) {
	records, warnings := Extract(nil)
	assert.NotNil(t, records)
	assert.Empty(t, records)
	assert.Empty(t, warnings)
}

func TestExtract_NilProperties(t *testing.T) {
	records, _ := Extract([]Feature{{Lon: 200, Lat: -100}})
	require.Len(t, records, 1)
	assert.Nil(t, records[0].Name)
	assert.Nil(t, records[0].Highway)
	assert.Nil(t, records[0].Amenity)
	// Coordinates are not range checked.
	assert.Equal(t, Point{X: 200, Y: -100}, records[0].Point)
}

func TestExtract_OrderAndLength(t *testing.T) {
	var features []Feature
	for i := 0; i < 50; i++ {
		features = append(features, feature(float64(i), float64(-i), map[string]string{
			"name": fmt.Sprintf("node-%d", i),
		}))
	}

	records, _ := Extract(features)
	require.Len(t, records, len(features))
	for i, r := range records {
		assert.Equal(t, fmt.Sprintf("node-%d", i), Value(r.Name))
		assert.Equal(t, float64(i), r.Point.X)
	}
}

func TestExtract_Deterministic(t *testing.T) {
	features := sampleFeatures()

	first, w1 := Extract(features)
	second, w2 := Extract(features)
	assert.Equal(t, first, second)
	assert.Equal(t, w1, w2)
}

func TestExtract_DoesNotAliasInput(t *testing.T) {
	f := feature(0, 0, map[string]string{"name": "before"})
	records, _ := Extract([]Feature{f})

	*f.Properties["name"] = "after"
	assert.Equal(t, "before", Value(records[0].Name))
}

func TestParseWarning_ErrorsAs(t *testing.T) {
	_, err := ParseOtherTags(`"amenity"`)
	require.Error(t, err)

	var pw *ParseWarning
	require.True(t, errors.As(err, &pw))
	assert.Equal(t, -1, pw.Index)
	assert.Equal(t, `"amenity"`, pw.Raw)
}

// sampleFeatures mirrors the reference notebook extract: 39 named points, five
// of which are cafes, pubs or bars.
func sampleFeatures() []Feature {
	amenities := map[int]string{
		2:  "cafe",
		5:  "bench",
		9:  "pub",
		11: "restaurant",
		17: "bar",
		21: "cafe",
		26: "fast_food",
		30: "pub",
		33: "parking",
	}

	var features []Feature
	for i := 0; i < 39; i++ {
		props := map[string]string{"name": fmt.Sprintf("poi-%02d", i)}
		switch {
		case amenities[i] != "":
			props["other_tags"] = fmt.Sprintf(`"opening_hours"=>"Mo-Su","amenity"=>"%s"`, amenities[i])
		case i%4 == 0:
			props["highway"] = "bus_stop"
			props["other_tags"] = `"public_transport"=>"platform"`
		case i%7 == 0:
			props["other_tags"] = `"not_amenity"=>"cafe"`
		}
		features = append(features, feature(-122.4+float64(i)*0.001, 37.7+float64(i)*0.001, props))
	}
	return features
}
