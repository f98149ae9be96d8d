// Package extract flattens parsed OSM point features into tabular records.
package extract

// Property keys read from a feature's property mapping.
const (
	KeyName      = "name"
	KeyHighway   = "highway"
	KeyOtherTags = "other_tags"
	KeyAmenity   = "amenity"
)

// Point is a planar coordinate pair. For geographic data X is longitude and Y latitude.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Feature is a point feature as produced by an OSM vector driver.
type Feature struct {
	ID         int64              `json:"id,omitempty"`
	Lon        float64            `json:"lon"`
	Lat        float64            `json:"lat"`
	Properties map[string]*string `json:"properties"`
}

// Property returns the named property, or nil when the key is missing or null.
func (f Feature) Property(key string) *string {
	if f.Properties == nil {
		return nil
	}
	return f.Properties[key]
}

// Record is the flattened row built from one Feature.
type Record struct {
	Name    *string `json:"name"`
	Highway *string `json:"highway"`
	Amenity *string `json:"amenity"`
	Point   Point   `json:"point"`
}

// Str returns a pointer to a copy of s.
func Str(s string) *string {
	return &s
}

// Value dereferences p, returning "" for nil.
func Value(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
