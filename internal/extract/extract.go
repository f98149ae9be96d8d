package extract

import "errors"

// Extract builds one Record per feature, in input order.
//
// Missing properties resolve to nil. A malformed other_tags string leaves the
// record's Amenity nil and is reported in the returned warnings; the remaining
// features are still processed. Extract has no side effects.
func Extract(features []Feature) ([]Record, []*ParseWarning) {
	records := make([]Record, 0, len(features))
	var warnings []*ParseWarning

	for i, f := range features {
		amenity, err := amenityOf(f.Property(KeyOtherTags))
		if err != nil {
			var pw *ParseWarning
			if errors.As(err, &pw) {
				pw.Index = i
				warnings = append(warnings, pw)
			}
		}

		records = append(records, Record{
			Name:    clone(f.Property(KeyName)),
			Highway: clone(f.Property(KeyHighway)),
			Amenity: amenity,
			Point:   Point{X: f.Lon, Y: f.Lat},
		})
	}

	return records, warnings
}

// amenityOf returns the exact "amenity" value encoded in otherTags.
func amenityOf(otherTags *string) (*string, error) {
	if otherTags == nil {
		return nil, nil
	}
	tags, err := ParseOtherTags(*otherTags)
	if err != nil {
		return nil, err
	}
	if v, ok := Lookup(tags, KeyAmenity); ok {
		return &v, nil
	}
	return nil, nil
}

// clone copies the pointed-to string so records never alias caller state.
func clone(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
