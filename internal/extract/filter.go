package extract

// DefaultAmenities is the amenity set used when no filter is given.
var DefaultAmenities = []string{"cafe", "pub", "bar"}

// FilterAmenity returns the records whose Amenity is one of amenities,
// preserving their relative order. Records without an amenity never match.
func FilterAmenity(records []Record, amenities ...string) []Record {
	want := make(map[string]struct{}, len(amenities))
	for _, a := range amenities {
		want[a] = struct{}{}
	}

	out := make([]Record, 0)
	for _, r := range records {
		if r.Amenity == nil {
			continue
		}
		if _, ok := want[*r.Amenity]; ok {
			out = append(out, r)
		}
	}
	return out
}

// CountByAmenity tallies records by amenity value. Records without one are
// counted under the empty key.
func CountByAmenity(records []Record) map[string]int {
	counts := make(map[string]int)
	for _, r := range records {
		counts[Value(r.Amenity)]++
	}
	return counts
}
