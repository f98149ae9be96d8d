package driver

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Profile controls which node tags become first-class properties and which
// are discarded. Tags neither promoted nor ignored are packed into other_tags.
type Profile struct {
	Promoted []string `yaml:"promoted"`
	Ignored  []string `yaml:"ignored"`
}

// DefaultProfile matches the points layer of the common OSM vector driver
// configuration.
func DefaultProfile() Profile {
	return Profile{
		Promoted: []string{"name", "barrier", "highway", "ref", "address", "is_in", "place", "man_made"},
		Ignored:  []string{"created_by", "converted_by", "source", "time", "ele", "attribution"},
	}
}

// LoadProfile reads a YAML profile from path. Omitted sections fall back to
// the defaults.
func LoadProfile(path string) (Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, eris.Wrapf(err, "driver: read profile %s", path)
	}

	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Profile{}, eris.Wrapf(err, "driver: parse profile %s", path)
	}

	def := DefaultProfile()
	if p.Promoted == nil {
		p.Promoted = def.Promoted
	}
	if p.Ignored == nil {
		p.Ignored = def.Ignored
	}
	return p, nil
}

func (p Profile) promotedSet() map[string]bool {
	return toSet(p.Promoted)
}

func (p Profile) ignoredSet() map[string]bool {
	return toSet(p.Ignored)
}

func toSet(keys []string) map[string]bool {
	set := make(map[string]bool, len(keys))
	for _, k := range keys {
		set[k] = true
	}
	return set
}
