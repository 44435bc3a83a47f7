package scoring

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed types.yaml
var bundledTypes []byte

type TypeProfile struct {
	ID         TypeID   `yaml:"id" json:"id"`
	Name       string   `yaml:"name" json:"name"`
	Summary    string   `yaml:"summary" json:"summary"`
	CoreDesire string   `yaml:"core_desire" json:"core_desire"`
	CoreFear   string   `yaml:"core_fear" json:"core_fear"`
	Strengths  []string `yaml:"strengths" json:"strengths"`
	Growth     []string `yaml:"growth" json:"growth"`
}

// Library is the read-only set of nine type profiles.
type Library struct {
	profiles []TypeProfile
	byID     map[TypeID]TypeProfile
}

func LoadLibrary() (*Library, error) {
	var profiles []TypeProfile
	if err := yaml.Unmarshal(bundledTypes, &profiles); err != nil {
		return nil, fmt.Errorf("parse type library: %w", err)
	}
	lib := &Library{profiles: profiles, byID: make(map[TypeID]TypeProfile, len(profiles))}
	for _, p := range profiles {
		if !IsTypeID(string(p.ID)) {
			return nil, fmt.Errorf("type library: invalid id %q", p.ID)
		}
		lib.byID[p.ID] = p
	}
	for _, id := range TypeIDs {
		if _, ok := lib.byID[id]; !ok {
			return nil, fmt.Errorf("type library: missing type %s", id)
		}
	}
	return lib, nil
}

func (l *Library) All() []TypeProfile {
	out := make([]TypeProfile, len(l.profiles))
	copy(out, l.profiles)
	return out
}

func (l *Library) Get(id TypeID) (TypeProfile, bool) {
	p, ok := l.byID[id]
	return p, ok
}

// Name returns "Type N" when the library lacks the id.
func (l *Library) Name(id TypeID) string {
	if l != nil {
		if p, ok := l.byID[id]; ok {
			return p.Name
		}
	}
	return "Type " + string(id)
}
