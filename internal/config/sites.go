package config

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/rnxpipe/internal/translate"
)

// ErrUnknownSite is returned when the pipeline site is missing from the sites file.
var ErrUnknownSite = eris.New("config: unknown site")

// Site is the metadata of one GNSS station.
type Site struct {
	// ID9 is the 9-character name, e.g. MLVL00FRA.
	ID9     string `yaml:"id9"`
	Name    string `yaml:"name"`
	Country string `yaml:"country"`
	Domes   string `yaml:"domes"`
	// Sitelog is the metadata file handed to the header modifier.
	Sitelog string `yaml:"sitelog"`
}

// Sites maps upper-case 4-character site ids to their metadata.
type Sites map[string]Site

type sitesFile struct {
	Sites map[string]Site `yaml:"sites"`
}

// LoadSites reads a YAML sites file:
//
//	sites:
//	  MLVL:
//	    id9: MLVL00FRA
//	    domes: 10003M001
//	    sitelog: /data/sitelogs/mlvl00fra.log
func LoadSites(path string) (Sites, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "config: read sites file %s", path)
	}
	var f sitesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrapf(err, "config: parse sites file %s", path)
	}
	out := make(Sites, len(f.Sites))
	for id, s := range f.Sites {
		out[strings.ToUpper(id)] = s
	}
	return out, nil
}

// Lookup returns the metadata of id, matched on its first four characters.
func (s Sites) Lookup(id string) (Site, error) {
	key := strings.ToUpper(id)
	if len(key) > 4 {
		key = key[:4]
	}
	site, ok := s[key]
	if !ok {
		return Site{}, eris.Wrapf(ErrUnknownSite, "%q", id)
	}
	return site, nil
}

// TranslateSite builds the naming identity of id, preferring the known
// 9-character name.
func (s Site) TranslateSite(id string) translate.Site {
	if len(s.ID9) == 9 {
		return translate.Site{ID: s.ID9}
	}
	return translate.Site{ID: id, Country: s.Country}
}

// Session returns the extra translation keys a site contributes.
func (s Site) Session() map[string]string {
	out := map[string]string{}
	if s.Domes != "" {
		out["domes"] = s.Domes
	}
	if s.Name != "" {
		out["site_name"] = s.Name
	}
	return out
}
