package translate

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	upper = cases.Upper(language.Und)
	lower = cases.Lower(language.Und)
)

// Site carries the identifiers of a GNSS station.
type Site struct {
	// ID is the 4 or 9 character site identifier.
	ID string
	// Monument and Receiver are the 9-character name digits (default "0").
	Monument string
	Receiver string
	// Country is the ISO 3166 alpha-3 code used in 9-character names.
	Country string
}

// ID4 returns the 4-character site identifier.
func (s Site) ID4() string {
	id := strings.TrimSpace(s.ID)
	if len(id) >= 4 {
		return id[:4]
	}
	return id
}

// ID9 returns the 9-character identifier, built from the 4-character id plus
// monument, receiver and country when only the short form is known.
func (s Site) ID9() string {
	id := strings.TrimSpace(s.ID)
	if len(id) == 9 {
		return id
	}
	mon, rec, cc := s.Monument, s.Receiver, s.Country
	if mon == "" {
		mon = "0"
	}
	if rec == "" {
		rec = "0"
	}
	if cc == "" {
		cc = "XXX"
	}
	return s.ID4() + mon + rec + cc
}

// BuildTable returns the substitution table for a site and session. Every
// entry is exposed twice: UPPER key with the upper-cased value and lower key
// with the lower-cased value.
func BuildTable(site Site, session map[string]string) map[string]string {
	t := make(map[string]string, 2*len(session)+8)
	for k, v := range session {
		put(t, k, v)
	}
	if site.ID != "" {
		put(t, "site_id", site.ID)
		put(t, "site_id4", site.ID4())
		put(t, "site_id9", site.ID9())
	}
	return t
}

func put(t map[string]string, key, value string) {
	t[upper.String(key)] = upper.String(value)
	t[lower.String(key)] = lower.String(value)
}
