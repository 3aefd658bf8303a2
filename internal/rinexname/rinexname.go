// Package rinexname extracts the site and time span encoded in RINEX file names.
package rinexname

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// ErrUnrecognized is returned for names that follow neither RINEX convention.
var ErrUnrecognized = eris.New("rinexname: unrecognized file name")

// Info is what a RINEX file name tells about its content.
type Info struct {
	Site   string
	Start  time.Time
	Period time.Duration
	Long   bool
}

// End returns the last second covered by the file.
func (i Info) End() time.Time {
	return i.Start.Add(i.Period - time.Second)
}

// SSSSMRCCC_S_YYYYDDDHHMM_PPU_...
var longRe = regexp.MustCompile(`^([A-Za-z0-9]{9})_[A-Za-z]_(\d{4})(\d{3})(\d{2})(\d{2})_(\d{2})([MHDYmhdy])`)

// ssssdddf[mm].yyt
var shortRe = regexp.MustCompile(`^([A-Za-z0-9]{4})(\d{3})([a-xA-X0])(\d{2})?\.(\d{2})[A-Za-z]`)

var longUnits = map[string]time.Duration{
	"M": time.Minute,
	"H": time.Hour,
	"D": 24 * time.Hour,
	"Y": 365 * 24 * time.Hour,
}

// Parse reads the site and interval from a RINEX 3/4 long name or a RINEX 2
// short name. Directory components and compression suffixes are ignored.
func Parse(path string) (Info, error) {
	name := filepath.Base(path)
	if m := longRe.FindStringSubmatch(name); m != nil {
		return parseLong(m)
	}
	if m := shortRe.FindStringSubmatch(name); m != nil {
		return parseShort(m)
	}
	return Info{}, eris.Wrapf(ErrUnrecognized, "%q", name)
}

func parseLong(m []string) (Info, error) {
	year, _ := strconv.Atoi(m[2])
	doy, _ := strconv.Atoi(m[3])
	hour, _ := strconv.Atoi(m[4])
	minute, _ := strconv.Atoi(m[5])
	n, _ := strconv.Atoi(m[6])
	unit := longUnits[strings.ToUpper(m[7])]
	if doy < 1 || doy > 366 || hour > 23 || minute > 59 || n == 0 {
		return Info{}, eris.Wrapf(ErrUnrecognized, "bad long name fields %q", m[0])
	}
	start := time.Date(year, time.January, 1, hour, minute, 0, 0, time.UTC).AddDate(0, 0, doy-1)
	return Info{
		Site:   strings.ToUpper(m[1]),
		Start:  start,
		Period: time.Duration(n) * unit,
		Long:   true,
	}, nil
}

func parseShort(m []string) (Info, error) {
	doy, _ := strconv.Atoi(m[2])
	yy, _ := strconv.Atoi(m[5])
	if doy < 1 || doy > 366 {
		return Info{}, eris.Wrapf(ErrUnrecognized, "bad day of year in %q", m[0])
	}
	year := 2000 + yy
	if yy >= 80 {
		year = 1900 + yy
	}
	day := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, doy-1)

	session := strings.ToLower(m[3])
	if session == "0" {
		return Info{Site: strings.ToUpper(m[1]), Start: day, Period: 24 * time.Hour}, nil
	}

	start := day.Add(time.Duration(session[0]-'a') * time.Hour)
	period := time.Hour
	if m[4] != "" {
		minute, _ := strconv.Atoi(m[4])
		if minute > 59 {
			return Info{}, eris.Wrapf(ErrUnrecognized, "bad minutes in %q", m[0])
		}
		start = start.Add(time.Duration(minute) * time.Minute)
		period = 15 * time.Minute
	}
	return Info{Site: strings.ToUpper(m[1]), Start: start, Period: period}, nil
}
