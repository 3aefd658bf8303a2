package epoch

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/rotisserie/eris"
)

var relativeRe = regexp.MustCompile(`^(\d+)\s*(second|sec|minute|min|hour|day|week)s?\s+ago$`)

var relativeUnits = map[string]time.Duration{
	"second": time.Second,
	"sec":    time.Second,
	"minute": time.Minute,
	"min":    time.Minute,
	"hour":   time.Hour,
	"day":    24 * time.Hour,
	"week":   7 * 24 * time.Hour,
}

// IsNaT reports whether raw denotes "no time".
func IsNaT(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "nat", "none", "null":
		return true
	}
	return false
}

// ParseTime parses a literal date string ("2024-02-28T01:00Z", "2024-02-28",
// "2024/059") or a relative expression ("now", "today", "yesterday",
// "10 days ago") evaluated against now. Strings without a zone are placed in loc.
// "NaT" and the empty string yield the zero time.
func ParseTime(raw string, loc *time.Location, now time.Time) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	if IsNaT(raw) {
		return time.Time{}, nil
	}
	s := strings.ToLower(strings.TrimSpace(raw))
	now = now.In(loc)
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)

	switch s {
	case "now":
		return now, nil
	case "today":
		return midnight, nil
	case "yesterday":
		return midnight.AddDate(0, 0, -1), nil
	case "tomorrow":
		return midnight.AddDate(0, 0, 1), nil
	}

	if m := relativeRe.FindStringSubmatch(s); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return time.Time{}, eris.Wrapf(err, "epoch: parse relative time %q", raw)
		}
		if m[2] == "day" || m[2] == "week" {
			days := n
			if m[2] == "week" {
				days *= 7
			}
			return midnight.AddDate(0, 0, -days), nil
		}
		return now.Add(-time.Duration(n) * relativeUnits[m[2]]), nil
	}

	if t, ok := parseYearDoy(s, loc); ok {
		return t, nil
	}

	if t, ok := parseLayouts(strings.TrimSpace(raw), loc); ok {
		return t, nil
	}

	t, err := dateparse.ParseIn(strings.TrimSpace(raw), loc)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "epoch: parse time %q", raw)
	}
	return t, nil
}

var yearDoyRe = regexp.MustCompile(`^(\d{4})[/-](\d{3})$`)

// parseYearDoy handles the GNSS habit of writing dates as YYYY/DDD.
func parseYearDoy(s string, loc *time.Location) (time.Time, bool) {
	m := yearDoyRe.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, false
	}
	year, _ := strconv.Atoi(m[1])
	doy, _ := strconv.Atoi(m[2])
	if doy < 1 || doy > 366 {
		return time.Time{}, false
	}
	return time.Date(year, time.January, 1, 0, 0, 0, 0, loc).AddDate(0, 0, doy-1), true
}

var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

func parseLayouts(s string, loc *time.Location) (time.Time, bool) {
	for _, layout := range isoLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
