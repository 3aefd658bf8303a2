// Package epoch models sampling intervals ("epochs") and the ranges of
// evenly spaced intervals that seed every stage ledger.
package epoch

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// ErrInvalidPeriod is returned when a period string cannot be parsed.
var ErrInvalidPeriod = eris.New("epoch: invalid period")

// Unit is the rounding unit of a Period.
type Unit string

// Supported period units.
const (
	Second Unit = "s"
	Minute Unit = "min"
	Hour   Unit = "h"
	Day    Unit = "d"
	Week   Unit = "w"
)

var unitDurations = map[Unit]time.Duration{
	Second: time.Second,
	Minute: time.Minute,
	Hour:   time.Hour,
	Day:    24 * time.Hour,
	Week:   7 * 24 * time.Hour,
}

// largest first, used when converting a duration back to a period
var unitOrder = []Unit{Week, Day, Hour, Minute, Second}

var unitAliases = map[string]Unit{
	"s": Second, "sec": Second, "secs": Second, "second": Second, "seconds": Second,
	"t": Minute, "min": Minute, "mins": Minute, "minute": Minute, "minutes": Minute,
	"h": Hour, "hr": Hour, "hrs": Hour, "hour": Hour, "hours": Hour,
	"d": Day, "day": Day, "days": Day,
	"w": Week, "week": Week, "weeks": Week,
}

var periodRe = regexp.MustCompile(`^(\d*)\s*([A-Za-z]+)$`)

// Period is a sampling period expressed as a count of a unit, e.g. "15min" or "1d".
type Period struct {
	n    int
	unit Unit
}

// NewPeriod builds a Period of n units.
func NewPeriod(n int, unit Unit) (Period, error) {
	if n <= 0 {
		return Period{}, eris.Wrapf(ErrInvalidPeriod, "non-positive count %d", n)
	}
	if _, ok := unitDurations[unit]; !ok {
		return Period{}, eris.Wrapf(ErrInvalidPeriod, "unknown unit %q", unit)
	}
	return Period{n: n, unit: unit}, nil
}

// MustPeriod is like ParsePeriod but panics on error. Intended for constants and tests.
func MustPeriod(s string) Period {
	p, err := ParsePeriod(s)
	if err != nil {
		panic(err)
	}
	return p
}

// ParsePeriod parses periods such as "15 minutes", "5min", "1D", "01H" or "30s".
// A missing count means one unit.
func ParsePeriod(s string) (Period, error) {
	m := periodRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return Period{}, eris.Wrapf(ErrInvalidPeriod, "%q", s)
	}
	n := 1
	if m[1] != "" {
		v, err := strconv.Atoi(m[1])
		if err != nil {
			return Period{}, eris.Wrapf(ErrInvalidPeriod, "%q", s)
		}
		n = v
	}
	unit, ok := unitAliases[strings.ToLower(m[2])]
	if !ok {
		return Period{}, eris.Wrapf(ErrInvalidPeriod, "unknown unit in %q", s)
	}
	return NewPeriod(n, unit)
}

// PeriodFromDuration converts a duration back to a Period using the largest
// unit that divides it evenly.
func PeriodFromDuration(d time.Duration) (Period, error) {
	if d <= 0 || d%time.Second != 0 {
		return Period{}, eris.Wrapf(ErrInvalidPeriod, "duration %s", d)
	}
	for _, u := range unitOrder {
		ud := unitDurations[u]
		if d%ud == 0 {
			return Period{n: int(d / ud), unit: u}, nil
		}
	}
	return Period{}, eris.Wrapf(ErrInvalidPeriod, "duration %s", d)
}

// Duration returns the length of the period.
func (p Period) Duration() time.Duration {
	return time.Duration(p.n) * unitDurations[p.unit]
}

// IsZero reports whether the period is unset.
func (p Period) IsZero() bool {
	return p.n == 0
}

// Count returns the number of units.
func (p Period) Count() int { return p.n }

// Unit returns the rounding unit.
func (p Period) Unit() Unit { return p.unit }

func (p Period) String() string {
	if p.IsZero() {
		return ""
	}
	return strconv.Itoa(p.n) + string(p.unit)
}
