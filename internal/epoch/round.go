package epoch

import (
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// RoundMethod selects how instants are snapped to period boundaries.
type RoundMethod string

// Rounding methods.
const (
	Floor   RoundMethod = "floor"
	Ceil    RoundMethod = "ceil"
	Nearest RoundMethod = "round"
)

// ParseRoundMethod parses "floor", "ceil" or "round". Empty defaults to Floor.
func ParseRoundMethod(s string) (RoundMethod, error) {
	switch RoundMethod(strings.ToLower(strings.TrimSpace(s))) {
	case "", Floor:
		return Floor, nil
	case Ceil:
		return Ceil, nil
	case Nearest:
		return Nearest, nil
	default:
		return "", eris.Errorf("epoch: unknown round method %q (valid: floor, ceil, round)", s)
	}
}

// gpsEpoch is the start of GPS week 0, a Sunday.
var gpsEpoch = time.Date(1980, 1, 6, 0, 0, 0, 0, time.UTC)

const week = 7 * 24 * time.Hour

// Round snaps t to a boundary of d measured from local midnight of
// 1970-01-01 in t's zone, so day buckets start at local midnight. Multiples
// of a week are measured from the GPS epoch instead, so weeks start on
// Sunday. Ties round up when m is Nearest. The zero time is returned
// unchanged.
func Round(t time.Time, d time.Duration, m RoundMethod) time.Time {
	if t.IsZero() || d <= 0 {
		return t
	}
	_, off := t.Zone()
	origin := -int64(off) * int64(time.Second)
	if d%week == 0 {
		origin += gpsEpoch.UnixNano()
	}
	return snap(t, origin, d, m)
}

// RoundRolling snaps t to a boundary of d measured from ref rather than from
// the calendar origin.
func RoundRolling(t time.Time, d time.Duration, ref time.Time, m RoundMethod) time.Time {
	if t.IsZero() || d <= 0 {
		return t
	}
	if ref.IsZero() {
		return Round(t, d, m)
	}
	return snap(t, ref.UnixNano(), d, m)
}

func snap(t time.Time, origin int64, d time.Duration, m RoundMethod) time.Time {
	step := int64(d)
	x := t.UnixNano() - origin
	q := x / step
	if x%step != 0 && x < 0 {
		q--
	}
	lo := q * step
	rem := x - lo

	r := lo
	switch m {
	case Ceil:
		if rem > 0 {
			r = lo + step
		}
	case Nearest:
		if rem*2 >= step {
			r = lo + step
		}
	}
	return time.Unix(0, origin+r).In(t.Location())
}

// RollingRef anchors rolling buckets either to a literal instant or to an
// index into the epoch sequence being rounded. Negative indexes count from
// the end, so RefIndex(-1) is the last epoch.
type RollingRef struct {
	at       time.Time
	index    int
	useIndex bool
}

// RefAt anchors rolling buckets to t.
func RefAt(t time.Time) RollingRef { return RollingRef{at: t} }

// RefIndex anchors rolling buckets to epochs[i].
func RefIndex(i int) RollingRef { return RollingRef{index: i, useIndex: true} }

// ParseRollingRef reads an integer as an epoch index and anything else as
// an instant parsed with ParseTime. Empty means the last epoch.
func ParseRollingRef(raw string, loc *time.Location, now time.Time) (RollingRef, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return RefIndex(-1), nil
	}
	if i, err := strconv.Atoi(raw); err == nil {
		return RefIndex(i), nil
	}
	t, err := ParseTime(raw, loc, now)
	if err != nil {
		return RollingRef{}, eris.Wrapf(err, "epoch: rolling reference %q", raw)
	}
	return RefAt(t), nil
}

func (r RollingRef) resolve(epochs []time.Time) (time.Time, error) {
	if !r.useIndex {
		return r.at, nil
	}
	i := r.index
	if i < 0 {
		i += len(epochs)
	}
	if i < 0 || i >= len(epochs) {
		return time.Time{}, eris.Errorf("epoch: rolling reference index %d out of range for %d epochs", r.index, len(epochs))
	}
	return epochs[i], nil
}

// RoundEpochs rounds every epoch to p. With rolling false buckets are
// calendar aligned; with rolling true they are aligned to ref.
func RoundEpochs(epochs []time.Time, p Period, rolling bool, ref RollingRef, m RoundMethod) ([]time.Time, error) {
	d := p.Duration()
	if d <= 0 {
		return nil, eris.Wrap(ErrInvalidPeriod, "round epochs")
	}
	out := make([]time.Time, len(epochs))
	if !rolling {
		for i, t := range epochs {
			out[i] = Round(t, d, m)
		}
		return out, nil
	}
	anchor, err := ref.resolve(epochs)
	if err != nil {
		return nil, err
	}
	for i, t := range epochs {
		out[i] = RoundRolling(t, d, anchor, m)
	}
	return out, nil
}
