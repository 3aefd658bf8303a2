package epoch

import (
	"fmt"
	"iter"
	"slices"
	"time"
)

// DefaultPeriod is used when a range is built without an explicit period.
var DefaultPeriod = Period{n: 1, unit: Day}

// RangeOptions configures a Range.
type RangeOptions struct {
	Period   Period
	Round    RoundMethod
	Location *time.Location
}

// Range is a closed interval [start, end] sampled every period. Both bounds
// are rounded to the period when assigned, so every read is bucket aligned.
// A zero bound marks the range invalid.
type Range struct {
	start  time.Time
	end    time.Time
	period Period
	round  RoundMethod
	loc    *time.Location
}

// NewRange builds a Range. The raw bounds are ordered so that start <= end.
func NewRange(start, end time.Time, opts RangeOptions) *Range {
	r := &Range{
		period: opts.Period,
		round:  opts.Round,
		loc:    opts.Location,
	}
	if r.period.IsZero() {
		r.period = DefaultPeriod
	}
	if r.round == "" {
		r.round = Floor
	}
	if r.loc == nil {
		r.loc = time.UTC
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		start, end = end, start
	}
	r.start = r.align(start)
	r.end = r.align(end)
	return r
}

// ParseRange parses both bounds with ParseTime relative to now and builds a Range.
func ParseRange(startRaw, endRaw string, opts RangeOptions, now time.Time) (*Range, error) {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	start, err := ParseTime(startRaw, loc, now)
	if err != nil {
		return nil, err
	}
	end, err := ParseTime(endRaw, loc, now)
	if err != nil {
		return nil, err
	}
	return NewRange(start, end, opts), nil
}

func (r *Range) align(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return Round(t.In(r.loc), r.period.Duration(), r.round)
}

// Start returns the rounded lower bound.
func (r *Range) Start() time.Time { return r.start }

// End returns the rounded upper bound.
func (r *Range) End() time.Time { return r.end }

// Period returns the sampling period.
func (r *Range) Period() Period { return r.period }

// RoundMethod returns the rounding method applied to the bounds.
func (r *Range) RoundMethod() RoundMethod { return r.round }

// Location returns the range's time zone.
func (r *Range) Location() *time.Location { return r.loc }

// Options returns the options the range was built with.
func (r *Range) Options() RangeOptions {
	return RangeOptions{Period: r.period, Round: r.round, Location: r.loc}
}

// SetStart assigns and rounds the lower bound.
func (r *Range) SetStart(t time.Time) {
	r.start = r.align(t)
	r.order()
}

// SetEnd assigns and rounds the upper bound.
func (r *Range) SetEnd(t time.Time) {
	r.end = r.align(t)
	r.order()
}

// SetPeriod changes the period and re-rounds both bounds.
func (r *Range) SetPeriod(p Period) {
	if p.IsZero() {
		return
	}
	r.period = p
	r.start = r.align(r.start)
	r.end = r.align(r.end)
}

func (r *Range) order() {
	if r.Valid() && r.end.Before(r.start) {
		r.start, r.end = r.end, r.start
	}
}

// Valid is false when either bound is the zero time.
func (r *Range) Valid() bool {
	return !r.start.IsZero() && !r.end.IsZero()
}

// Seq yields the interval boundaries from start to end inclusive, one period
// apart. With endBound set, each value is shifted to the last second of its
// interval instead. An invalid range yields a single zero time.
// The sequence can be ranged over any number of times.
func (r *Range) Seq(endBound bool) iter.Seq[time.Time] {
	return func(yield func(time.Time) bool) {
		if !r.Valid() {
			yield(time.Time{})
			return
		}
		step := r.period.Duration()
		if !endBound {
			for t := r.start; !t.After(r.end); t = t.Add(step) {
				if !yield(t) {
					return
				}
			}
			return
		}
		last := r.end.Add(step)
		for t := r.start.Add(step); !t.After(last); t = t.Add(step) {
			if !yield(t.Add(-time.Second)) {
				return
			}
		}
	}
}

// List collects Seq into a slice.
func (r *Range) List(endBound bool) []time.Time {
	return slices.Collect(r.Seq(endBound))
}

// Len returns the number of intervals in the range.
func (r *Range) Len() int {
	if !r.Valid() {
		return 1
	}
	return int(r.end.Sub(r.start)/r.period.Duration()) + 1
}

// Clone returns an independent copy.
func (r *Range) Clone() *Range {
	c := *r
	return &c
}

func (r *Range) String() string {
	if !r.Valid() {
		return "NaT/NaT"
	}
	return fmt.Sprintf("%s/%s (%s)", r.start.Format(time.RFC3339), r.end.Format(time.RFC3339), r.period)
}
