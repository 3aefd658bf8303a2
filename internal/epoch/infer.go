package epoch

import (
	"time"

	"github.com/rotisserie/eris"
)

// InferPeriod derives a sampling period from interval bounds. Ends follow
// the inclusive convention of Range.Seq(true) (last second of the interval).
// The most frequent duration wins and ties go to the first one seen.
// uniform is false when the durations disagree.
func InferPeriod(starts, ends []time.Time) (p Period, uniform bool, err error) {
	if len(starts) != len(ends) {
		return Period{}, false, eris.Errorf("epoch: infer period: %d starts vs %d ends", len(starts), len(ends))
	}

	counts := make(map[time.Duration]int)
	var order []time.Duration
	for i := range starts {
		if starts[i].IsZero() || ends[i].IsZero() {
			continue
		}
		d := ends[i].Sub(starts[i]) + time.Second
		if _, seen := counts[d]; !seen {
			order = append(order, d)
		}
		counts[d]++
	}
	if len(order) == 0 {
		return Period{}, false, eris.New("epoch: infer period: no valid intervals")
	}

	best := order[0]
	for _, d := range order[1:] {
		if counts[d] > counts[best] {
			best = d
		}
	}

	p, err = PeriodFromDuration(best)
	if err != nil {
		return Period{}, false, err
	}
	return p, len(order) == 1, nil
}
