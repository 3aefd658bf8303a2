package stage

import (
	"slices"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/rnxpipe/internal/epoch"
	"github.com/sells-group/rnxpipe/internal/ledger"
)

// GroupOptions controls epoch regrouping.
type GroupOptions struct {
	Period  epoch.Period
	Rolling bool
	Ref     epoch.RollingRef
	Round   epoch.RoundMethod
}

// GroupByEpoch partitions the active rows by their epoch_srt rounded to
// opts.Period. It returns one sub-stage per group, in rounded epoch order,
// plus a main stage holding one row per group whose children are those
// sub-stages. Row order is kept inside each group. Each sub-stage range spans
// only the epochs present in its rows.
func (s *Stage) GroupByEpoch(opts GroupOptions) ([]*Stage, *Stage, error) {
	var idx []int
	var starts []time.Time
	for i, r := range s.table {
		if r.OkInp && !r.EpochSrt.IsZero() {
			idx = append(idx, i)
			starts = append(starts, r.EpochSrt)
		}
	}
	if len(idx) == 0 {
		return nil, nil, eris.New("stage: no active row with an epoch to group")
	}

	rounded, err := epoch.RoundEpochs(starts, opts.Period, opts.Rolling, opts.Ref, opts.Round)
	if err != nil {
		return nil, nil, eris.Wrap(err, "stage: group by epoch")
	}

	groups := make(map[time.Time][]int)
	var keys []time.Time
	for j, i := range idx {
		k := rounded[j]
		s.table[i].EpochRnd = k
		if _, ok := groups[k]; !ok {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], i)
	}
	slices.SortFunc(keys, func(a, b time.Time) int { return a.Compare(b) })

	d := opts.Period.Duration()
	subs := make([]*Stage, 0, len(keys))
	main := make(ledger.Table, 0, len(keys))
	for _, k := range keys {
		sub := s.Snapshot(s.table.Select(groups[k]), nil)
		if _, err := sub.UpdateEpochRangeFromTable(); err != nil {
			return nil, nil, err
		}
		subs = append(subs, sub)
		main = append(main, ledger.Row{
			Site:     s.cfg.Site.ID,
			EpochSrt: k,
			EpochEnd: k.Add(d - time.Second),
			EpochRnd: k,
			OkInp:    true,
		})
	}

	ropts := s.rng.Options()
	ropts.Period = opts.Period
	m := s.Snapshot(main, epoch.NewRange(keys[0], keys[len(keys)-1], ropts))
	m.children = subs

	s.log.Info("stage: grouped by epoch",
		zap.Stringer("period", opts.Period),
		zap.Bool("rolling", opts.Rolling),
		zap.Int("rows", len(idx)),
		zap.Int("groups", len(subs)),
	)
	return subs, m, nil
}

// UpdateEpochRangeFromTable rebuilds the stage range from the ledger: bounds
// are the first and last epoch_srt present, the period is the most frequent
// file duration. It reports whether all durations agree; a mix is logged as
// a warning.
func (s *Stage) UpdateEpochRangeFromTable() (bool, error) {
	var starts, ends []time.Time
	for _, r := range s.table {
		if r.EpochSrt.IsZero() || r.EpochEnd.IsZero() {
			continue
		}
		starts = append(starts, r.EpochSrt)
		ends = append(ends, r.EpochEnd)
	}
	if len(starts) == 0 {
		return false, eris.New("stage: no epochs in table")
	}

	p, uniform, err := epoch.InferPeriod(starts, ends)
	if err != nil {
		return false, eris.Wrap(err, "stage: infer period")
	}
	if !uniform {
		s.log.Warn("stage: file durations differ, using the most frequent", zap.Stringer("period", p))
	}

	ropts := s.rng.Options()
	ropts.Period = p
	s.rng = epoch.NewRange(slices.MinFunc(starts, time.Time.Compare), slices.MaxFunc(starts, time.Time.Compare), ropts)
	return uniform, nil
}
