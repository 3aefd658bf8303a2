package stage

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/rnxpipe/internal/ledger"
)

// Result is the outcome of one row action. Expected failures are reported
// here, never as errors.
type Result struct {
	OK     bool
	Output string
	Size   int64
	Note   string
}

// Done is a successful Result.
func Done(output string, size int64) Result {
	return Result{OK: true, Output: output, Size: size}
}

// Failed is a failed Result.
func Failed(note string) Result {
	return Result{Note: note}
}

// RowFunc performs the action for row i.
type RowFunc func(ctx context.Context, i int, row ledger.Row) Result

type rowOutcome struct {
	ran bool
	res Result
}

// ForEachRow runs fn for every active row, Config.Workers at a time. Results
// are applied to the ledger and appended to the run log in table order,
// whatever the completion order. A failed row sets ok_out false and keeps
// its note; processing continues unless FailFast is set, in which case no
// new row starts after the failure and ErrRowFailed is returned once the
// completed rows are logged.
func (s *Stage) ForEachRow(ctx context.Context, fn RowFunc) error {
	outcomes := make([]rowOutcome, len(s.table))

	gctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(gctx)
	g.SetLimit(s.cfg.Workers)

	for i, row := range s.table {
		if !row.OkInp {
			continue
		}
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			res := fn(gctx, i, row)
			outcomes[i] = rowOutcome{ran: true, res: res}
			if !res.OK && s.cfg.FailFast {
				cancel()
			}
			return nil
		})
	}
	_ = g.Wait()

	var firstFailed = -1
	ok, failed := 0, 0
	for i, o := range outcomes {
		if !o.ran {
			continue
		}
		r := &s.table[i]
		r.Note = o.res.Note
		if o.res.OK {
			r.OkOut = true
			r.FpathOut = o.res.Output
			r.SizeOut = o.res.Size
			ok++
		} else {
			r.OkOut = false
			failed++
			if firstFailed < 0 {
				firstFailed = i
			}
			s.log.Warn("stage: row failed", zap.String("fname", r.Fname), zap.String("note", r.Note))
		}
		s.appendLog(ctx, *r)
	}

	s.log.Info("stage: rows processed", zap.Int("ok", ok), zap.Int("failed", failed))
	if ctx.Err() != nil {
		return eris.Wrap(ctx.Err(), "stage: interrupted")
	}
	if s.cfg.FailFast && firstFailed >= 0 {
		return eris.Wrapf(ErrRowFailed, "%s: %s", s.table[firstFailed].Fname, s.table[firstFailed].Note)
	}
	return nil
}

func (s *Stage) appendLog(ctx context.Context, r ledger.Row) {
	if s.runlog == nil {
		return
	}
	if err := s.runlog.Append(context.WithoutCancel(ctx), s.runID, s.cfg.Name, r); err != nil {
		s.log.Error("stage: run log append", zap.String("fname", r.Fname), zap.Error(err))
	}
}
