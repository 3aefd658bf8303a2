package action

import (
	"context"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/sells-group/rnxpipe/internal/convert"
	"github.com/sells-group/rnxpipe/internal/ledger"
	"github.com/sells-group/rnxpipe/internal/stage"
)

// Splice merges time-adjacent files into one file per target period.
type Splice struct {
	Tool  Tool
	Group stage.GroupOptions
}

// Name implements stage.Action.
func (sp *Splice) Name() string { return "splice" }

// Prepare loads the inputs, groups them by target period and turns the
// stage into the main stage of the grouping: one row per output file, each
// backed by the sub-stage holding the files to merge.
func (sp *Splice) Prepare(_ context.Context, s *stage.Stage, in stage.Input) error {
	if err := requireOutName(s, sp.Name()); err != nil {
		return err
	}
	if err := s.Load(in); err != nil {
		return err
	}
	if in.Files != nil {
		s.UpdateEpochsFromNames()
	}
	if s.Active() == 0 {
		s.Logger().Warn("action: nothing to splice")
		s.InitTable(false)
		return nil
	}

	_, main, err := s.GroupByEpoch(sp.Group)
	if err != nil {
		return err
	}
	s.Adopt(main)
	s.GuessOutPaths()

	children := s.Children()
	for i := range s.Len() {
		r := s.Row(i)
		r.Fname = filepath.Base(r.FpathOut)
		r.FpathInp = children[i].Range().String()
		for _, c := range children[i].Table() {
			r.SizeInp += c.SizeInp
		}
		s.SetRow(i, r)
	}
	s.CheckOutputs()
	return nil
}

// Run implements stage.Action.
func (sp *Splice) Run(ctx context.Context, s *stage.Stage) error {
	children := s.Children()
	log := s.Logger()
	return s.ForEachRow(ctx, func(ctx context.Context, i int, r ledger.Row) stage.Result {
		child := children[i]
		child.DecompressAll(ctx)

		files := child.Table()
		files.SortByEpoch()
		var inputs []string
		for _, f := range files {
			if f.OkInp {
				inputs = append(inputs, f.FpathInp)
			}
		}
		if len(inputs) == 0 {
			return stage.Failed("no input left after decompression")
		}

		work, err := rowDir(s, i)
		if err != nil {
			return stage.Failed(err.Error())
		}
		log.Debug("action: splice", zap.String("fname", r.Fname), zap.Int("inputs", len(inputs)))
		out, note := sp.Tool.convert(ctx, log, convert.Request{
			Inputs: inputs,
			OutDir: work,
			Start:  r.EpochSrt,
			End:    r.EpochEnd,
		})
		if out == "" {
			return stage.Failed(note)
		}
		return deliver(s, r, out)
	})
}
