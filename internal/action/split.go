package action

import (
	"context"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/sells-group/rnxpipe/internal/convert"
	"github.com/sells-group/rnxpipe/internal/ledger"
	"github.com/sells-group/rnxpipe/internal/stage"
)

// Split extracts every target window of the stage range from the stored
// file that covers it.
type Split struct {
	Tool Tool
	// Store locates the long files. When nil the previous stage outputs are used.
	Store *stage.FileSource

	store   *stage.Stage
	storeAt map[string]int
}

// Name implements stage.Action.
func (sp *Split) Name() string { return "split" }

// Prepare loads the store, seeds one row per target window and assigns to
// each the first store file whose interval covers it. Windows with no
// covering file are marked as failed input.
func (sp *Split) Prepare(_ context.Context, s *stage.Stage, in stage.Input) error {
	if err := requireOutName(s, sp.Name()); err != nil {
		return err
	}
	storeIn := in
	if sp.Store != nil {
		storeIn = stage.Input{Files: sp.Store}
	}
	sp.store = s.Snapshot(nil, nil)
	if err := sp.store.Load(storeIn); err != nil {
		return err
	}
	if storeIn.Files != nil {
		sp.store.UpdateEpochsFromNames()
	}
	files := sp.store.Table()
	sp.storeAt = make(map[string]int, len(files))
	for i, f := range files {
		if _, ok := sp.storeAt[f.FpathInp]; !ok {
			sp.storeAt[f.FpathInp] = i
		}
	}

	s.InitTable(true)
	s.GuessOutPaths()
	missing := 0
	for i := range s.Len() {
		r := s.Row(i)
		r.Fname = filepath.Base(r.FpathOut)
		if j := coveringRow(files, r); j >= 0 {
			r.FpathInp = files[j].FpathInp
			r.SizeInp = files[j].SizeInp
			r.OkInp = true
		} else {
			r.OkInp = false
			r.Note = "no covering file"
			missing++
		}
		s.SetRow(i, r)
	}
	s.CheckOutputs()
	if missing > 0 {
		s.Logger().Warn("action: windows without covering file",
			zap.Int("missing", missing),
			zap.Int("windows", s.Len()),
		)
	}
	return nil
}

// coveringRow returns the index of the first active row of store whose
// interval contains the window of target, or -1.
func coveringRow(store ledger.Table, target ledger.Row) int {
	for i, f := range store {
		if !f.OkInp || f.EpochSrt.IsZero() {
			continue
		}
		if !f.EpochSrt.After(target.EpochSrt) && !f.EpochEnd.Before(target.EpochEnd) {
			return i
		}
	}
	return -1
}

// Run decompresses each store file used by an active window once, then
// extracts every window.
func (sp *Split) Run(ctx context.Context, s *stage.Stage) error {
	if sp.store == nil {
		return nil
	}
	defer sp.store.Cleanup()

	for i := range s.Len() {
		r := s.Row(i)
		if !r.OkInp {
			continue
		}
		j, ok := sp.storeAt[r.FpathInp]
		if !ok {
			continue
		}
		sp.store.DecompressRow(ctx, j)
		f := sp.store.Row(j)
		if !f.OkInp {
			r.OkInp = false
			r.Note = f.Note
		} else {
			r.FpathOri = f.FpathOri
		}
		s.SetRow(i, r)
	}

	log := s.Logger()
	return s.ForEachRow(ctx, func(ctx context.Context, i int, r ledger.Row) stage.Result {
		j := sp.storeAt[r.FpathInp]
		work, err := rowDir(s, i)
		if err != nil {
			return stage.Failed(err.Error())
		}
		out, note := sp.Tool.convert(ctx, log, convert.Request{
			Inputs: []string{sp.store.Row(j).FpathInp},
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
