package action

import (
	"context"

	"github.com/sells-group/rnxpipe/internal/convert"
	"github.com/sells-group/rnxpipe/internal/ledger"
	"github.com/sells-group/rnxpipe/internal/stage"
)

// Modify rewrites the header of existing RINEX files.
type Modify struct {
	Modifier Modifier
	Options  convert.ModifyOptions
}

// Name implements stage.Action.
func (m *Modify) Name() string { return "modify" }

// Prepare loads the inputs and reads their epochs from the file names when
// they come from a file list.
func (m *Modify) Prepare(_ context.Context, s *stage.Stage, in stage.Input) error {
	if err := s.Load(in); err != nil {
		return err
	}
	if in.Files != nil {
		s.UpdateEpochsFromNames()
	}
	// A long-name rename makes the input name a poor guess for the output.
	if !m.Options.LongName || s.Config().OutName != "" {
		s.GuessOutPaths()
		s.CheckOutputs()
	}
	return nil
}

// Run implements stage.Action.
func (m *Modify) Run(ctx context.Context, s *stage.Stage) error {
	s.DecompressAll(ctx)
	return s.ForEachRow(ctx, func(ctx context.Context, i int, r ledger.Row) stage.Result {
		work, err := rowDir(s, i)
		if err != nil {
			return stage.Failed(err.Error())
		}
		out, err := m.Modifier.Modify(ctx, r.FpathInp, work, m.Options)
		if err != nil {
			return stage.Failed("modify: " + err.Error())
		}
		return deliver(s, r, out)
	})
}
