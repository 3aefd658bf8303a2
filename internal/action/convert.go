package action

import (
	"context"
	"path/filepath"

	"github.com/sells-group/rnxpipe/internal/convert"
	"github.com/sells-group/rnxpipe/internal/ledger"
	"github.com/sells-group/rnxpipe/internal/stage"
)

// Convert turns each input into RINEX with an external converter, then
// optionally rewrites the header, then moves the result to its final
// location. A failed sub-step ends the row.
type Convert struct {
	Tool Tool
	// Modifier is optional.
	Modifier      Modifier
	ModifyOptions convert.ModifyOptions
}

// Name implements stage.Action.
func (c *Convert) Name() string { return "convert" }

// Prepare loads the inputs. Outputs can only be checked up front when an
// output name template is set, since converters choose their own names.
func (c *Convert) Prepare(_ context.Context, s *stage.Stage, in stage.Input) error {
	if err := s.Load(in); err != nil {
		return err
	}
	if s.Config().OutName != "" {
		s.GuessOutPaths()
		s.CheckOutputs()
	}
	return nil
}

// Run implements stage.Action.
func (c *Convert) Run(ctx context.Context, s *stage.Stage) error {
	s.DecompressAll(ctx)
	log := s.Logger()
	return s.ForEachRow(ctx, func(ctx context.Context, i int, r ledger.Row) stage.Result {
		work, err := rowDir(s, i)
		if err != nil {
			return stage.Failed(err.Error())
		}
		out, note := c.Tool.convert(ctx, log, convert.Request{
			Inputs: []string{r.FpathInp},
			OutDir: work,
			Start:  r.EpochSrt,
			End:    r.EpochEnd,
		})
		if out == "" {
			return stage.Failed(note)
		}
		if c.Modifier != nil {
			out, err = c.Modifier.Modify(ctx, out, filepath.Join(work, "mod"), c.ModifyOptions)
			if err != nil {
				return stage.Failed("modify: " + err.Error())
			}
		}
		return deliver(s, r, out)
	})
}
