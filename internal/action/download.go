package action

import (
	"context"
	"errors"

	"github.com/sells-group/rnxpipe/internal/fetcher"
	"github.com/sells-group/rnxpipe/internal/ledger"
	"github.com/sells-group/rnxpipe/internal/resilience"
	"github.com/sells-group/rnxpipe/internal/stage"
)

// Download fetches one remote file per epoch of the stage range.
type Download struct {
	Fetcher fetcher.Fetcher
}

// Name implements stage.Action.
func (d *Download) Name() string { return "download" }

// Prepare seeds the ledger from the range and guesses remote and local
// paths. Inputs are ignored: a download always starts from the range.
func (d *Download) Prepare(_ context.Context, s *stage.Stage, _ stage.Input) error {
	s.InitTable(true)
	s.GuessRemotePaths()
	s.GuessOutPaths()
	s.CheckOutputs()
	return nil
}

// Run fetches every active row. A host whose circuit is open fails its
// remaining rows without touching the network.
func (d *Download) Run(ctx context.Context, s *stage.Stage) error {
	return s.ForEachRow(ctx, func(ctx context.Context, _ int, r ledger.Row) stage.Result {
		n, err := d.Fetcher.Fetch(ctx, r.FpathInp, r.FpathOut)
		switch {
		case errors.Is(err, resilience.ErrCircuitOpen):
			return stage.Failed("circuit open")
		case err != nil:
			return stage.Failed(err.Error())
		}
		return stage.Done(r.FpathOut, n)
	})
}
