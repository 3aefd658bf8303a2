// Package pipeline runs configured stages in order, handing the ledger of
// each stage to the next.
package pipeline

import (
	"context"
	"io"
	"slices"
	"time"

	"github.com/gofrs/flock"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/rnxpipe/internal/archive"
	"github.com/sells-group/rnxpipe/internal/epoch"
	"github.com/sells-group/rnxpipe/internal/ledger"
	"github.com/sells-group/rnxpipe/internal/runlog"
	"github.com/sells-group/rnxpipe/internal/stage"
)

// ErrLocked is returned when another run holds the work-dir lock.
var ErrLocked = eris.New("pipeline: another run holds the lock")

// ErrUnknownStage is returned when a selected or excluded stage is not configured.
var ErrUnknownStage = eris.New("pipeline: unknown stage")

// Spec is one configured stage.
type Spec struct {
	Config stage.Config
	Range  *epoch.Range
	Action stage.Action
	// Inputs, when set, replaces the hand-off from the previous stage.
	Inputs  *stage.FileSource
	Filters Filters
}

// RunOpts controls one invocation.
type RunOpts struct {
	// Stages restricts execution to these names; the others run plan-only.
	// Empty means all.
	Stages []string
	// Exclude runs these stages plan-only.
	Exclude []string
	// Force reprocesses rows whose output already exists.
	Force bool
	// DryRun prints the plan of every stage and touches nothing.
	DryRun bool
}

// Option customizes a Runner.
type Option func(*Runner)

// WithRunLog records runs and rows in l.
func WithRunLog(l runlog.Log) Option {
	return func(r *Runner) { r.runlog = l }
}

// WithLock serializes runs sharing the lock file at path.
func WithLock(path string) Option {
	return func(r *Runner) { r.lockPath = path }
}

// WithLogger sets the logger handed to every stage.
func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) { r.log = l }
}

// WithDecompressor sets the decompressor handed to every stage.
func WithDecompressor(d *archive.Decompressor) Option {
	return func(r *Runner) { r.decomp = d }
}

// WithOutput prints each stage ledger to w before and after its action.
func WithOutput(w io.Writer, maxPathLen int) Option {
	return func(r *Runner) {
		r.out = w
		r.maxPathLen = maxPathLen
	}
}

// Runner executes an ordered list of stages.
type Runner struct {
	specs      []Spec
	runlog     runlog.Log
	lockPath   string
	log        *zap.Logger
	decomp     *archive.Decompressor
	out        io.Writer
	maxPathLen int
}

// New creates a Runner over specs.
func New(specs []Spec, opts ...Option) *Runner {
	r := &Runner{specs: specs}
	for _, o := range opts {
		o(r)
	}
	if r.log == nil {
		r.log = zap.L()
	}
	if r.decomp == nil {
		r.decomp = archive.New(archive.Options{})
	}
	return r
}

// Names lists the configured stages in order.
func (r *Runner) Names() []string {
	names := make([]string, len(r.specs))
	for i, s := range r.specs {
		names[i] = s.Config.Name
	}
	return names
}

func (r *Runner) checkNames(names []string) error {
	known := r.Names()
	for _, n := range names {
		if !slices.Contains(known, n) {
			return eris.Wrapf(ErrUnknownStage, "%q", n)
		}
	}
	return nil
}

func (r *Runner) mode(name string, opts RunOpts) Mode {
	if opts.DryRun {
		return ModeDryRun
	}
	if len(opts.Stages) > 0 && !slices.Contains(opts.Stages, name) {
		return ModePlan
	}
	if slices.Contains(opts.Exclude, name) {
		return ModePlan
	}
	return ModeRun
}

// Run executes every stage in order. It stops at the first stage whose
// preparation or action fails; the report covers the stages reached.
func (r *Runner) Run(ctx context.Context, opts RunOpts) (*Report, error) {
	if err := r.checkNames(opts.Stages); err != nil {
		return nil, err
	}
	if err := r.checkNames(opts.Exclude); err != nil {
		return nil, err
	}

	if r.lockPath != "" {
		lock := flock.New(r.lockPath)
		ok, err := lock.TryLock()
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: acquire lock")
		}
		if !ok {
			return nil, eris.Wrapf(ErrLocked, "%s", r.lockPath)
		}
		defer func() {
			if err := lock.Unlock(); err != nil {
				r.log.Warn("pipeline: release lock", zap.Error(err))
			}
		}()
	}

	report := &Report{StartedAt: time.Now()}
	if r.runlog != nil && !opts.DryRun {
		id, err := r.runlog.StartRun(ctx, r.Names())
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: start run")
		}
		report.RunID = id
	}

	var prev ledger.Table
	var runErr error
	for _, spec := range r.specs {
		sr, table, err := r.runStage(ctx, spec, prev, report.RunID, opts)
		report.Stages = append(report.Stages, sr)
		if err != nil {
			runErr = eris.Wrapf(err, "pipeline: stage %s", spec.Config.Name)
			break
		}
		prev = table
	}
	report.Duration = time.Since(report.StartedAt)

	if report.RunID != "" {
		if err := r.runlog.FinishRun(context.WithoutCancel(ctx), report.RunID, runErr); err != nil {
			r.log.Error("pipeline: finish run", zap.String("run_id", report.RunID), zap.Error(err))
		}
	}
	return report, runErr
}

func (r *Runner) runStage(ctx context.Context, spec Spec, prev ledger.Table, runID string, opts RunOpts) (StageReport, ledger.Table, error) {
	mode := r.mode(spec.Config.Name, opts)
	sr := StageReport{Name: spec.Config.Name, Action: spec.Action.Name(), Mode: mode}
	start := time.Now()
	log := r.log.With(zap.String("action", sr.Action), zap.String("mode", string(mode)))

	rng := spec.Range
	if rng != nil {
		rng = rng.Clone()
	}
	sopts := []stage.Option{stage.WithLogger(log), stage.WithDecompressor(r.decomp)}
	if mode == ModeRun && runID != "" {
		sopts = append(sopts, stage.WithRunLog(r.runlog, runID))
	}
	s, err := stage.New(spec.Config, rng, sopts...)
	if err != nil {
		sr.fail(err, start)
		return sr, nil, err
	}
	defer s.Cleanup()

	if err := spec.Action.Prepare(ctx, s, stage.Input{Files: spec.Inputs, Prev: prev}); err != nil {
		sr.fail(err, start)
		return sr, nil, err
	}
	if mode != ModePlan {
		if err := r.applyFilters(ctx, s, spec.Filters, opts.Force); err != nil {
			sr.fail(err, start)
			return sr, nil, err
		}
	}
	sr.Rows = s.Len()
	sr.Active = s.Active()
	r.print(s)

	if mode == ModeRun && sr.Active > 0 {
		log.Info("pipeline: stage starting", zap.Int("rows", sr.Rows), zap.Int("active", sr.Active))
		if err := spec.Action.Run(ctx, s); err != nil {
			sr.count(s)
			sr.fail(err, start)
			r.print(s)
			return sr, s.Table(), err
		}
		r.print(s)
	}

	sr.count(s)
	sr.Status = StatusComplete
	sr.Duration = time.Since(start)
	log.Info("pipeline: stage complete",
		zap.Int("ok", sr.OK),
		zap.Int("failed", sr.Failed),
		zap.Int64("duration_ms", sr.Duration.Milliseconds()),
	)
	return sr, s.Table(), nil
}

func (r *Runner) print(s *stage.Stage) {
	if r.out == nil {
		return
	}
	if err := s.Print(r.out, r.maxPathLen); err != nil {
		r.log.Warn("pipeline: print ledger", zap.Error(err))
	}
}
