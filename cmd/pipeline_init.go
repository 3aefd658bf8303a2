package main

import (
	"context"
	"maps"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/rnxpipe/internal/action"
	"github.com/sells-group/rnxpipe/internal/archive"
	"github.com/sells-group/rnxpipe/internal/config"
	"github.com/sells-group/rnxpipe/internal/convert"
	"github.com/sells-group/rnxpipe/internal/epoch"
	"github.com/sells-group/rnxpipe/internal/fetcher"
	"github.com/sells-group/rnxpipe/internal/pipeline"
	"github.com/sells-group/rnxpipe/internal/resilience"
	"github.com/sells-group/rnxpipe/internal/runlog"
	"github.com/sells-group/rnxpipe/internal/stage"
	"github.com/sells-group/rnxpipe/internal/translate"
)

// lockName is the run lock created in the work directory.
const lockName = "rnxpipe.lock"

// runOverrides are command-line values that take precedence over the
// configured pipeline.
type runOverrides struct {
	Workers  int
	Start    string
	End      string
	FailFast *bool
}

// pipelineEnv holds the run log and the runner needed by the run command.
type pipelineEnv struct {
	RunLog runlog.Log
	Runner *pipeline.Runner
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.RunLog != nil {
		_ = pe.RunLog.Close()
	}
}

// initRunLog opens the configured run log. Callers should Close it.
func initRunLog(ctx context.Context) (runlog.Log, error) {
	l, err := runlog.Open(ctx, cfg.RunLog)
	if err != nil {
		return nil, eris.Wrap(err, "open run log")
	}
	return l, nil
}

// initPipeline validates the configuration, opens the run log and builds
// the Runner. Callers should defer env.Close().
func initPipeline(ctx context.Context, ov runOverrides) (*pipelineEnv, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var sites config.Sites
	if cfg.SitesFile != "" {
		s, err := config.LoadSites(cfg.SitesFile)
		if err != nil {
			return nil, err
		}
		sites = s
	}

	specs, err := buildSpecs(cfg, sites, ov, time.Now())
	if err != nil {
		return nil, err
	}

	if cfg.WorkDir != "" {
		if err := os.MkdirAll(cfg.WorkDir, 0o755); err != nil {
			return nil, eris.Wrap(err, "create work dir")
		}
	}

	rl, err := initRunLog(ctx)
	if err != nil {
		return nil, err
	}

	runner := pipeline.New(specs,
		pipeline.WithRunLog(rl),
		pipeline.WithLock(filepath.Join(cfg.WorkDir, lockName)),
		pipeline.WithLogger(zap.L()),
		pipeline.WithDecompressor(archive.New(archive.Options{
			Crx2Rnx: cfg.Archive.Crx2Rnx,
			Gzip:    cfg.Archive.Gzip,
		})),
		pipeline.WithOutput(os.Stdout, cfg.Pipeline.MaxPathLen),
	)

	return &pipelineEnv{RunLog: rl, Runner: runner}, nil
}

// toolbox holds the collaborators shared by every stage of a pipeline.
type toolbox struct {
	fetcher   fetcher.Fetcher
	converter convert.Converter
	sweeper   convert.Sweeper
	maxAge    time.Duration
	modifier  action.Modifier
}

func newToolbox(c *config.Config) *toolbox {
	tb := &toolbox{
		converter: convert.NewExec(c.Converters),
		modifier:  convert.NewHeaderModifier(c.HeaderModify.Bin),
		maxAge:    time.Duration(c.Container.MaxAgeSecs) * time.Second,
	}
	if c.Container.Sweep {
		tb.sweeper = convert.NewRuntime(c.Container.Bin, c.Container.ImagePrefix)
	}
	for _, st := range c.Pipeline.Stages {
		if st.Type == config.StageDownload {
			tb.fetcher = newFetcher(c.Download)
			break
		}
	}
	return tb
}

func newFetcher(d config.DownloadConfig) *fetcher.Router {
	retry := resilience.DefaultPolicy()
	if d.Retries > 0 {
		retry.Attempts = d.Retries
	}
	if d.BackoffMillis > 0 {
		retry.Backoff = time.Duration(d.BackoffMillis) * time.Millisecond
	}
	return fetcher.New(fetcher.Options{
		UserAgent: d.UserAgent,
		Timeout:   time.Duration(d.TimeoutSecs) * time.Second,
		Rate:      d.Rate,
		HostRates: d.HostRates,
		Retry:     retry,
		Breaker: resilience.BreakerConfig{
			Threshold: d.BreakerThreshold,
			Cooldown:  time.Duration(d.BreakerCooldownSecs) * time.Second,
		},
	})
}

// buildSpecs turns the configured stage list into runner specs.
func buildSpecs(c *config.Config, sites config.Sites, ov runOverrides, now time.Time) ([]pipeline.Spec, error) {
	site := translate.Site{ID: c.Pipeline.Site}
	session := map[string]string{}
	var meta config.Site
	if sites != nil && c.Pipeline.Site != "" {
		m, err := sites.Lookup(c.Pipeline.Site)
		if err != nil {
			return nil, err
		}
		meta = m
		site = m.TranslateSite(c.Pipeline.Site)
		maps.Copy(session, m.Session())
	}
	maps.Copy(session, c.Pipeline.Session)

	tb := newToolbox(c)
	specs := make([]pipeline.Spec, 0, len(c.Pipeline.Stages))
	for _, st := range c.Pipeline.Stages {
		rng, err := stageRange(c.Pipeline.Epochs, st.Epochs, ov, now)
		if err != nil {
			return nil, eris.Wrapf(err, "stage %s", st.Name)
		}

		workers := c.Pipeline.Workers
		if st.Workers > 0 {
			workers = st.Workers
		}
		if ov.Workers > 0 {
			workers = ov.Workers
		}
		failFast := c.Pipeline.FailFast
		if st.FailFast != nil {
			failFast = *st.FailFast
		}
		if ov.FailFast != nil {
			failFast = *ov.FailFast
		}

		act, err := buildAction(c, st, tb, meta, rng.Location(), now)
		if err != nil {
			return nil, eris.Wrapf(err, "stage %s", st.Name)
		}

		spec := pipeline.Spec{
			Config: stage.Config{
				Name:     st.Name,
				Site:     site,
				Session:  session,
				InpDir:   c.Resolve(st.InpDir),
				InpName:  st.InpName,
				OutDir:   c.Resolve(st.OutDir),
				OutName:  st.OutName,
				TmpDir:   c.TmpDir,
				Workers:  workers,
				FailFast: failFast,
			},
			Range:   rng,
			Action:  act,
			Inputs:  fileSource(c, st.Inputs),
			Filters: st.Filters,
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func buildAction(c *config.Config, st config.StageConfig, tb *toolbox, meta config.Site, loc *time.Location, now time.Time) (stage.Action, error) {
	tool := action.Tool{
		Converter: tb.converter,
		Name:      st.Converter,
		Options:   st.Options,
		Sweeper:   tb.sweeper,
		MaxAge:    tb.maxAge,
	}
	modifyOpts := func() convert.ModifyOptions {
		opts := *st.Modify
		if opts.Metadata == "" {
			opts.Metadata = meta.Sitelog
		}
		return opts
	}

	switch st.Type {
	case config.StageDownload:
		return &action.Download{Fetcher: tb.fetcher}, nil
	case config.StageConvert:
		a := &action.Convert{Tool: tool}
		if st.Modify != nil {
			a.Modifier = tb.modifier
			a.ModifyOptions = modifyOpts()
		}
		return a, nil
	case config.StageModify:
		return &action.Modify{Modifier: tb.modifier, Options: modifyOpts()}, nil
	case config.StageSplice:
		group, err := groupOptions(st.Group, loc, now)
		if err != nil {
			return nil, err
		}
		return &action.Splice{Tool: tool, Group: group}, nil
	case config.StageSplit:
		return &action.Split{Tool: tool, Store: fileSource(c, st.Store)}, nil
	default:
		return nil, eris.Wrapf(config.ErrUnknownStageType, "%q", st.Type)
	}
}

func groupOptions(g config.GroupConfig, loc *time.Location, now time.Time) (stage.GroupOptions, error) {
	p, err := epoch.ParsePeriod(g.Period)
	if err != nil {
		return stage.GroupOptions{}, err
	}
	m, err := epoch.ParseRoundMethod(g.Round)
	if err != nil {
		return stage.GroupOptions{}, err
	}
	ref, err := epoch.ParseRollingRef(g.Ref, loc, now)
	if err != nil {
		return stage.GroupOptions{}, err
	}
	return stage.GroupOptions{Period: p, Rolling: g.Rolling, Ref: ref, Round: m}, nil
}

// stageRange merges the stage epochs over the pipeline epochs, then the
// command-line bounds over both, and parses the result.
func stageRange(base, own config.EpochsConfig, ov runOverrides, now time.Time) (*epoch.Range, error) {
	e := base
	pick := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	pick(&e.Start, own.Start)
	pick(&e.End, own.End)
	pick(&e.Period, own.Period)
	pick(&e.Round, own.Round)
	pick(&e.Timezone, own.Timezone)
	pick(&e.Start, ov.Start)
	pick(&e.End, ov.End)
	return parseEpochs(e, now)
}

func parseEpochs(e config.EpochsConfig, now time.Time) (*epoch.Range, error) {
	var opts epoch.RangeOptions
	if e.Period != "" {
		p, err := epoch.ParsePeriod(e.Period)
		if err != nil {
			return nil, err
		}
		opts.Period = p
	}
	m, err := epoch.ParseRoundMethod(e.Round)
	if err != nil {
		return nil, err
	}
	opts.Round = m
	if e.Timezone != "" {
		loc, err := time.LoadLocation(e.Timezone)
		if err != nil {
			return nil, eris.Wrapf(err, "load timezone %q", e.Timezone)
		}
		opts.Location = loc
	}
	return epoch.ParseRange(e.Start, e.End, opts, now)
}

// fileSource converts a files section, nil when nothing is set.
func fileSource(c *config.Config, f config.FilesConfig) *stage.FileSource {
	if f.Empty() {
		return nil
	}
	src := stage.FileSource{Dir: c.Resolve(f.Dir), Pattern: f.Pattern}
	for _, p := range f.Paths {
		src.Paths = append(src.Paths, c.Resolve(p))
	}
	for _, p := range f.Lists {
		src.ListFiles = append(src.ListFiles, c.Resolve(p))
	}
	return &src
}
