//go:build !integration

package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/rnxpipe/internal/action"
	"github.com/sells-group/rnxpipe/internal/config"
	"github.com/sells-group/rnxpipe/internal/convert"
	"github.com/sells-group/rnxpipe/internal/epoch"
	"github.com/sells-group/rnxpipe/internal/translate"
)

var testNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func testConfig() *config.Config {
	yes := true
	return &config.Config{
		WorkDir:    "/data",
		TmpDir:     "/scratch",
		Converters: map[string]convert.Spec{"teqc": {Bin: "teqc"}},
		Container:  config.ContainerConfig{Bin: "docker", MaxAgeSecs: 120, Sweep: true},
		Download:   config.DownloadConfig{Retries: 2, BackoffMillis: 10, Rate: 2, BreakerThreshold: 3},
		Pipeline: config.PipelineConfig{
			Site:     "MLVL",
			Session:  map[string]string{"agency": "IGN"},
			Workers:  2,
			FailFast: false,
			Epochs: config.EpochsConfig{
				Start: "2024-02-28", End: "2024-03-01", Period: "1d", Round: "floor", Timezone: "UTC",
			},
			Stages: []config.StageConfig{
				{
					Name: "fetch", Type: config.StageDownload,
					InpDir: "ftp://example.org/%Y/%j", InpName: "<site_id4>%j0.%yd.Z",
					OutDir: "raw/%Y", FailFast: &yes,
				},
				{
					Name: "rinex", Type: config.StageConvert, Converter: "teqc", OutDir: "rinex",
					Modify: &convert.ModifyOptions{Compression: "gz"}, Workers: 8,
				},
				{
					Name: "daily", Type: config.StageSplice, Converter: "teqc", OutDir: "/abs/daily",
					OutName: "<site_id4>%j0.%yo",
					Epochs:  config.EpochsConfig{Period: "1h"},
					Group:   config.GroupConfig{Period: "1d", Rolling: true, Ref: "-1"},
				},
				{Name: "hdr", Type: config.StageModify, OutDir: "final", Modify: &convert.ModifyOptions{}},
				{
					Name: "hourly", Type: config.StageSplit, Converter: "teqc", OutDir: "hourly",
					OutName: "<site_id4>%j%H.%yo",
					Store:   config.FilesConfig{Dir: "store", Pattern: "*.gz"},
				},
			},
		},
	}
}

func TestBuildSpecs(t *testing.T) {
	c := testConfig()
	specs, err := buildSpecs(c, nil, runOverrides{}, testNow)
	require.NoError(t, err)
	require.Len(t, specs, 5)

	fetch := specs[0]
	assert.Equal(t, "download", fetch.Action.Name())
	assert.Equal(t, "ftp://example.org/%Y/%j", fetch.Config.InpDir)
	assert.Equal(t, "/data/raw/%Y", fetch.Config.OutDir)
	assert.Equal(t, "/scratch", fetch.Config.TmpDir)
	assert.Equal(t, "MLVL", fetch.Config.Site.ID)
	assert.Equal(t, "IGN", fetch.Config.Session["agency"])
	assert.True(t, fetch.Config.FailFast)
	assert.Equal(t, 2, fetch.Config.Workers)
	assert.Equal(t, 3, fetch.Range.Len())
	dl := fetch.Action.(*action.Download)
	assert.NotNil(t, dl.Fetcher)

	day := time.Date(2024, 2, 28, 0, 0, 0, 0, time.UTC)
	table := translate.BuildTable(fetch.Config.Site, fetch.Config.Session)
	assert.Equal(t, "ftp://example.org/2024/059", translate.Translate(fetch.Config.InpDir, table, day))
	assert.Equal(t, "mlvl0590.24d.Z", translate.Translate(fetch.Config.InpName, table, day))

	rinex := specs[1]
	assert.False(t, rinex.Config.FailFast)
	assert.Equal(t, 8, rinex.Config.Workers)
	conv := rinex.Action.(*action.Convert)
	assert.Equal(t, "teqc", conv.Tool.Name)
	assert.NotNil(t, conv.Tool.Sweeper)
	assert.Equal(t, 120*time.Second, conv.Tool.MaxAge)
	assert.NotNil(t, conv.Modifier)
	assert.Equal(t, "gz", conv.ModifyOptions.Compression)

	daily := specs[2]
	assert.Equal(t, "/abs/daily", daily.Config.OutDir)
	assert.Equal(t, epoch.MustPeriod("1h"), daily.Range.Period())
	sp := daily.Action.(*action.Splice)
	assert.Equal(t, epoch.MustPeriod("1d"), sp.Group.Period)
	assert.True(t, sp.Group.Rolling)
	assert.Equal(t, epoch.RefIndex(-1), sp.Group.Ref)

	assert.Equal(t, "modify", specs[3].Action.Name())

	split := specs[4].Action.(*action.Split)
	require.NotNil(t, split.Store)
	assert.Equal(t, "/data/store", split.Store.Dir)
	assert.Equal(t, "*.gz", split.Store.Pattern)
	assert.Nil(t, specs[4].Inputs)
}

func TestBuildSpecs_Overrides(t *testing.T) {
	c := testConfig()
	no := false
	specs, err := buildSpecs(c, nil, runOverrides{
		Workers:  4,
		Start:    "2024-03-05",
		End:      "2 days ago",
		FailFast: &no,
	}, testNow)
	require.NoError(t, err)

	for _, s := range specs {
		assert.Equal(t, 4, s.Config.Workers, s.Config.Name)
		assert.False(t, s.Config.FailFast, s.Config.Name)
	}
	rng := specs[0].Range
	assert.Equal(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), rng.Start())
	assert.Equal(t, time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC), rng.End())
}

func TestBuildSpecs_Sites(t *testing.T) {
	c := testConfig()
	c.Pipeline.Session["domes"] = "override"
	sites := config.Sites{"MLVL": {
		ID9:     "MLVL00FRA",
		Name:    "Marne-la-Vallee",
		Domes:   "10003M001",
		Sitelog: "/sitelogs/mlvl00fra.log",
	}}

	specs, err := buildSpecs(c, sites, runOverrides{}, testNow)
	require.NoError(t, err)

	cfg0 := specs[0].Config
	assert.Equal(t, "MLVL00FRA", cfg0.Site.ID)
	assert.Equal(t, "Marne-la-Vallee", cfg0.Session["site_name"])
	// Configured session keys win over site metadata.
	assert.Equal(t, "override", cfg0.Session["domes"])

	mod := specs[3].Action.(*action.Modify)
	assert.Equal(t, "/sitelogs/mlvl00fra.log", mod.Options.Metadata)
	conv := specs[1].Action.(*action.Convert)
	assert.Equal(t, "/sitelogs/mlvl00fra.log", conv.ModifyOptions.Metadata)

	c.Pipeline.Site = "ZZZZ"
	_, err = buildSpecs(c, sites, runOverrides{}, testNow)
	assert.ErrorIs(t, err, config.ErrUnknownSite)
}

func TestBuildSpecs_NoDownloadNoFetcher(t *testing.T) {
	c := testConfig()
	c.Container.Sweep = false
	c.Pipeline.Stages = c.Pipeline.Stages[1:2]
	c.Pipeline.Stages[0].Inputs = config.FilesConfig{Paths: []string{"in/a.rnx"}, Lists: []string{"more.list"}}

	specs, err := buildSpecs(c, nil, runOverrides{}, testNow)
	require.NoError(t, err)
	require.NotNil(t, specs[0].Inputs)
	assert.Equal(t, []string{"/data/in/a.rnx"}, specs[0].Inputs.Paths)
	assert.Equal(t, []string{"/data/more.list"}, specs[0].Inputs.ListFiles)
	conv := specs[0].Action.(*action.Convert)
	assert.Nil(t, conv.Tool.Sweeper)
}

func TestBuildSpecs_BadEpochs(t *testing.T) {
	c := testConfig()
	c.Pipeline.Stages[1].Epochs.Timezone = "Mars/Olympus"
	_, err := buildSpecs(c, nil, runOverrides{}, testNow)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stage rinex")

	c = testConfig()
	c.Pipeline.Stages[2].Group.Ref = "not a date"
	_, err = buildSpecs(c, nil, runOverrides{}, testNow)
	assert.Error(t, err)
}

func TestPipelineEnv_Close_Nil(t *testing.T) {
	// Close with all nil fields should not panic.
	pe := &pipelineEnv{}
	assert.NotPanics(t, func() {
		pe.Close()
	})
}

func TestInitPipeline_FailsOnValidation(t *testing.T) {
	cfg = &config.Config{}
	env, err := initPipeline(context.Background(), runOverrides{})
	assert.Nil(t, env)
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestInitPipeline_FailsOnSitesFile(t *testing.T) {
	cfg = testConfig()
	cfg.SitesFile = filepath.Join(t.TempDir(), "missing.yaml")
	env, err := initPipeline(context.Background(), runOverrides{})
	assert.Nil(t, env)
	assert.Error(t, err)
}
