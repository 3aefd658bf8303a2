//go:build !integration

package main

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/rnxpipe/internal/config"
	"github.com/sells-group/rnxpipe/internal/convert"
	"github.com/sells-group/rnxpipe/internal/runlog"
)

func copyPipeline(t *testing.T) (*config.Config, string) {
	t.Helper()
	if _, err := exec.LookPath("cp"); err != nil {
		t.Skip("cp not available")
	}
	dir := t.TempDir()
	for _, n := range []string{"mlvl0590.24o", "mlvl0600.24o"} {
		p := filepath.Join(dir, "in", n)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(n), 0o644))
	}
	c := &config.Config{
		WorkDir: dir,
		TmpDir:  t.TempDir(),
		RunLog:  runlog.Config{Driver: "sqlite", DSN: filepath.Join(dir, "runlog.db")},
		Converters: map[string]convert.Spec{
			"cp": {Bin: "cp", Args: []string{"{input}", "{outdir}"}},
		},
		Pipeline: config.PipelineConfig{
			Site:    "MLVL",
			Workers: 1,
			Stages: []config.StageConfig{
				{
					Name: "rinex", Type: config.StageConvert, Converter: "cp", OutDir: "out",
					Inputs: config.FilesConfig{Dir: "in", Pattern: "*.24o"},
				},
				{Name: "again", Type: config.StageConvert, Converter: "cp", OutDir: "out2"},
			},
		},
	}
	return c, dir
}

func TestRunCmd_RunE_FailsOnValidation(t *testing.T) {
	cfg = &config.Config{}
	runCmd.SetContext(context.Background())
	defer runCmd.SetContext(context.TODO())

	err := runCmd.RunE(runCmd, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestRunCmd_RunE_ConvertsFiles(t *testing.T) {
	c, dir := copyPipeline(t)
	cfg = c
	runCmd.SetContext(context.Background())
	defer runCmd.SetContext(context.TODO())

	require.NoError(t, runCmd.RunE(runCmd, nil))

	assert.FileExists(t, filepath.Join(dir, "out", "mlvl0590.24o"))
	assert.FileExists(t, filepath.Join(dir, "out2", "mlvl0600.24o"))
	assert.FileExists(t, filepath.Join(dir, lockName))

	rl, err := runlog.NewSQLite(c.RunLog.DSN)
	require.NoError(t, err)
	defer rl.Close() //nolint:errcheck

	runs, err := rl.Runs(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, runlog.StatusComplete, runs[0].Status)
	assert.EqualValues(t, 4, runs[0].Rows)
}

func TestRunCmd_RunE_DryRunAndSelection(t *testing.T) {
	c, dir := copyPipeline(t)
	cfg = c
	runCmd.SetContext(context.Background())
	defer runCmd.SetContext(context.TODO())

	runDryRun = true
	defer func() { runDryRun = false }()
	require.NoError(t, runCmd.RunE(runCmd, nil))
	assert.NoDirExists(t, filepath.Join(dir, "out"))

	runDryRun = false
	runStages = []string{"nope"}
	defer func() { runStages = nil }()
	err := runCmd.RunE(runCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown stage")
}
