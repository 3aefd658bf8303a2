//go:build !integration

package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/rnxpipe/internal/ledger"
	"github.com/sells-group/rnxpipe/internal/runlog"
)

func openLog(t *testing.T, dir, name string) *runlog.SQLite {
	t.Helper()
	l, err := runlog.NewSQLite(filepath.Join(dir, name))
	require.NoError(t, err)
	require.NoError(t, l.Migrate(context.Background()))
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestLedgerExportImport(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	day := time.Date(2024, 2, 28, 0, 0, 0, 0, time.UTC)
	rows := ledger.Table{
		{Fname: "mlvl0590.24d.Z", Site: "MLVL", EpochSrt: day, EpochEnd: day.Add(24*time.Hour - time.Second),
			OkInp: true, OkOut: true, FpathOut: "/raw/mlvl0590.24d.Z", SizeOut: 1234},
		{Fname: "mlvl0600.24d.Z", Site: "MLVL", OkInp: true, Note: "http 404"},
	}

	csvPath := filepath.Join(dir, "fetch.csv")
	xlsxPath := filepath.Join(dir, "fetch.xlsx")
	require.NoError(t, exportLedger(rows, "fetch", csvPath, xlsxPath))
	assert.FileExists(t, csvPath)
	info, err := os.Stat(xlsxPath)
	require.NoError(t, err)
	assert.Positive(t, info.Size())

	l := openLog(t, dir, "runlog.db")
	runID, n, err := importLedger(ctx, l, "fetch", csvPath)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	got, err := l.Rows(ctx, "fetch", runID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "/raw/mlvl0590.24d.Z", got[0].FpathOut)
	assert.True(t, got[0].OkOut)
	assert.True(t, got[0].EpochSrt.Equal(day))
	assert.Equal(t, "http 404", got[1].Note)

	runs, err := l.Runs(ctx, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, runlog.StatusComplete, runs[0].Status)
}

func TestLedgerImport_MissingFile(t *testing.T) {
	dir := t.TempDir()
	l := openLog(t, dir, "runlog.db")
	_, _, err := importLedger(context.Background(), l, "fetch", filepath.Join(dir, "nope.csv"))
	assert.Error(t, err)

	runs, err := l.Runs(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}
