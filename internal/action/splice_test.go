package action

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/rnxpipe/internal/epoch"
	"github.com/sells-group/rnxpipe/internal/ledger"
	"github.com/sells-group/rnxpipe/internal/stage"
)

// hourlyFiles writes n one-hour files and returns them as the ledger of a
// finished previous stage, newest first.
func hourlyFiles(t *testing.T, dir string, from time.Time, n int) ledger.Table {
	t.Helper()
	prev := make(ledger.Table, 0, n)
	for i := n - 1; i >= 0; i-- {
		srt := from.Add(time.Duration(i) * time.Hour)
		p := touch(t, filepath.Join(dir, srt.Format("20060102T15")+".rnx"), fmt.Sprintf("%02d;", srt.Hour()))
		prev = append(prev, ledger.Row{
			Fname:    filepath.Base(p),
			EpochSrt: srt,
			EpochEnd: srt.Add(time.Hour - time.Second),
			FpathOut: p,
			OkOut:    true,
		})
	}
	return prev
}

func TestSplice(t *testing.T) {
	dir := t.TempDir()
	day1 := tm(t, "2024-02-28T00:00:00Z")
	prev := hourlyFiles(t, filepath.Join(dir, "hourly"), day1, 26)

	s := newStage(t, stage.Config{
		Name:    "splice",
		OutDir:  filepath.Join(dir, "daily"),
		OutName: "MLVL%j0.%yo",
	}, nil)
	conv := &catConverter{name: "splice"}
	sp := &Splice{
		Tool:  Tool{Converter: conv, Name: "splice"},
		Group: stage.GroupOptions{Period: epoch.MustPeriod("1d")},
	}

	ctx := context.Background()
	require.NoError(t, sp.Prepare(ctx, s, stage.Input{Prev: prev}))
	require.Equal(t, 2, s.Len())
	require.Len(t, s.Children(), 2)
	assert.Equal(t, "MLVL0590.24o", s.Row(0).Fname)
	assert.Equal(t, filepath.Join(dir, "daily", "MLVL0600.24o"), s.Row(1).FpathOut)
	assert.Equal(t, int64(24*3), s.Row(0).SizeInp)
	assert.Equal(t, day1.Add(24*time.Hour-time.Second), s.Row(0).EpochEnd)

	require.NoError(t, sp.Run(ctx, s))
	s.Cleanup()
	assert.Equal(t, []bool{true, true}, okOut(s))

	var want strings.Builder
	for h := range 24 {
		fmt.Fprintf(&want, "%02d;", h)
	}
	data, err := os.ReadFile(s.Row(0).FpathOut)
	require.NoError(t, err)
	assert.Equal(t, want.String(), string(data))

	data, err = os.ReadFile(s.Row(1).FpathOut)
	require.NoError(t, err)
	assert.Equal(t, "00;01;", string(data))

	require.Len(t, conv.reqs, 2)
	assert.Equal(t, day1.AddDate(0, 0, 1), conv.reqs[1].Start)
	assert.Len(t, conv.reqs[1].Inputs, 2)

	// rerun plan: both outputs are already there
	require.NoError(t, sp.Prepare(ctx, s, stage.Input{Prev: prev}))
	assert.Equal(t, []bool{true, true}, okOut(s))
}

func TestSplice_RequiresOutName(t *testing.T) {
	s := newStage(t, stage.Config{Name: "splice", OutDir: t.TempDir()}, nil)
	sp := &Splice{Group: stage.GroupOptions{Period: epoch.MustPeriod("1d")}}
	assert.Error(t, sp.Prepare(context.Background(), s, stage.Input{}))
}

func TestSplice_NothingActive(t *testing.T) {
	s := newStage(t, stage.Config{Name: "splice", OutDir: t.TempDir(), OutName: "x"}, nil)
	sp := &Splice{Group: stage.GroupOptions{Period: epoch.MustPeriod("1d")}}
	prev := ledger.Table{{Fname: "a", FpathOut: "/nope/a", OkOut: false}}

	require.NoError(t, sp.Prepare(context.Background(), s, stage.Input{Prev: prev}))
	assert.Equal(t, 0, s.Len())
	require.NoError(t, sp.Run(context.Background(), s))
}
