package stage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/rnxpipe/internal/ledger"
	"github.com/sells-group/rnxpipe/internal/runlog"
)

func withRunLog(t *testing.T, cfg Config) (*Stage, runlog.Log, string) {
	t.Helper()
	l, err := runlog.Open(context.Background(), runlog.Config{DSN: filepath.Join(t.TempDir(), "run.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	id, err := l.StartRun(context.Background(), []string{"test"})
	require.NoError(t, err)

	cfg.Name = "test"
	cfg.TmpDir = t.TempDir()
	s, err := New(cfg, nil, WithLogger(zap.NewNop()), WithRunLog(l, id))
	require.NoError(t, err)
	return s, l, id
}

func rowsNamed(n int) ledger.Table {
	t := make(ledger.Table, n)
	for i := range t {
		t[i] = ledger.Row{Fname: fmt.Sprintf("f%02d", i), OkInp: true}
	}
	return t
}

func TestForEachRow_OrderedLogUnderParallelism(t *testing.T) {
	s, l, id := withRunLog(t, Config{Workers: 4})
	table := rowsNamed(12)
	table[3].OkInp = false
	s.SetTable(table)

	err := s.ForEachRow(context.Background(), func(_ context.Context, i int, r ledger.Row) Result {
		// later rows finish first
		time.Sleep(time.Duration(12-i) * time.Millisecond)
		if i == 5 {
			return Failed("converter exited 1")
		}
		return Done("/out/"+r.Fname, int64(i))
	})
	require.NoError(t, err)

	logged, err := l.Rows(context.Background(), "test", id)
	require.NoError(t, err)
	require.Len(t, logged, 11)
	var names []string
	for _, r := range logged {
		names = append(names, r.Fname)
	}
	assert.Equal(t, []string{"f00", "f01", "f02", "f04", "f05", "f06", "f07", "f08", "f09", "f10", "f11"}, names)

	assert.False(t, s.Row(5).OkOut)
	assert.Equal(t, "converter exited 1", s.Row(5).Note)
	assert.True(t, s.Row(6).OkOut)
	assert.Equal(t, "/out/f06", s.Row(6).FpathOut)
	assert.Equal(t, int64(6), s.Row(6).SizeOut)
	assert.False(t, s.Row(3).OkOut, "inactive rows are not run")
}

func TestForEachRow_FailFastSequential(t *testing.T) {
	s, l, id := withRunLog(t, Config{FailFast: true})
	s.SetTable(rowsNamed(5))

	var ran []int
	err := s.ForEachRow(context.Background(), func(_ context.Context, i int, r ledger.Row) Result {
		ran = append(ran, i)
		if i == 2 {
			return Failed("boom")
		}
		return Done("/out/"+r.Fname, 1)
	})
	require.ErrorIs(t, err, ErrRowFailed)
	assert.Contains(t, err.Error(), "f02")
	assert.Equal(t, []int{0, 1, 2}, ran)

	logged, err := l.Rows(context.Background(), "test", id)
	require.NoError(t, err)
	require.Len(t, logged, 3)
	assert.False(t, logged[2].OkOut)
	assert.False(t, s.Row(3).OkOut)
}

func TestForEachRow_ContinueOnFailure(t *testing.T) {
	s, _, _ := withRunLog(t, Config{})
	s.SetTable(rowsNamed(3))

	err := s.ForEachRow(context.Background(), func(_ context.Context, i int, r ledger.Row) Result {
		if i == 0 {
			return Failed("download: 404")
		}
		return Done("/out/"+r.Fname, 1)
	})
	require.NoError(t, err)
	assert.False(t, s.Row(0).OkOut)
	assert.True(t, s.Row(1).OkOut)
	assert.True(t, s.Row(2).OkOut)
}
