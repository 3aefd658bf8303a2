package action

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/rnxpipe/internal/fetcher"
	"github.com/sells-group/rnxpipe/internal/resilience"
	"github.com/sells-group/rnxpipe/internal/stage"
)

func testFetcher(threshold int) *fetcher.Router {
	return fetcher.New(fetcher.Options{
		Rate:    1000,
		Retry:   resilience.Policy{Attempts: 1, Backoff: time.Millisecond},
		Breaker: resilience.BreakerConfig{Threshold: threshold},
	})
}

func TestDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/2024/00.txt", "/2024/01.txt":
			_, _ = w.Write([]byte("data" + r.URL.Path[6:8]))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	dir := t.TempDir()
	s := newStage(t, stage.Config{
		Name:    "download",
		InpDir:  srv.URL + "/%Y",
		InpName: "%H.txt",
		OutDir:  filepath.Join(dir, "%j"),
	}, hourlyRange(t, "2024-02-28T00:00:00Z", "2024-02-28T02:00:00Z"))

	d := &Download{Fetcher: testFetcher(5)}
	ctx := context.Background()
	require.NoError(t, d.Prepare(ctx, s, stage.Input{}))
	require.Equal(t, 3, s.Len())
	assert.Equal(t, srv.URL+"/2024/01.txt", s.Row(1).FpathInp)
	assert.Equal(t, filepath.Join(dir, "059", "01.txt"), s.Row(1).FpathOut)
	assert.Equal(t, 3, s.Active())

	require.NoError(t, d.Run(ctx, s))
	assert.Equal(t, []bool{true, true, false}, okOut(s))
	assert.Equal(t, int64(6), s.Row(0).SizeOut)
	assert.NotEmpty(t, s.Row(2).Note)
	assert.NoFileExists(t, s.Row(2).FpathOut)

	data, err := os.ReadFile(s.Row(1).FpathOut)
	require.NoError(t, err)
	assert.Equal(t, "data01", string(data))

	// a second plan sees what is already on disk
	require.NoError(t, d.Prepare(ctx, s, stage.Input{}))
	assert.Equal(t, []bool{true, true, false}, okOut(s))
}

func TestDownload_CircuitOpen(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s := newStage(t, stage.Config{
		Name:    "download",
		InpDir:  srv.URL,
		InpName: "%H.txt",
		OutDir:  t.TempDir(),
	}, hourlyRange(t, "2024-02-28T00:00:00Z", "2024-02-28T03:00:00Z"))

	d := &Download{Fetcher: testFetcher(2)}
	ctx := context.Background()
	require.NoError(t, d.Prepare(ctx, s, stage.Input{}))
	require.NoError(t, d.Run(ctx, s))

	assert.Equal(t, []bool{false, false, false, false}, okOut(s))
	assert.Equal(t, int32(2), hits.Load())
	assert.NotEqual(t, "circuit open", s.Row(1).Note)
	assert.Equal(t, "circuit open", s.Row(2).Note)
	assert.Equal(t, "circuit open", s.Row(3).Note)
}

func TestDownload_FailFast(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	s := newStage(t, stage.Config{
		Name:     "download",
		InpDir:   srv.URL,
		InpName:  "%H.txt",
		OutDir:   t.TempDir(),
		FailFast: true,
	}, hourlyRange(t, "2024-02-28T00:00:00Z", "2024-02-28T01:00:00Z"))

	d := &Download{Fetcher: testFetcher(5)}
	ctx := context.Background()
	require.NoError(t, d.Prepare(ctx, s, stage.Input{}))
	err := d.Run(ctx, s)
	require.ErrorIs(t, err, stage.ErrRowFailed)
}
