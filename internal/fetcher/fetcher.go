// Package fetcher downloads remote files over HTTP(S), FTP or from the local
// file system, with per-host rate limiting, retries and circuit breaking.
package fetcher

import (
	"context"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/rnxpipe/internal/resilience"
)

// Fetcher copies the resource at src into dst and returns the bytes written.
type Fetcher interface {
	Fetch(ctx context.Context, src, dst string) (int64, error)
}

// opener streams one resource.
type opener interface {
	Open(ctx context.Context, src string) (io.ReadCloser, error)
}

// Options configures a Router.
type Options struct {
	UserAgent string
	Timeout   time.Duration
	// Rate is the default requests per second per host.
	Rate float64
	// HostRates overrides Rate for specific hosts.
	HostRates map[string]float64
	Retry     resilience.Policy
	Breaker   resilience.BreakerConfig
}

// Router dispatches on the URL scheme of each source.
type Router struct {
	openers  map[string]opener
	retry    resilience.Policy
	breakers *resilience.HostBreakers
	log      *zap.Logger
}

// New creates a Router serving http, https, ftp, file and bare paths.
func New(opts Options) *Router {
	h := NewHTTPFetcher(HTTPOptions{
		UserAgent: opts.UserAgent,
		Timeout:   opts.Timeout,
		Rate:      opts.Rate,
		HostRates: opts.HostRates,
	})
	f := NewFTPFetcher(FTPOptions{Timeout: opts.Timeout})
	l := LocalFetcher{}
	return &Router{
		openers: map[string]opener{
			"http":  h,
			"https": h,
			"ftp":   f,
			"file":  l,
			"":      l,
		},
		retry:    opts.Retry,
		breakers: resilience.NewHostBreakers(opts.Breaker),
		log:      zap.L().Named("fetcher"),
	}
}

// Breakers exposes the per-host breaker registry.
func (r *Router) Breakers() *resilience.HostBreakers {
	return r.breakers
}

// Fetch downloads src to dst. The file is written to dst+".part" and renamed
// once complete, so a failed transfer never leaves a truncated dst behind.
func (r *Router) Fetch(ctx context.Context, src, dst string) (int64, error) {
	scheme, host := splitSource(src)
	op, ok := r.openers[scheme]
	if !ok {
		return 0, eris.Errorf("fetcher: unsupported scheme %q in %s", scheme, src)
	}

	if host != "" {
		if err := r.breakers.Allow(host); err != nil {
			return 0, err
		}
	}

	policy := r.retry
	if policy.OnRetry == nil {
		policy.OnRetry = resilience.LogRetry(r.log, src)
	}
	n, err := resilience.DoVal(ctx, policy, func(ctx context.Context) (int64, error) {
		return fetchTo(ctx, op, src, dst)
	})
	if host != "" {
		r.breakers.Record(host, err)
	}
	if err != nil {
		return 0, eris.Wrapf(err, "fetcher: fetch %s", src)
	}
	return n, nil
}

func fetchTo(ctx context.Context, op opener, src, dst string) (int64, error) {
	rc, err := op.Open(ctx, src)
	if err != nil {
		return 0, err
	}
	defer rc.Close() //nolint:errcheck

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, eris.Wrap(err, "create parent dir")
	}
	part := dst + ".part"
	file, err := os.Create(part)
	if err != nil {
		return 0, eris.Wrap(err, "create file")
	}

	n, err := io.Copy(file, rc)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(part)
		return n, eris.Wrap(err, "write file")
	}
	if err := os.Rename(part, dst); err != nil {
		_ = os.Remove(part)
		return n, eris.Wrap(err, "rename file")
	}
	return n, nil
}

// splitSource returns the lower-cased scheme and host of src. Bare paths
// have neither.
func splitSource(src string) (scheme, host string) {
	if !strings.Contains(src, "://") {
		return "", ""
	}
	u, err := url.Parse(src)
	if err != nil {
		return "", ""
	}
	return strings.ToLower(u.Scheme), u.Host
}
