package fetcher

import (
	"context"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/rotisserie/eris"
)

// LocalFetcher copies from file:// URLs or plain paths, for archives mounted
// on the local host.
type LocalFetcher struct{}

// Open opens the local file behind src.
func (LocalFetcher) Open(_ context.Context, src string) (io.ReadCloser, error) {
	path := src
	if strings.HasPrefix(src, "file://") {
		u, err := url.Parse(src)
		if err != nil {
			return nil, eris.Wrap(err, "parse file url")
		}
		path = u.Path
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "open local file")
	}
	return f, nil
}
