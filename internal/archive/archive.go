// Package archive strips generic compression (.gz, .bz2, .zip, .Z) and the
// Hatanaka compact RINEX layer from input files.
package archive

import (
	"compress/bzip2"
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Kind identifies one compression layer.
type Kind int

// Compression layers, outermost first when stacked.
const (
	None Kind = iota
	Gzip
	Bzip2
	Zip
	UnixZ
	Hatanaka
)

func (k Kind) String() string {
	switch k {
	case Gzip:
		return "gzip"
	case Bzip2:
		return "bzip2"
	case Zip:
		return "zip"
	case UnixZ:
		return "unix-compress"
	case Hatanaka:
		return "hatanaka"
	default:
		return "none"
	}
}

// RINEX 2 compact observation files end in .YYd
var shortCrxRe = regexp.MustCompile(`(?i)\.(\d{2})d$`)

// Detect returns the outermost layer of path, judged by its suffix.
func Detect(path string) Kind {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".gz"):
		return Gzip
	case strings.HasSuffix(lower, ".bz2"):
		return Bzip2
	case strings.HasSuffix(lower, ".zip"):
		return Zip
	case strings.HasSuffix(path, ".Z"):
		return UnixZ
	case strings.HasSuffix(lower, ".crx"), shortCrxRe.MatchString(path):
		return Hatanaka
	default:
		return None
	}
}

// IsCompressed reports whether path carries at least one known layer.
func IsCompressed(path string) bool {
	return Detect(path) != None
}

// stripName returns the file name once the outer layer is removed.
func stripName(name string, k Kind) string {
	switch k {
	case Gzip:
		return name[:len(name)-3]
	case Bzip2:
		return name[:len(name)-4]
	case Zip:
		return name[:len(name)-4]
	case UnixZ:
		return name[:len(name)-2]
	case Hatanaka:
		if strings.HasSuffix(strings.ToLower(name), ".crx") {
			return name[:len(name)-4] + ".rnx"
		}
		return name[:len(name)-1] + "o"
	}
	return name
}

// Options configures the external tools used for layers Go cannot decode.
type Options struct {
	// Crx2Rnx is the Hatanaka decompressor, run as "crx2rnx -" on stdin. Default "CRX2RNX".
	Crx2Rnx string
	// Gzip decodes .Z files with "gzip -dc". Default "gzip".
	Gzip string
}

// Decompressor removes every recognized layer of a file.
type Decompressor struct {
	opts Options
}

// New creates a Decompressor.
func New(opts Options) *Decompressor {
	if opts.Crx2Rnx == "" {
		opts.Crx2Rnx = "CRX2RNX"
	}
	if opts.Gzip == "" {
		opts.Gzip = "gzip"
	}
	return &Decompressor{opts: opts}
}

// Decompress peels layers from src until none is left and returns the final
// path in destDir. Intermediate files are removed. src itself is never modified.
// An uncompressed src is returned as is.
func (d *Decompressor) Decompress(ctx context.Context, src, destDir string) (string, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", eris.Wrapf(err, "archive: create %s", destDir)
	}

	cur := src
	for {
		k := Detect(cur)
		if k == None {
			return cur, nil
		}
		next, err := d.peel(ctx, cur, k, destDir)
		if cur != src {
			_ = os.Remove(cur)
		}
		if err != nil {
			return "", err
		}
		zap.L().Debug("archive: layer removed",
			zap.String("kind", k.String()),
			zap.String("from", cur),
			zap.String("to", next),
		)
		cur = next
	}
}

func (d *Decompressor) peel(ctx context.Context, src string, k Kind, destDir string) (string, error) {
	if k == Zip {
		return ExtractZIPSingle(src, destDir)
	}

	dst := filepath.Join(destDir, stripName(filepath.Base(src), k))
	in, err := os.Open(src)
	if err != nil {
		return "", eris.Wrapf(err, "archive: open %s", src)
	}
	defer in.Close() //nolint:errcheck

	out, err := os.Create(dst)
	if err != nil {
		return "", eris.Wrapf(err, "archive: create %s", dst)
	}

	switch k {
	case Gzip:
		err = copyGzip(out, in)
	case Bzip2:
		_, err = io.Copy(out, bzip2.NewReader(in))
	case UnixZ:
		err = d.run(ctx, out, in, d.opts.Gzip, "-dc")
	case Hatanaka:
		err = d.run(ctx, out, in, d.opts.Crx2Rnx, "-")
	}
	closeErr := out.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(dst)
		return "", eris.Wrapf(err, "archive: %s %s", k, src)
	}
	return dst, nil
}

func copyGzip(dst io.Writer, src io.Reader) error {
	zr, err := gzip.NewReader(src)
	if err != nil {
		return err
	}
	defer zr.Close() //nolint:errcheck
	_, err = io.Copy(dst, zr)
	return err
}

func (d *Decompressor) run(ctx context.Context, stdout io.Writer, stdin io.Reader, bin string, args ...string) error {
	var stderr strings.Builder
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stdin = stdin
	cmd.Stdout = stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return eris.Wrapf(err, "%s failed: %s", bin, strings.TrimSpace(stderr.String()))
	}
	return nil
}
