// Package action holds the domain work plugged into a stage: download,
// convert, header modify, splice and split.
package action

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/rnxpipe/internal/convert"
	"github.com/sells-group/rnxpipe/internal/ledger"
	"github.com/sells-group/rnxpipe/internal/stage"
)

// Modifier rewrites RINEX headers. convert.HeaderModifier implements it.
type Modifier interface {
	Modify(ctx context.Context, input, outDir string, opts convert.ModifyOptions) (string, error)
}

// Tool is a named converter plus the container sweep that precedes every
// conversion.
type Tool struct {
	Converter convert.Converter
	Name      string
	Options   map[string]string
	// Sweeper is optional. Stale containers are stopped before each conversion.
	Sweeper convert.Sweeper
	MaxAge  time.Duration
}

func (t Tool) sweep(ctx context.Context, log *zap.Logger) {
	if t.Sweeper == nil {
		return
	}
	n, err := t.Sweeper.SweepStale(ctx, t.MaxAge)
	switch {
	case errors.Is(err, convert.ErrRuntimeUnavailable):
		log.Debug("action: container sweep skipped", zap.Error(err))
	case err != nil:
		log.Warn("action: container sweep failed", zap.Error(err))
	case n > 0:
		log.Info("action: stopped stale containers", zap.Int("count", n))
	}
}

// convert sweeps, then runs the converter. It returns the produced file, or
// an empty path and the reason.
func (t Tool) convert(ctx context.Context, log *zap.Logger, req convert.Request) (string, string) {
	t.sweep(ctx, log)
	req.Options = t.Options
	out, err := t.Converter.Convert(ctx, t.Name, req)
	if err != nil {
		return "", err.Error()
	}
	if !out.OK() {
		return "", "convert: " + out.Info
	}
	return out.Path, ""
}

// rowDir is the per-row working directory under the stage scratch dir.
func rowDir(s *stage.Stage, i int) (string, error) {
	scratch, err := s.ScratchDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(scratch, fmt.Sprintf("row%05d", i)), nil
}

// finalPath is where the output of row r lands: the guessed fpath_out, or
// the produced file name in the resolved output directory.
func finalPath(s *stage.Stage, r ledger.Row, produced string) string {
	if r.FpathOut != "" {
		return r.FpathOut
	}
	return filepath.Join(s.OutDir(r), filepath.Base(produced))
}

// deliver moves produced to its final location and returns the result.
func deliver(s *stage.Stage, r ledger.Row, produced string) stage.Result {
	dst := finalPath(s, r, produced)
	size, err := moveFile(produced, dst)
	if err != nil {
		return stage.Failed("move: " + err.Error())
	}
	return stage.Done(dst, size)
}

// requireOutName rejects stages whose outputs cannot be named from the row epoch.
func requireOutName(s *stage.Stage, action string) error {
	if s.Config().OutName == "" {
		return eris.Errorf("action: %s stage %q needs an output name template", action, s.Name())
	}
	return nil
}

// moveFile renames src to dst, falling back to copy and remove across
// file systems. It returns the size of dst.
func moveFile(src, dst string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, eris.Wrapf(err, "create %s", filepath.Dir(dst))
	}
	if err := os.Rename(src, dst); err != nil {
		if err := copyFile(src, dst); err != nil {
			return 0, err
		}
		if err := os.Remove(src); err != nil {
			return 0, eris.Wrapf(err, "remove %s", src)
		}
	}
	fi, err := os.Stat(dst)
	if err != nil {
		return 0, eris.Wrapf(err, "stat %s", dst)
	}
	return fi.Size(), nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return eris.Wrapf(err, "open %s", src)
	}
	defer in.Close() //nolint:errcheck

	part := dst + ".part"
	out, err := os.Create(part)
	if err != nil {
		return eris.Wrapf(err, "create %s", part)
	}
	_, err = io.Copy(out, in)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(part)
		return eris.Wrapf(err, "copy %s", src)
	}
	return eris.Wrapf(os.Rename(part, dst), "rename %s", part)
}
