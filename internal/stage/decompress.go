package stage

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/rnxpipe/internal/archive"
)

// DecompressRow replaces a compressed input of row i by its decompressed
// copy in the scratch directory. The original path is kept in fpath_ori and
// ok_inp is recomputed from the new file. It reports whether the row changed.
func (s *Stage) DecompressRow(ctx context.Context, i int) bool {
	r := &s.table[i]
	if !r.OkInp || !archive.IsCompressed(r.FpathInp) {
		return false
	}

	dir, err := s.ScratchDir()
	if err != nil {
		r.OkInp = false
		r.Note = err.Error()
		return true
	}

	out, err := s.decomp.Decompress(ctx, r.FpathInp, dir)
	if r.FpathOri == "" {
		r.FpathOri = r.FpathInp
	}
	if err != nil {
		s.log.Warn("stage: decompress failed", zap.String("fname", r.Fname), zap.Error(err))
		r.OkInp = false
		r.Note = "decompress: " + err.Error()
		return true
	}

	s.Track(out)
	size, ok := fileSize(out)
	r.FpathInp = out
	r.SizeInp = size
	r.OkInp = ok
	return true
}

// DecompressAll runs DecompressRow over every row and returns how many
// rows changed.
func (s *Stage) DecompressAll(ctx context.Context) int {
	n := 0
	for i := range s.table {
		if s.DecompressRow(ctx, i) {
			n++
		}
	}
	if n > 0 {
		s.log.Info("stage: decompressed inputs", zap.Int("rows", n))
	}
	return n
}
