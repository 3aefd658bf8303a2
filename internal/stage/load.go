package stage

import (
	"bufio"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/rnxpipe/internal/ledger"
	"github.com/sells-group/rnxpipe/internal/rinexname"
)

// FileSource names the files a stage loads: literal paths, text files
// listing one path per line, or a directory scanned recursively.
type FileSource struct {
	Paths     []string
	ListFiles []string
	Dir       string
	// Pattern filters directory entries by base name (filepath.Match syntax).
	Pattern string
}

// Literal is a FileSource over explicit paths.
func Literal(paths ...string) FileSource { return FileSource{Paths: paths} }

// ListFiles is a FileSource over the merged content of text files of paths.
func ListFiles(files ...string) FileSource { return FileSource{ListFiles: files} }

// Directory is a FileSource over every file under dir matching pattern.
func Directory(dir, pattern string) FileSource { return FileSource{Dir: dir, Pattern: pattern} }

// Resolve expands the source into a path list, in source order.
func (src FileSource) Resolve() ([]string, error) {
	paths := slices.Clone(src.Paths)
	if len(src.ListFiles) > 0 {
		listed, err := ReadList(src.ListFiles...)
		if err != nil {
			return nil, err
		}
		paths = append(paths, listed...)
	}
	if src.Dir != "" {
		found, err := scanDir(src.Dir, src.Pattern)
		if err != nil {
			return nil, err
		}
		paths = append(paths, found...)
	}
	return paths, nil
}

// ReadList reads text files of one entry per line. Blank lines and lines
// starting with # are ignored.
func ReadList(files ...string) ([]string, error) {
	var out []string
	for _, f := range files {
		fh, err := os.Open(f)
		if err != nil {
			return nil, eris.Wrapf(err, "stage: open list %s", f)
		}
		sc := bufio.NewScanner(fh)
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			out = append(out, line)
		}
		err = sc.Err()
		_ = fh.Close()
		if err != nil {
			return nil, eris.Wrapf(err, "stage: read list %s", f)
		}
	}
	return out, nil
}

func scanDir(dir, pattern string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if pattern != "" {
			if ok, _ := filepath.Match(pattern, d.Name()); !ok {
				return nil
			}
		}
		out = append(out, p)
		return nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "stage: scan %s", dir)
	}
	slices.Sort(out)
	return out, nil
}

func fileSize(path string) (int64, bool) {
	if path == "" {
		return 0, false
	}
	fi, err := os.Stat(path)
	if err != nil || fi.IsDir() {
		return 0, false
	}
	return fi.Size(), true
}

// InitTable recreates the ledger. With seed, rows are the intervals of the
// stage range; otherwise the ledger is empty.
func (s *Stage) InitTable(seed bool) {
	s.children = nil
	if !seed {
		s.table = ledger.Table{}
		return
	}
	s.table = ledger.Seed(s.rng.List(false), s.rng.List(true))
	site := s.cfg.Site.ID
	for i := range s.table {
		s.table[i].Site = site
	}
}

// LoadFromFileList replaces the ledger with one row per file of src and
// returns the resolved paths. ok_inp is set when the file exists.
func (s *Stage) LoadFromFileList(src FileSource) ([]string, error) {
	paths, err := src.Resolve()
	if err != nil {
		return nil, err
	}

	s.children = nil
	s.table = make(ledger.Table, len(paths))
	for i, p := range paths {
		size, ok := fileSize(p)
		s.table[i] = ledger.Row{
			Fname:    filepath.Base(p),
			Site:     s.cfg.Site.ID,
			FpathInp: p,
			OkInp:    ok,
			SizeInp:  size,
		}
	}
	s.log.Info("stage: loaded file list",
		zap.Int("files", len(paths)),
		zap.Int("existing", s.Active()),
	)
	return paths, nil
}

// LoadFromPreviousTable builds the ledger from the ledger of the previous
// stage: its outputs become the inputs here. A row is active only if the
// previous stage succeeded and the file is on disk.
func (s *Stage) LoadFromPreviousTable(prev ledger.Table) {
	s.children = nil
	s.table = make(ledger.Table, len(prev))
	for i, p := range prev {
		size, exists := fileSize(p.FpathOut)
		if !exists {
			size = p.SizeOut
		}
		r := ledger.Row{
			Site:     p.Site,
			EpochSrt: p.EpochSrt,
			EpochEnd: p.EpochEnd,
			FpathInp: p.FpathOut,
			SizeInp:  size,
			OkInp:    p.OkOut && exists,
		}
		if p.FpathOut != "" {
			r.Fname = filepath.Base(p.FpathOut)
		}
		s.table[i] = r
	}
}

// UpdateEpochsFromNames fills epoch_srt, epoch_end and site from RINEX file
// names. Rows with an unrecognized name are deactivated; their count is returned.
func (s *Stage) UpdateEpochsFromNames() int {
	bad := 0
	for i := range s.table {
		r := &s.table[i]
		name := r.Fname
		if r.FpathOri != "" {
			name = filepath.Base(r.FpathOri)
		}
		info, err := rinexname.Parse(name)
		if err != nil {
			if r.OkInp {
				r.OkInp = false
				r.Note = "unrecognized file name"
				bad++
			}
			s.log.Debug("stage: no epoch in name", zap.String("fname", name))
			continue
		}
		r.EpochSrt = info.Start
		r.EpochEnd = info.End()
		if r.Site == "" {
			r.Site = info.Site
		}
	}
	if bad > 0 {
		s.log.Warn("stage: file names without epoch", zap.Int("rows", bad))
	}
	return bad
}
