package stage

import (
	"path"
	"path/filepath"
	"strings"

	"github.com/sells-group/rnxpipe/internal/ledger"
	"github.com/sells-group/rnxpipe/internal/translate"
)

func (s *Stage) resolve(tmpl string, r ledger.Row) string {
	return translate.Translate(tmpl, s.trans, r.EpochSrt)
}

// GuessOutPaths sets fpath_out of every row from the output templates.
func (s *Stage) GuessOutPaths() {
	for i := range s.table {
		r := &s.table[i]
		name := r.Fname
		if s.cfg.OutName != "" {
			name = s.resolve(s.cfg.OutName, *r)
		}
		if name == "" {
			continue
		}
		r.FpathOut = filepath.Join(s.resolve(s.cfg.OutDir, *r), name)
	}
}

// GuessRemotePaths sets fpath_inp and fname of every row from the input
// templates. Remote inputs cannot be checked up front, so every row is
// marked active.
func (s *Stage) GuessRemotePaths() {
	for i := range s.table {
		r := &s.table[i]
		dir := s.resolve(s.cfg.InpDir, *r)
		name := s.resolve(s.cfg.InpName, *r)
		if strings.Contains(dir, "://") {
			r.FpathInp = strings.TrimSuffix(dir, "/") + "/" + name
		} else {
			r.FpathInp = filepath.Join(dir, name)
		}
		r.Fname = path.Base(r.FpathInp)
		r.OkInp = true
	}
}

// OutDir resolves the output directory template for r.
func (s *Stage) OutDir(r ledger.Row) string {
	return s.resolve(s.cfg.OutDir, r)
}

// CheckOutputs sets ok_out and size_out from the files at fpath_out.
func (s *Stage) CheckOutputs() int {
	s.checked = true
	n := 0
	for i := range s.table {
		r := &s.table[i]
		size, ok := fileSize(r.FpathOut)
		r.OkOut = ok
		if ok {
			r.SizeOut = size
			n++
		}
	}
	return n
}
