package stage

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/rnxpipe/internal/ledger"
)

// Every filter below only ever turns ok_inp from true to false, and returns
// the input paths it excluded.

// exclude deactivates the active rows for which drop returns true.
func (s *Stage) exclude(filter string, drop func(r ledger.Row) bool) []string {
	var out []string
	for i := range s.table {
		r := &s.table[i]
		if !r.OkInp || !drop(*r) {
			continue
		}
		r.OkInp = false
		out = append(out, r.FpathInp)
		s.log.Debug("stage: row excluded", zap.String("filter", filter), zap.String("fname", r.Fname))
	}
	s.log.Info("stage: filter applied",
		zap.String("filter", filter),
		zap.Int("excluded", len(out)),
		zap.Int("remaining", s.Active()),
	)
	return out
}

// FilterBadKeywords excludes rows whose file name contains any keyword.
// Keywords with glob metacharacters are matched as filepath.Match patterns.
func (s *Stage) FilterBadKeywords(keywords []string) []string {
	if len(keywords) == 0 {
		return nil
	}
	return s.exclude("bad_keywords", func(r ledger.Row) bool {
		for _, k := range keywords {
			if strings.ContainsAny(k, "*?[") {
				if ok, _ := filepath.Match(k, r.Fname); ok {
					return true
				}
				continue
			}
			if strings.Contains(r.Fname, k) {
				return true
			}
		}
		return false
	})
}

var yearDirRe = regexp.MustCompile(`/(\d{4})/`)

// YearFromPath extracts a year from path: from the segment at position when
// position >= 0, otherwise from the first /YYYY/ directory.
func YearFromPath(path string, position int) (int, bool) {
	path = filepath.ToSlash(path)
	var raw string
	if position >= 0 {
		segs := strings.Split(strings.Trim(path, "/"), "/")
		if position >= len(segs) {
			return 0, false
		}
		raw = segs[position]
	} else {
		m := yearDirRe.FindStringSubmatch(path)
		if m == nil {
			return 0, false
		}
		raw = m[1]
	}
	y, err := strconv.Atoi(raw)
	if err != nil || len(raw) != 4 {
		return 0, false
	}
	return y, true
}

// FilterYearMinMax excludes rows whose input year lies outside
// [minYear, maxYear]. A zero bound is open. Rows without a readable year are
// excluded.
func (s *Stage) FilterYearMinMax(minYear, maxYear, position int) []string {
	if minYear == 0 && maxYear == 0 {
		return nil
	}
	return s.exclude("year_min_max", func(r ledger.Row) bool {
		y, ok := YearFromPath(r.FpathInp, position)
		if !ok {
			return true
		}
		return (minYear != 0 && y < minYear) || (maxYear != 0 && y > maxYear)
	})
}

// FilterFileList excludes rows whose file name is in list. Entries may be
// bare names or paths.
func (s *Stage) FilterFileList(list []string) []string {
	if len(list) == 0 {
		return nil
	}
	names := make(map[string]struct{}, len(list))
	for _, e := range list {
		names[filepath.Base(e)] = struct{}{}
	}
	return s.exclude("file_list", func(r ledger.Row) bool {
		_, ok := names[r.Fname]
		return ok
	})
}

// FilterPreviousTables excludes rows already fully processed in an earlier
// run, i.e. present in prev with both ok_inp and ok_out set.
func (s *Stage) FilterPreviousTables(prev ledger.Table) []string {
	done := make(map[string]struct{})
	for _, p := range prev {
		if p.OkInp && p.OkOut {
			done[p.Fname] = struct{}{}
		}
	}
	if len(done) == 0 {
		return nil
	}
	return s.exclude("previous_tables", func(r ledger.Row) bool {
		_, ok := done[r.Fname]
		return ok
	})
}

// FilterOkOut skips rows whose output already exists:
// ok_inp = ok_inp AND NOT ok_out.
func (s *Stage) FilterOkOut() []string {
	return s.exclude("ok_out", func(r ledger.Row) bool { return r.OkOut })
}

// FilterPurge drops every row where col is false and returns the kept rows.
// With inplace the stage ledger, and the children of a main stage, are
// replaced; otherwise the stage is left untouched.
func (s *Stage) FilterPurge(col string, inplace bool) (ledger.Table, error) {
	var keep []int
	for i, r := range s.table {
		v, err := r.Bool(col)
		if err != nil {
			return nil, err
		}
		if v {
			keep = append(keep, i)
		}
	}
	kept := s.table.Select(keep)
	if !inplace {
		return kept, nil
	}

	if s.children != nil {
		children := make([]*Stage, len(keep))
		for j, i := range keep {
			children[j] = s.children[i]
		}
		s.children = children
	}
	s.log.Info("stage: purged",
		zap.String("column", col),
		zap.Int("dropped", len(s.table)-len(kept)),
		zap.Int("remaining", len(kept)),
	)
	s.table = kept
	return kept.Clone(), nil
}
