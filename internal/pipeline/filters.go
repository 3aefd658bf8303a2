package pipeline

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/rnxpipe/internal/ledger"
	"github.com/sells-group/rnxpipe/internal/stage"
)

// Filters is the per-stage filter configuration.
type Filters struct {
	BadKeywords []string `yaml:"bad_keywords" mapstructure:"bad_keywords"`
	YearMin     int      `yaml:"year_min" mapstructure:"year_min"`
	YearMax     int      `yaml:"year_max" mapstructure:"year_max"`
	// YearPosition is the path segment holding the year. Unset searches for /YYYY/.
	YearPosition *int `yaml:"year_position" mapstructure:"year_position"`
	// ExcludeLists are files of names to skip, one per line.
	ExcludeLists []string `yaml:"exclude_lists" mapstructure:"exclude_lists"`
	// SkipPrevious skips rows already done in an earlier logged run.
	SkipPrevious bool `yaml:"skip_previous" mapstructure:"skip_previous"`
	// Purge drops inactive rows once every filter ran.
	Purge bool `yaml:"purge" mapstructure:"purge"`
}

// applyFilters runs the filter chain in its fixed order: bad keywords,
// year bounds, exclusion lists, earlier runs (when asked, or when the
// action could not check its outputs), existing outputs (unless force),
// then purge.
func (r *Runner) applyFilters(ctx context.Context, s *stage.Stage, f Filters, force bool) error {
	s.FilterBadKeywords(f.BadKeywords)

	if f.YearMin != 0 || f.YearMax != 0 {
		pos := -1
		if f.YearPosition != nil {
			pos = *f.YearPosition
		}
		s.FilterYearMinMax(f.YearMin, f.YearMax, pos)
	}

	if len(f.ExcludeLists) > 0 {
		names, err := stage.ReadList(f.ExcludeLists...)
		if err != nil {
			return eris.Wrap(err, "pipeline: read exclusion list")
		}
		s.FilterFileList(names)
	}

	// Without checked outputs FilterOkOut cannot see earlier work, so the
	// run log stands in for the disk.
	if !force && r.runlog != nil && (f.SkipPrevious || !s.OutputsChecked()) {
		prev, err := r.runlog.Rows(ctx, s.Name(), "")
		if err != nil {
			return eris.Wrap(err, "pipeline: read previous rows")
		}
		s.FilterPreviousTables(prev)
	}

	if !force {
		s.FilterOkOut()
	}

	if f.Purge {
		if _, err := s.FilterPurge(ledger.ColOkInp, true); err != nil {
			return err
		}
	}
	return nil
}
