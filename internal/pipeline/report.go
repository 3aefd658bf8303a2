package pipeline

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sells-group/rnxpipe/internal/stage"
)

// Mode is how a stage took part in a run.
type Mode string

// Stage modes.
const (
	// ModeRun prepares, filters and acts.
	ModeRun Mode = "run"
	// ModePlan only prepares, so later stages can pick up outputs of earlier runs.
	ModePlan Mode = "plan"
	// ModeDryRun prepares and filters without acting.
	ModeDryRun Mode = "dry-run"
)

// Status of a stage in a report.
type Status string

// Stage statuses.
const (
	StatusComplete Status = "complete"
	StatusFailed   Status = "failed"
)

// StageReport summarizes one stage.
type StageReport struct {
	Name     string        `json:"name"`
	Action   string        `json:"action"`
	Mode     Mode          `json:"mode"`
	Status   Status        `json:"status"`
	Rows     int           `json:"rows"`
	Active   int           `json:"active"`
	OK       int           `json:"ok"`
	Failed   int           `json:"failed"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

func (sr *StageReport) fail(err error, start time.Time) {
	sr.Status = StatusFailed
	sr.Error = err.Error()
	sr.Duration = time.Since(start)
}

// count tallies the active rows the action processed. A failed row always
// carries a note; rows left unprocessed by a fail-fast abort have none.
func (sr *StageReport) count(s *stage.Stage) {
	if sr.Mode != ModeRun {
		return
	}
	sr.OK, sr.Failed = 0, 0
	for _, r := range s.Table() {
		switch {
		case !r.OkInp:
		case r.OkOut:
			sr.OK++
		case r.Note != "":
			sr.Failed++
		}
	}
}

// Report summarizes a run.
type Report struct {
	RunID     string        `json:"run_id,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Stages    []StageReport `json:"stages"`
}

// Failed counts failed rows over all stages.
func (r *Report) Failed() int {
	n := 0
	for _, s := range r.Stages {
		n += s.Failed
	}
	return n
}

// Format writes a human-readable summary.
func (r *Report) Format(w io.Writer) error {
	var b strings.Builder
	if r.RunID != "" {
		fmt.Fprintf(&b, "Run %s (%s)\n", r.RunID, r.Duration.Round(time.Millisecond))
	} else {
		fmt.Fprintf(&b, "Run not logged (%s)\n", r.Duration.Round(time.Millisecond))
	}
	for _, s := range r.Stages {
		fmt.Fprintf(&b, "- %s [%s, %s]: %s, %d rows, %d active, %d ok, %d failed (%dms)\n",
			s.Name, s.Action, s.Mode, s.Status, s.Rows, s.Active, s.OK, s.Failed, s.Duration.Milliseconds())
		if s.Error != "" {
			fmt.Fprintf(&b, "  Error: %s\n", s.Error)
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}
