// Package runlog is the append-only record of every processed ledger row.
// A killed run resumes by reading the rows of earlier runs back.
package runlog

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/rnxpipe/internal/ledger"
)

// Status of a run.
type Status string

// Run statuses.
const (
	StatusRunning  Status = "running"
	StatusComplete Status = "complete"
	StatusFailed   Status = "failed"
)

// ErrRunNotFound is returned when a run id is unknown.
var ErrRunNotFound = eris.New("runlog: run not found")

// Run is one pipeline invocation.
type Run struct {
	ID         string     `json:"id"`
	Stages     string     `json:"stages"`
	Status     Status     `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Error      string     `json:"error,omitempty"`
	Rows       int64      `json:"rows"`
}

// Log records runs and their rows.
type Log interface {
	StartRun(ctx context.Context, stages []string) (string, error)
	// Append records one processed row of stage.
	Append(ctx context.Context, runID, stage string, row ledger.Row) error
	// AppendTable records a whole table at once.
	AppendTable(ctx context.Context, runID, stage string, t ledger.Table) (int64, error)
	// FinishRun marks the run complete, or failed when runErr is not nil.
	FinishRun(ctx context.Context, runID string, runErr error) error
	// Rows returns the rows of stage in log order. An empty runID means every run.
	Rows(ctx context.Context, stage, runID string) (ledger.Table, error)
	// Runs lists runs, most recent first.
	Runs(ctx context.Context, limit int) ([]Run, error)
	Close() error
}

// Config selects the backend.
type Config struct {
	Driver string `yaml:"driver" mapstructure:"driver"`
	DSN    string `yaml:"dsn" mapstructure:"dsn"`
}

// Open opens the backend named by cfg.Driver, "sqlite" or "postgres", and
// creates its tables.
func Open(ctx context.Context, cfg Config) (Log, error) {
	switch cfg.Driver {
	case "", "sqlite":
		l, err := NewSQLite(cfg.DSN)
		if err != nil {
			return nil, err
		}
		if err := l.Migrate(ctx); err != nil {
			_ = l.Close()
			return nil, err
		}
		return l, nil
	case "postgres":
		l, err := NewPostgres(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		if err := l.Migrate(ctx); err != nil {
			_ = l.Close()
			return nil, err
		}
		return l, nil
	default:
		return nil, eris.Errorf("runlog: unknown driver %q", cfg.Driver)
	}
}

// rowColumns is the column order of the rows table after run_id and stage.
var rowColumns = []string{
	"fname", "site", "epoch_srt", "epoch_end", "ok_inp", "ok_out",
	"fpath_inp", "fpath_out", "size_inp", "size_out", "note", "fpath_ori",
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func finishStatus(err error) Status {
	if err != nil {
		return StatusFailed
	}
	return StatusComplete
}
