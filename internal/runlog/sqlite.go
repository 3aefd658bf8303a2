package runlog

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/rnxpipe/internal/ledger"
)

// SQLite is the default Log, a single file next to the work directory.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and configures WAL mode.
func NewSQLite(dsn string) (*SQLite, error) {
	if dsn == "" {
		dsn = "rnxpipe.db"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLite{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	stages      TEXT NOT NULL,
	status      TEXT NOT NULL,
	started_at  TEXT NOT NULL,
	finished_at TEXT,
	error       TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS run_rows (
	seq       INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id    TEXT NOT NULL REFERENCES runs(id),
	stage     TEXT NOT NULL,
	fname     TEXT NOT NULL,
	site      TEXT NOT NULL,
	epoch_srt TEXT NOT NULL,
	epoch_end TEXT NOT NULL,
	ok_inp    INTEGER NOT NULL,
	ok_out    INTEGER NOT NULL,
	fpath_inp TEXT NOT NULL,
	fpath_out TEXT NOT NULL,
	size_inp  INTEGER NOT NULL,
	size_out  INTEGER NOT NULL,
	note      TEXT NOT NULL,
	fpath_ori TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_run_rows_stage ON run_rows(stage);
CREATE INDEX IF NOT EXISTS idx_run_rows_run_id ON run_rows(run_id);
`

// Migrate creates the tables.
func (s *SQLite) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// timeLayout is fixed width so text order matches time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func fmtTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(timeLayout, s)
}

// StartRun inserts a running run.
func (s *SQLite) StartRun(ctx context.Context, stages []string) (string, error) {
	id := uuid.New().String()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, stages, status, started_at) VALUES (?, ?, ?, ?)`,
		id, strings.Join(stages, ","), string(StatusRunning), fmtTime(time.Now()),
	)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: insert run")
	}
	return id, nil
}

const sqliteInsertRow = `INSERT INTO run_rows (run_id, stage, fname, site, epoch_srt, epoch_end, ok_inp, ok_out,
	fpath_inp, fpath_out, size_inp, size_out, note, fpath_ori) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertRow(ctx context.Context, e execer, runID, stage string, r ledger.Row) error {
	_, err := e.ExecContext(ctx, sqliteInsertRow,
		runID, stage, r.Fname, r.Site, fmtTime(r.EpochSrt), fmtTime(r.EpochEnd), r.OkInp, r.OkOut,
		r.FpathInp, r.FpathOut, r.SizeInp, r.SizeOut, r.Note, r.FpathOri,
	)
	return err
}

// Append inserts one row.
func (s *SQLite) Append(ctx context.Context, runID, stage string, row ledger.Row) error {
	if err := insertRow(ctx, s.db, runID, stage, row); err != nil {
		return eris.Wrapf(err, "sqlite: append row %s", row.Fname)
	}
	return nil
}

// AppendTable inserts every row in one transaction.
func (s *SQLite) AppendTable(ctx context.Context, runID, stage string, t ledger.Table) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin")
	}
	for _, r := range t {
		if err := insertRow(ctx, tx, runID, stage, r); err != nil {
			_ = tx.Rollback()
			return 0, eris.Wrapf(err, "sqlite: append row %s", r.Fname)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit")
	}
	return int64(len(t)), nil
}

// FinishRun closes the run.
func (s *SQLite) FinishRun(ctx context.Context, runID string, runErr error) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, finished_at = ?, error = ? WHERE id = ?`,
		string(finishStatus(runErr)), fmtTime(time.Now()), errString(runErr), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", runID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return eris.Wrapf(ErrRunNotFound, "sqlite: finish run %s", runID)
	}
	return nil
}

// Rows reads logged rows back.
func (s *SQLite) Rows(ctx context.Context, stage, runID string) (ledger.Table, error) {
	q := `SELECT ` + strings.Join(rowColumns, ", ") + ` FROM run_rows WHERE stage = ?`
	args := []any{stage}
	if runID != "" {
		q += ` AND run_id = ?`
		args = append(args, runID)
	}
	q += ` ORDER BY seq`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: rows of %s", stage)
	}
	defer rows.Close() //nolint:errcheck

	var t ledger.Table
	for rows.Next() {
		var r ledger.Row
		var srt, end string
		if err := rows.Scan(&r.Fname, &r.Site, &srt, &end, &r.OkInp, &r.OkOut,
			&r.FpathInp, &r.FpathOut, &r.SizeInp, &r.SizeOut, &r.Note, &r.FpathOri); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan row")
		}
		if r.EpochSrt, err = parseTime(srt); err != nil {
			return nil, eris.Wrap(err, "sqlite: parse epoch_srt")
		}
		if r.EpochEnd, err = parseTime(end); err != nil {
			return nil, eris.Wrap(err, "sqlite: parse epoch_end")
		}
		t = append(t, r)
	}
	return t, eris.Wrap(rows.Err(), "sqlite: iterate rows")
}

// Runs lists runs with their row counts.
func (s *SQLite) Runs(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT r.id, r.stages, r.status, r.started_at, COALESCE(r.finished_at, ''), r.error,
		        (SELECT COUNT(*) FROM run_rows rr WHERE rr.run_id = r.id)
		 FROM runs r ORDER BY r.started_at DESC, r.rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var out []Run
	for rows.Next() {
		var r Run
		var status, started, finished string
		if err := rows.Scan(&r.ID, &r.Stages, &status, &started, &finished, &r.Error, &r.Rows); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		r.Status = Status(status)
		if r.StartedAt, err = parseTime(started); err != nil {
			return nil, eris.Wrap(err, "sqlite: parse started_at")
		}
		if finished != "" {
			ft, err := parseTime(finished)
			if err != nil {
				return nil, eris.Wrap(err, "sqlite: parse finished_at")
			}
			r.FinishedAt = &ft
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate runs")
}
