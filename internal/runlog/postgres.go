package runlog

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/rnxpipe/internal/db"
	"github.com/sells-group/rnxpipe/internal/ledger"
)

// Postgres is a Log shared between hosts.
type Postgres struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgres connects to dsn.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := db.Connect(ctx, dsn, db.PoolConfig{})
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	return &Postgres{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool.
func NewPostgresFromPool(pool db.Pool) *Postgres {
	return &Postgres{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS rnx_runs (
	id          TEXT PRIMARY KEY,
	stages      TEXT NOT NULL,
	status      TEXT NOT NULL,
	started_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at TIMESTAMPTZ,
	error       TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS rnx_run_rows (
	seq       BIGSERIAL PRIMARY KEY,
	run_id    TEXT NOT NULL REFERENCES rnx_runs(id),
	stage     TEXT NOT NULL,
	fname     TEXT NOT NULL,
	site      TEXT NOT NULL,
	epoch_srt TIMESTAMPTZ,
	epoch_end TIMESTAMPTZ,
	ok_inp    BOOLEAN NOT NULL,
	ok_out    BOOLEAN NOT NULL,
	fpath_inp TEXT NOT NULL,
	fpath_out TEXT NOT NULL,
	size_inp  BIGINT NOT NULL,
	size_out  BIGINT NOT NULL,
	note      TEXT NOT NULL,
	fpath_ori TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_rnx_run_rows_stage ON rnx_run_rows(stage);
CREATE INDEX IF NOT EXISTS idx_rnx_run_rows_run_id ON rnx_run_rows(run_id);
`

// Migrate creates the tables.
func (p *Postgres) Migrate(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Close releases the pool if this Log opened it.
func (p *Postgres) Close() error {
	if p.closeFn != nil {
		p.closeFn()
	}
	return nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func rowValues(runID, stage string, r ledger.Row) []any {
	return []any{
		runID, stage, r.Fname, r.Site, nullTime(r.EpochSrt), nullTime(r.EpochEnd), r.OkInp, r.OkOut,
		r.FpathInp, r.FpathOut, r.SizeInp, r.SizeOut, r.Note, r.FpathOri,
	}
}

// StartRun inserts a running run.
func (p *Postgres) StartRun(ctx context.Context, stages []string) (string, error) {
	id := uuid.New().String()
	_, err := p.pool.Exec(ctx,
		`INSERT INTO rnx_runs (id, stages, status) VALUES ($1, $2, $3)`,
		id, strings.Join(stages, ","), string(StatusRunning),
	)
	if err != nil {
		return "", eris.Wrap(err, "postgres: insert run")
	}
	return id, nil
}

// Append inserts one row.
func (p *Postgres) Append(ctx context.Context, runID, stage string, row ledger.Row) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO rnx_run_rows (run_id, stage, `+strings.Join(rowColumns, ", ")+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		rowValues(runID, stage, row)...,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: append row %s", row.Fname)
	}
	return nil
}

// AppendTable bulk-loads a table with COPY.
func (p *Postgres) AppendTable(ctx context.Context, runID, stage string, t ledger.Table) (int64, error) {
	rows := make([][]any, len(t))
	for i, r := range t {
		rows[i] = rowValues(runID, stage, r)
	}
	cols := append([]string{"run_id", "stage"}, rowColumns...)
	n, err := db.CopyFrom(ctx, p.pool, "rnx_run_rows", cols, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: append table")
	}
	return n, nil
}

// FinishRun closes the run.
func (p *Postgres) FinishRun(ctx context.Context, runID string, runErr error) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE rnx_runs SET status = $1, finished_at = now(), error = $2 WHERE id = $3`,
		string(finishStatus(runErr)), errString(runErr), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrRunNotFound, "postgres: finish run %s", runID)
	}
	return nil
}

// Rows reads logged rows back.
func (p *Postgres) Rows(ctx context.Context, stage, runID string) (ledger.Table, error) {
	q := `SELECT ` + strings.Join(rowColumns, ", ") + ` FROM rnx_run_rows WHERE stage = $1`
	args := []any{stage}
	if runID != "" {
		q += ` AND run_id = $2`
		args = append(args, runID)
	}
	q += ` ORDER BY seq`

	rows, err := p.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: rows of %s", stage)
	}
	defer rows.Close()

	var t ledger.Table
	for rows.Next() {
		var r ledger.Row
		var srt, end *time.Time
		if err := rows.Scan(&r.Fname, &r.Site, &srt, &end, &r.OkInp, &r.OkOut,
			&r.FpathInp, &r.FpathOut, &r.SizeInp, &r.SizeOut, &r.Note, &r.FpathOri); err != nil {
			return nil, eris.Wrap(err, "postgres: scan row")
		}
		if srt != nil {
			r.EpochSrt = srt.UTC()
		}
		if end != nil {
			r.EpochEnd = end.UTC()
		}
		t = append(t, r)
	}
	return t, eris.Wrap(rows.Err(), "postgres: iterate rows")
}

// Runs lists runs with their row counts.
func (p *Postgres) Runs(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.pool.Query(ctx,
		`SELECT r.id, r.stages, r.status, r.started_at, r.finished_at, r.error,
		        (SELECT COUNT(*) FROM rnx_run_rows rr WHERE rr.run_id = r.id)
		 FROM rnx_runs r ORDER BY r.started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var status string
		if err := rows.Scan(&r.ID, &r.Stages, &status, &r.StartedAt, &r.FinishedAt, &r.Error, &r.Rows); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		r.Status = Status(status)
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate runs")
}
