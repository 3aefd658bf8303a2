// Package stage is the generic pipeline step: it owns one epoch range and
// one ledger, and provides the loaders, the filter chain, decompression,
// path guessing, the row action template and epoch regrouping that every
// concrete action is built from.
package stage

import (
	"context"
	"fmt"
	"io"
	"maps"
	"os"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/rnxpipe/internal/archive"
	"github.com/sells-group/rnxpipe/internal/epoch"
	"github.com/sells-group/rnxpipe/internal/ledger"
	"github.com/sells-group/rnxpipe/internal/runlog"
	"github.com/sells-group/rnxpipe/internal/translate"
)

// ErrRowFailed is returned by ForEachRow in fail-fast mode.
var ErrRowFailed = eris.New("stage: row failed")

// Config is the immutable part of a stage. Directory and name fields are
// path templates resolved per row with translate.Translate.
type Config struct {
	Name    string
	Site    translate.Site
	Session map[string]string
	// InpDir and InpName locate inputs. For downloads they form the remote URL.
	InpDir  string
	InpName string
	// OutDir and OutName locate outputs. An empty OutName keeps the input name.
	OutDir  string
	OutName string
	// TmpDir is the root under which the stage creates its private scratch dir.
	TmpDir   string
	Workers  int
	FailFast bool
}

// Input is what a stage starts from: explicit files, or else the ledger of
// the previous stage.
type Input struct {
	Files *FileSource
	Prev  ledger.Table
}

// Action is the domain work a stage performs. Prepare builds the ledger and
// guesses outputs; the runner then applies the filter chain and calls Run.
type Action interface {
	Name() string
	Prepare(ctx context.Context, s *Stage, in Input) error
	Run(ctx context.Context, s *Stage) error
}

// Option customizes a Stage.
type Option func(*Stage)

// WithLogger sets the stage logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Stage) { s.log = l }
}

// WithRunLog makes ForEachRow append every processed row to l under runID.
func WithRunLog(l runlog.Log, runID string) Option {
	return func(s *Stage) {
		s.runlog = l
		s.runID = runID
	}
}

// WithDecompressor sets the decompressor used by DecompressRow.
func WithDecompressor(d *archive.Decompressor) Option {
	return func(s *Stage) { s.decomp = d }
}

// Stage owns a ledger and the range it was seeded from.
type Stage struct {
	cfg   Config
	rng   *epoch.Range
	table ledger.Table
	trans map[string]string

	// children is parallel to table on a main stage built by GroupByEpoch.
	children []*Stage

	log    *zap.Logger
	runlog runlog.Log
	runID  string
	decomp *archive.Decompressor

	// checked is set once CheckOutputs has read ok_out from disk.
	checked bool

	// mu guards scratch and artifacts, which row actions touch concurrently.
	mu        sync.Mutex
	scratch   string
	artifacts []string
}

// New creates a stage over rng with an empty ledger.
func New(cfg Config, rng *epoch.Range, opts ...Option) (*Stage, error) {
	if cfg.Name == "" {
		return nil, eris.New("stage: name is required")
	}
	if rng == nil {
		rng = epoch.NewRange(time.Time{}, time.Time{}, epoch.RangeOptions{})
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	cfg.Session = maps.Clone(cfg.Session)

	s := &Stage{
		cfg:   cfg,
		rng:   rng,
		trans: translate.BuildTable(cfg.Site, cfg.Session),
	}
	for _, o := range opts {
		o(s)
	}
	if s.log == nil {
		s.log = zap.L()
	}
	s.log = s.log.With(zap.String("stage", cfg.Name))
	if s.decomp == nil {
		s.decomp = archive.New(archive.Options{})
	}
	return s, nil
}

// Snapshot returns an independent stage sharing this stage's configuration
// and collaborators, holding a copy of table and a copy of rng.
func (s *Stage) Snapshot(table ledger.Table, rng *epoch.Range) *Stage {
	if rng == nil {
		rng = s.rng.Clone()
	}
	cfg := s.cfg
	cfg.Session = maps.Clone(s.cfg.Session)
	return &Stage{
		cfg:    cfg,
		rng:    rng,
		table:  table.Clone(),
		trans:  maps.Clone(s.trans),
		log:    s.log,
		runlog: s.runlog,
		runID:  s.runID,
		decomp: s.decomp,
	}
}

// Name returns the stage name.
func (s *Stage) Name() string { return s.cfg.Name }

// Config returns a copy of the stage configuration.
func (s *Stage) Config() Config {
	c := s.cfg
	c.Session = maps.Clone(s.cfg.Session)
	return c
}

// Range returns the stage epoch range.
func (s *Stage) Range() *epoch.Range { return s.rng }

// Logger returns the stage logger.
func (s *Stage) Logger() *zap.Logger { return s.log }

// Table returns a copy of the ledger.
func (s *Stage) Table() ledger.Table { return s.table.Clone() }

// Len returns the number of ledger rows.
func (s *Stage) Len() int { return len(s.table) }

// Row returns row i.
func (s *Stage) Row(i int) ledger.Row { return s.table[i] }

// SetRow replaces row i.
func (s *Stage) SetRow(i int, r ledger.Row) { s.table[i] = r }

// SetTable replaces the ledger. Children of a main stage are dropped.
func (s *Stage) SetTable(t ledger.Table) {
	s.table = t.Clone()
	s.children = nil
}

// Load fills the ledger from in.
func (s *Stage) Load(in Input) error {
	if in.Files != nil {
		_, err := s.LoadFromFileList(*in.Files)
		return err
	}
	s.LoadFromPreviousTable(in.Prev)
	return nil
}

// Adopt takes over the ledger, range and children of other, typically the
// main stage returned by GroupByEpoch.
func (s *Stage) Adopt(other *Stage) {
	s.table = other.table.Clone()
	s.rng = other.rng
	s.children = other.children
}

// OutputsChecked reports whether ok_out reflects files on disk. It is false
// when the action could not guess output paths before running.
func (s *Stage) OutputsChecked() bool { return s.checked }

// Children returns the sub-stages referenced by each row of a main stage.
func (s *Stage) Children() []*Stage { return s.children }

// TranslateTable returns the substitution table.
func (s *Stage) TranslateTable() map[string]string { return maps.Clone(s.trans) }

// Active counts rows with ok_inp set.
func (s *Stage) Active() int {
	n, _ := s.table.CountTrue(ledger.ColOkInp)
	return n
}

// Print renders the ledger and the processing summary to w.
func (s *Stage) Print(w io.Writer, maxPathLen int) error {
	if err := s.table.Render(w, ledger.RenderOptions{Title: s.cfg.Name, MaxPathLen: maxPathLen}); err != nil {
		return err
	}
	active := s.Active()
	_, err := fmt.Fprintf(w, "%d files will be processed, %d excluded\n", active, len(s.table)-active)
	return err
}

// ScratchDir returns the stage private scratch directory, creating it on
// first use.
func (s *Stage) ScratchDir() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scratch != "" {
		return s.scratch, nil
	}
	root := s.cfg.TmpDir
	if root == "" {
		root = os.TempDir()
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return "", eris.Wrapf(err, "stage: create tmp root %s", root)
	}
	dir, err := os.MkdirTemp(root, s.cfg.Name+"-")
	if err != nil {
		return "", eris.Wrap(err, "stage: create scratch dir")
	}
	s.scratch = dir
	return dir, nil
}

// Track registers a transient file removed by Cleanup.
func (s *Stage) Track(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.artifacts = append(s.artifacts, path)
}

// Cleanup removes tracked artifacts and the scratch directory, including
// those of child stages.
func (s *Stage) Cleanup() {
	for _, c := range s.children {
		c.Cleanup()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.artifacts {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			s.log.Warn("stage: remove artifact", zap.String("path", p), zap.Error(err))
		}
	}
	s.artifacts = nil
	if s.scratch != "" {
		if err := os.RemoveAll(s.scratch); err != nil {
			s.log.Warn("stage: remove scratch dir", zap.String("dir", s.scratch), zap.Error(err))
		}
		s.scratch = ""
	}
}
