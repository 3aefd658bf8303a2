// Package ledger holds the per-stage record of one row per file unit and its
// processing status.
package ledger

import (
	"slices"
	"time"

	"github.com/rotisserie/eris"
)

// Column names shared by every stage.
const (
	ColFname    = "fname"
	ColSite     = "site"
	ColEpochSrt = "epoch_srt"
	ColEpochEnd = "epoch_end"
	ColOkInp    = "ok_inp"
	ColOkOut    = "ok_out"
	ColFpathInp = "fpath_inp"
	ColFpathOut = "fpath_out"
	ColSizeInp  = "size_inp"
	ColSizeOut  = "size_out"
	ColNote     = "note"
	ColFpathOri = "fpath_ori"
	ColEpochRnd = "epoch_rnd"
)

// Columns is the base schema, in display order.
var Columns = []string{
	ColFname, ColSite, ColEpochSrt, ColEpochEnd, ColOkInp, ColOkOut,
	ColFpathInp, ColFpathOut, ColSizeInp, ColSizeOut, ColNote,
}

// ErrUnknownColumn is returned when a column name is not part of the schema
// or is not of the requested kind.
var ErrUnknownColumn = eris.New("ledger: unknown column")

// Row is one file unit tied to one epoch interval. FpathOri is only set for
// rows whose input was decompressed to scratch space, EpochRnd only while
// grouping.
type Row struct {
	Fname    string    `json:"fname"`
	Site     string    `json:"site"`
	EpochSrt time.Time `json:"epoch_srt"`
	EpochEnd time.Time `json:"epoch_end"`
	OkInp    bool      `json:"ok_inp"`
	OkOut    bool      `json:"ok_out"`
	FpathInp string    `json:"fpath_inp"`
	FpathOut string    `json:"fpath_out"`
	SizeInp  int64     `json:"size_inp"`
	SizeOut  int64     `json:"size_out"`
	Note     string    `json:"note,omitempty"`
	FpathOri string    `json:"fpath_ori,omitempty"`
	EpochRnd time.Time `json:"-"`
}

// Bool returns the value of a boolean column.
func (r Row) Bool(col string) (bool, error) {
	switch col {
	case ColOkInp:
		return r.OkInp, nil
	case ColOkOut:
		return r.OkOut, nil
	default:
		return false, eris.Wrapf(ErrUnknownColumn, "%q is not a boolean column", col)
	}
}

// Table is an ordered set of rows. Order is insertion order unless a method
// says otherwise.
type Table []Row

// Seed creates one row per interval from parallel start/end sequences.
func Seed(starts, ends []time.Time) Table {
	n := min(len(starts), len(ends))
	t := make(Table, n)
	for i := range n {
		t[i] = Row{EpochSrt: starts[i], EpochEnd: ends[i]}
	}
	return t
}

// Clone returns an independent copy.
func (t Table) Clone() Table {
	return slices.Clone(t)
}

// CountTrue counts rows where the boolean column is set.
func (t Table) CountTrue(col string) (int, error) {
	n := 0
	for _, r := range t {
		v, err := r.Bool(col)
		if err != nil {
			return 0, err
		}
		if v {
			n++
		}
	}
	return n, nil
}

// Purge returns the rows where col is true, preserving order.
func (t Table) Purge(col string) (Table, error) {
	out := make(Table, 0, len(t))
	for _, r := range t {
		v, err := r.Bool(col)
		if err != nil {
			return nil, err
		}
		if v {
			out = append(out, r)
		}
	}
	return out, nil
}

// Select returns the rows at the given indexes, in the given order.
func (t Table) Select(idx []int) Table {
	out := make(Table, 0, len(idx))
	for _, i := range idx {
		out = append(out, t[i])
	}
	return out
}

// SortByEpoch orders rows by EpochSrt, keeping the relative order of equal epochs.
func (t Table) SortByEpoch() {
	slices.SortStableFunc(t, func(a, b Row) int {
		return a.EpochSrt.Compare(b.EpochSrt)
	})
}

// EpochBounds returns the starts and ends columns.
func (t Table) EpochBounds() (starts, ends []time.Time) {
	starts = make([]time.Time, len(t))
	ends = make([]time.Time, len(t))
	for i, r := range t {
		starts[i] = r.EpochSrt
		ends[i] = r.EpochEnd
	}
	return starts, ends
}

// HasOriginals reports whether any row carries a pre-decompression path.
func (t Table) HasOriginals() bool {
	return slices.ContainsFunc(t, func(r Row) bool { return r.FpathOri != "" })
}
