package ledger

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

const timeLayout = "2006-01-02 15:04:05"

// RenderOptions controls Render.
type RenderOptions struct {
	// MaxPathLen truncates path columns to their last MaxPathLen characters. Zero keeps them whole.
	MaxPathLen int
	Title      string
}

// Render writes the table as a boxed text table.
func (t Table) Render(w io.Writer, opts RenderOptions) error {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	if opts.Title != "" {
		tw.SetTitle(opts.Title)
	}

	cols := Columns
	if t.HasOriginals() {
		cols = append(append([]string{}, Columns...), ColFpathOri)
	}
	header := make(table.Row, len(cols))
	for i, c := range cols {
		header[i] = c
	}
	tw.AppendHeader(header)

	for _, r := range t {
		vals := r.strings(cols, timeLayout)
		row := make(table.Row, len(vals))
		for i, v := range vals {
			if isPathColumn(cols[i]) {
				v = truncatePath(v, opts.MaxPathLen)
			}
			row[i] = v
		}
		tw.AppendRow(row)
	}

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Name: ColSizeInp, Align: text.AlignRight},
		{Name: ColSizeOut, Align: text.AlignRight},
	})

	_, err := fmt.Fprintln(w, tw.Render())
	return err
}

func isPathColumn(col string) bool {
	return col == ColFpathInp || col == ColFpathOut || col == ColFpathOri
}

// truncatePath keeps the last max characters of p, counting runes.
func truncatePath(p string, max int) string {
	r := []rune(p)
	if max <= 3 || len(r) <= max {
		return p
	}
	return "..." + string(r[len(r)-max+3:])
}

func (r Row) strings(cols []string, layout string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = r.value(c, layout)
	}
	return out
}

func (r Row) value(col, layout string) string {
	switch col {
	case ColFname:
		return r.Fname
	case ColSite:
		return r.Site
	case ColEpochSrt:
		return formatTime(r.EpochSrt, layout)
	case ColEpochEnd:
		return formatTime(r.EpochEnd, layout)
	case ColOkInp:
		return strconv.FormatBool(r.OkInp)
	case ColOkOut:
		return strconv.FormatBool(r.OkOut)
	case ColFpathInp:
		return r.FpathInp
	case ColFpathOut:
		return r.FpathOut
	case ColSizeInp:
		return formatSize(r.SizeInp)
	case ColSizeOut:
		return formatSize(r.SizeOut)
	case ColNote:
		return r.Note
	case ColFpathOri:
		return r.FpathOri
	case ColEpochRnd:
		return formatTime(r.EpochRnd, layout)
	}
	return ""
}

func formatTime(t time.Time, layout string) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(layout)
}

func formatSize(n int64) string {
	if n == 0 {
		return ""
	}
	return strconv.FormatInt(n, 10)
}
