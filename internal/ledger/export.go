package ledger

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

func exportColumns(t Table) []string {
	if t.HasOriginals() {
		return append(append([]string{}, Columns...), ColFpathOri)
	}
	return Columns
}

// WriteCSV writes the table with a header row. Times are RFC 3339.
func (t Table) WriteCSV(w io.Writer) error {
	cols := exportColumns(t)
	cw := csv.NewWriter(w)
	if err := cw.Write(cols); err != nil {
		return eris.Wrap(err, "ledger: write csv header")
	}
	for _, r := range t {
		if err := cw.Write(r.strings(cols, time.RFC3339)); err != nil {
			return eris.Wrap(err, "ledger: write csv row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "ledger: flush csv")
}

// ReadCSV reads a table written by WriteCSV. Unknown columns are ignored and
// missing ones keep their zero value, so older exports stay readable.
func ReadCSV(r io.Reader) (Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err == io.EOF {
		return Table{}, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "ledger: read csv header")
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var t Table
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, eris.Wrapf(err, "ledger: read csv line %d", line)
		}
		var row Row
		for i, v := range rec {
			if i >= len(header) {
				break
			}
			if err := row.set(header[i], v); err != nil {
				return nil, eris.Wrapf(err, "ledger: csv line %d", line)
			}
		}
		t = append(t, row)
	}
	return t, nil
}

func (r *Row) set(col, v string) error {
	var err error
	switch col {
	case ColFname:
		r.Fname = v
	case ColSite:
		r.Site = v
	case ColEpochSrt:
		r.EpochSrt, err = parseTime(v)
	case ColEpochEnd:
		r.EpochEnd, err = parseTime(v)
	case ColOkInp:
		r.OkInp, err = parseBool(v)
	case ColOkOut:
		r.OkOut, err = parseBool(v)
	case ColFpathInp:
		r.FpathInp = v
	case ColFpathOut:
		r.FpathOut = v
	case ColSizeInp:
		r.SizeInp, err = parseSize(v)
	case ColSizeOut:
		r.SizeOut, err = parseSize(v)
	case ColNote:
		r.Note = v
	case ColFpathOri:
		r.FpathOri = v
	}
	return err
}

func parseTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	return t, eris.Wrapf(err, "parse time %q", v)
}

func parseBool(v string) (bool, error) {
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	return b, eris.Wrapf(err, "parse bool %q", v)
}

func parseSize(v string) (int64, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	return n, eris.Wrapf(err, "parse size %q", v)
}

// WriteXLSX saves the table as a single-sheet workbook.
func (t Table) WriteXLSX(path, sheetName string) error {
	if sheetName == "" {
		sheetName = "ledger"
	}
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(sheetName)
	if err != nil {
		return eris.Wrap(err, "ledger: add xlsx sheet")
	}

	cols := exportColumns(t)
	header := sheet.AddRow()
	for _, c := range cols {
		header.AddCell().SetString(c)
	}
	for _, r := range t {
		row := sheet.AddRow()
		for _, c := range cols {
			cell := row.AddCell()
			switch c {
			case ColOkInp, ColOkOut:
				v, _ := r.Bool(c)
				cell.SetBool(v)
			case ColSizeInp:
				cell.SetInt64(r.SizeInp)
			case ColSizeOut:
				cell.SetInt64(r.SizeOut)
			default:
				cell.SetString(r.value(c, time.RFC3339))
			}
		}
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "ledger: save xlsx %s", path)
	}
	return nil
}
