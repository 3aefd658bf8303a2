package ledger

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func sampleTable() Table {
	base := time.Date(2024, 2, 28, 0, 0, 0, 0, time.UTC)
	return Table{
		{Fname: "a.rnx", Site: "MLVL", EpochSrt: base, EpochEnd: base.Add(time.Hour - time.Second), OkInp: true, OkOut: true, FpathInp: "/in/a.rnx", FpathOut: "/out/a.rnx", SizeInp: 10, SizeOut: 12},
		{Fname: "b.rnx", Site: "MLVL", EpochSrt: base.Add(time.Hour), EpochEnd: base.Add(2*time.Hour - time.Second), OkInp: true, FpathInp: "/in/b.rnx", Note: "converter failed"},
		{Fname: "c.rnx", Site: "MLVL", EpochSrt: base.Add(2 * time.Hour), EpochEnd: base.Add(3*time.Hour - time.Second), FpathInp: "/in/c.rnx"},
	}
}

func TestSeed(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	starts := []time.Time{base, base.Add(time.Hour)}
	ends := []time.Time{base.Add(time.Hour - time.Second), base.Add(2*time.Hour - time.Second)}
	tbl := Seed(starts, ends)
	require.Len(t, tbl, 2)
	assert.Equal(t, base, tbl[0].EpochSrt)
	assert.Equal(t, ends[1], tbl[1].EpochEnd)
	assert.False(t, tbl[0].OkInp)
}

func TestPurge(t *testing.T) {
	tbl := sampleTable()

	kept, err := tbl.Purge(ColOkInp)
	require.NoError(t, err)
	require.Len(t, kept, 2)
	assert.Equal(t, "a.rnx", kept[0].Fname)
	assert.Equal(t, "b.rnx", kept[1].Fname)

	kept, err = tbl.Purge(ColOkOut)
	require.NoError(t, err)
	require.Len(t, kept, 1)

	assert.Len(t, tbl, 3, "purge does not touch the receiver")

	_, err = tbl.Purge(ColNote)
	assert.ErrorIs(t, err, ErrUnknownColumn)
}

func TestCountTrue(t *testing.T) {
	n, err := sampleTable().CountTrue(ColOkInp)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestClone_Independent(t *testing.T) {
	tbl := sampleTable()
	c := tbl.Clone()
	c[0].OkInp = false
	assert.True(t, tbl[0].OkInp)
}

func TestSortByEpoch_Stable(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tbl := Table{
		{Fname: "late", EpochSrt: base.Add(time.Hour)},
		{Fname: "first", EpochSrt: base},
		{Fname: "second", EpochSrt: base},
	}
	tbl.SortByEpoch()
	assert.Equal(t, []string{"first", "second", "late"}, []string{tbl[0].Fname, tbl[1].Fname, tbl[2].Fname})
}

func TestCSVRoundTrip(t *testing.T) {
	tbl := sampleTable()
	tbl[1].FpathOri = "/in/b.rnx.gz"

	var buf bytes.Buffer
	require.NoError(t, tbl.WriteCSV(&buf))
	assert.True(t, strings.HasPrefix(buf.String(), "fname,site,epoch_srt"))

	got, err := ReadCSV(&buf)
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i := range tbl {
		assert.Equal(t, tbl[i].Fname, got[i].Fname)
		assert.True(t, tbl[i].EpochSrt.Equal(got[i].EpochSrt))
		assert.Equal(t, tbl[i].OkInp, got[i].OkInp)
		assert.Equal(t, tbl[i].OkOut, got[i].OkOut)
		assert.Equal(t, tbl[i].SizeOut, got[i].SizeOut)
		assert.Equal(t, tbl[i].Note, got[i].Note)
		assert.Equal(t, tbl[i].FpathOri, got[i].FpathOri)
	}
}

func TestReadCSV_PartialColumns(t *testing.T) {
	got, err := ReadCSV(strings.NewReader("fname,ok_inp,extra\nx.rnx,true,ignored\n"))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "x.rnx", got[0].Fname)
	assert.True(t, got[0].OkInp)

	_, err = ReadCSV(strings.NewReader("fname,ok_inp\nx.rnx,maybe\n"))
	assert.Error(t, err)
}

func TestRender(t *testing.T) {
	tbl := sampleTable()
	tbl[0].FpathInp = "/very/long/directory/structure/for/rinex/files/a.rnx"

	var buf bytes.Buffer
	require.NoError(t, tbl.Render(&buf, RenderOptions{MaxPathLen: 20, Title: "convert"}))
	out := buf.String()
	assert.Contains(t, strings.ToLower(out), "convert")
	assert.Contains(t, out, "FNAME")
	assert.Contains(t, out, "...rinex/files/a.rnx")
	assert.NotContains(t, out, "/very/long")
	assert.Contains(t, out, "converter failed")
}

func TestTruncatePath(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"short", "/data/a.rnx", 20, "/data/a.rnx"},
		{"ascii", "/data/rinex/2024/a.rnx", 10, "...4/a.rnx"},
		{"multibyte", "/données/éèà/bœuf.rnx", 9, "...uf.rnx"},
		{"multibyte boundary", "/x/éééé", 6, "...ééé"},
		{"zero max", "/data/a.rnx", 0, "/data/a.rnx"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncatePath(tt.in, tt.max)
			assert.True(t, utf8.ValidString(got))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWriteXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.xlsx")
	require.NoError(t, sampleTable().WriteXLSX(path, ""))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, f.Sheets, 1)
	sheet := f.Sheets[0]
	assert.Equal(t, "ledger", sheet.Name)
	require.Len(t, sheet.Rows, 4)
	assert.Equal(t, ColFname, sheet.Rows[0].Cells[0].String())
	assert.Equal(t, "b.rnx", sheet.Rows[2].Cells[0].String())
}
