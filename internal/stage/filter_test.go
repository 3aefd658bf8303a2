package stage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/rnxpipe/internal/ledger"
)

func filterStage(t *testing.T) *Stage {
	s := newStage(t, Config{}, nil)
	s.SetTable(ledger.Table{
		{Fname: "mlvl0590.24o", FpathInp: "/data/2024/059/mlvl0590.24o", OkInp: true},
		{Fname: "mlvl0600.23o", FpathInp: "/data/2023/060/mlvl0600.23o", OkInp: true},
		{Fname: "mlvl0610.24o.tmp", FpathInp: "/data/2024/061/mlvl0610.24o.tmp", OkInp: true},
		{Fname: "mlvl0620.24o", FpathInp: "/data/misc/mlvl0620.24o", OkInp: true},
		{Fname: "mlvl0630.24o", FpathInp: "/data/2025/063/mlvl0630.24o", OkInp: false},
	})
	return s
}

func TestFilterBadKeywords(t *testing.T) {
	s := filterStage(t)
	out := s.FilterBadKeywords([]string{".tmp", "*0600*"})
	assert.ElementsMatch(t, []string{"/data/2024/061/mlvl0610.24o.tmp", "/data/2023/060/mlvl0600.23o"}, out)
	assert.Equal(t, []bool{true, false, false, true, false}, okInp(s))

	assert.Nil(t, s.FilterBadKeywords(nil))
}

func TestYearFromPath(t *testing.T) {
	y, ok := YearFromPath("/data/2024/059/a.rnx", 1)
	require.True(t, ok)
	assert.Equal(t, 2024, y)

	y, ok = YearFromPath("/data/2024/059/a.rnx", -1)
	require.True(t, ok)
	assert.Equal(t, 2024, y)

	_, ok = YearFromPath("/data/2024/059/a.rnx", 2)
	assert.False(t, ok, "059 is not a year")
	_, ok = YearFromPath("/data/a.rnx", 9)
	assert.False(t, ok)
	_, ok = YearFromPath("/data/misc/a.rnx", -1)
	assert.False(t, ok)
}

func TestFilterYearMinMax(t *testing.T) {
	s := filterStage(t)
	out := s.FilterYearMinMax(2024, 2024, -1)
	// 2023 is out of range, misc has no year
	assert.Equal(t, []string{"/data/2023/060/mlvl0600.23o", "/data/misc/mlvl0620.24o"}, out)
	assert.Equal(t, []bool{true, false, true, false, false}, okInp(s))

	s = filterStage(t)
	out = s.FilterYearMinMax(0, 2023, 1)
	assert.Len(t, out, 3)
	assert.Equal(t, []bool{false, true, false, false, false}, okInp(s))

	s = filterStage(t)
	assert.Nil(t, s.FilterYearMinMax(0, 0, -1))
}

func TestFilterFileList(t *testing.T) {
	s := filterStage(t)
	out := s.FilterFileList([]string{"/elsewhere/mlvl0590.24o", "mlvl0630.24o"})
	assert.Equal(t, []string{"/data/2024/059/mlvl0590.24o"}, out)
	assert.Equal(t, []bool{false, true, true, true, false}, okInp(s))
}

func TestFilterPreviousTables(t *testing.T) {
	s := filterStage(t)
	prev := ledger.Table{
		{Fname: "mlvl0590.24o", OkInp: true, OkOut: true},
		{Fname: "mlvl0600.23o", OkInp: true, OkOut: false},
	}
	out := s.FilterPreviousTables(prev)
	assert.Equal(t, []string{"/data/2024/059/mlvl0590.24o"}, out)
	assert.Equal(t, []bool{false, true, true, true, false}, okInp(s))
}

func TestFilterOkOut_TruthTable(t *testing.T) {
	s := newStage(t, Config{}, nil)
	s.SetTable(ledger.Table{
		{Fname: "tt", OkInp: true, OkOut: true},
		{Fname: "tf", OkInp: true, OkOut: false},
		{Fname: "ft", OkInp: false, OkOut: true},
		{Fname: "ff", OkInp: false, OkOut: false},
	})
	s.FilterOkOut()
	for i := range s.Len() {
		r := s.Row(i)
		before := r.Fname[0] == 't'
		assert.Equal(t, before && !r.OkOut, r.OkInp, r.Fname)
	}
}

func TestFilters_NeverResurrect(t *testing.T) {
	s := filterStage(t)
	before := okInp(s)
	s.FilterBadKeywords([]string{"zzz"})
	s.FilterYearMinMax(1990, 2100, -1)
	s.FilterFileList([]string{"mlvl0630.24o"})
	s.FilterPreviousTables(ledger.Table{{Fname: "mlvl0630.24o", OkInp: true, OkOut: true}})
	s.FilterOkOut()
	after := okInp(s)
	for i := range before {
		assert.False(t, after[i] && !before[i], "row %d resurrected", i)
	}
}

func TestFilterPurge(t *testing.T) {
	s := filterStage(t)

	kept, err := s.FilterPurge(ledger.ColOkInp, false)
	require.NoError(t, err)
	assert.Len(t, kept, 4)
	assert.Equal(t, 5, s.Len())

	_, err = s.FilterPurge("fname", true)
	assert.ErrorIs(t, err, ledger.ErrUnknownColumn)

	kept, err = s.FilterPurge(ledger.ColOkOut, true)
	require.NoError(t, err)
	assert.Empty(t, kept)
	assert.Equal(t, 0, s.Len())
}
