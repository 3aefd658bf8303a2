package action

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/rnxpipe/internal/convert"
	"github.com/sells-group/rnxpipe/internal/stage"
)

func TestModify(t *testing.T) {
	dir := t.TempDir()
	good := touch(t, filepath.Join(dir, "in", "mlvl0590.24o"), "OBS")
	junk := touch(t, filepath.Join(dir, "in", "notes.txt"), "x")

	s := newStage(t, stage.Config{Name: "modify", OutDir: filepath.Join(dir, "out", "%Y")}, nil)
	m := &Modify{Modifier: upperModifier}

	ctx := context.Background()
	files := stage.Literal(good, junk)
	require.NoError(t, m.Prepare(ctx, s, stage.Input{Files: &files}))
	require.Equal(t, 2, s.Len())
	assert.Equal(t, tm(t, "2024-02-28T00:00:00Z"), s.Row(0).EpochSrt)
	assert.Equal(t, filepath.Join(dir, "out", "2024", "mlvl0590.24o"), s.Row(0).FpathOut)
	assert.False(t, s.Row(1).OkInp)

	require.NoError(t, m.Run(ctx, s))
	assert.Equal(t, []bool{true, false}, okOut(s))

	data, err := os.ReadFile(s.Row(0).FpathOut)
	require.NoError(t, err)
	assert.Equal(t, "HDR;OBS", string(data))
}

func TestModify_LongNameKeepsProducedName(t *testing.T) {
	dir := t.TempDir()
	in := touch(t, filepath.Join(dir, "in", "mlvl0590.24o"), "OBS")
	opts := convert.ModifyOptions{LongName: true}

	s := newStage(t, stage.Config{Name: "modify", OutDir: filepath.Join(dir, "out")}, nil)
	long := "MLVL00FRA_R_20240590000_01D_30S_MO.rnx"
	mod := &mockModifier{}
	mod.On("Modify", mock.Anything, in, mock.Anything, opts).
		Run(func(args mock.Arguments) {
			touch(t, filepath.Join(args.String(2), long), "LONG")
		}).
		Return("", nil).Once()
	m := &Modify{Modifier: modifierFunc(func(ctx context.Context, input, outDir string, o convert.ModifyOptions) (string, error) {
		_, err := mod.Modify(ctx, input, outDir, o)
		return filepath.Join(outDir, long), err
	}), Options: opts}

	ctx := context.Background()
	files := stage.Literal(in)
	require.NoError(t, m.Prepare(ctx, s, stage.Input{Files: &files}))
	assert.Empty(t, s.Row(0).FpathOut)

	require.NoError(t, m.Run(ctx, s))
	mod.AssertExpectations(t)
	require.True(t, s.Row(0).OkOut, s.Row(0).Note)
	assert.Equal(t, filepath.Join(dir, "out", long), s.Row(0).FpathOut)
}
