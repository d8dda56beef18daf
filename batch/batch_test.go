package batch

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tofuleak/vcdleak"
)

const scalarTrace = "$var wire 1 ! a $end\n" +
	"$enddefinitions $end\n" +
	"#0\n0!\n#10\n1!\n#20\n0!\n"

func writeTrace(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func Test_Run_sequential(t *testing.T) {
	dir := t.TempDir()
	writeTrace(t, dir, "a.vcd", scalarTrace)
	writeTrace(t, dir, "b.vcd", scalarTrace)

	cfg, err := vcdleak.NewEngineOptions(true, "", false, 1, "")
	require.NoError(t, err)

	results, err := Run(context.Background(), filepath.Join(dir, "*.vcd"), cfg)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.NoError(t, r.Err)
		assert.NotEmpty(t, r.Leakage)
	}
	assert.Equal(t, filepath.Join(dir, "a.vcd"), results[0].Path)
	assert.Equal(t, filepath.Join(dir, "b.vcd"), results[1].Path)
}

func Test_Run_parallel(t *testing.T) {
	dir := t.TempDir()
	writeTrace(t, dir, "a.vcd", scalarTrace)
	writeTrace(t, dir, "b.vcd", scalarTrace)
	writeTrace(t, dir, "c.vcd", scalarTrace)

	cfg, err := vcdleak.NewEngineOptions(true, "", false, 1, "")
	require.NoError(t, err)
	cfg.WithParallelism(4)

	results, err := Run(context.Background(), filepath.Join(dir, "*.vcd"), cfg)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for _, r := range results {
		assert.NoError(t, r.Err)
	}
}

func Test_Run_noMatchesFails(t *testing.T) {
	dir := t.TempDir()
	cfg, err := vcdleak.NewEngineOptions(true, "", false, 1, "")
	require.NoError(t, err)

	_, err = Run(context.Background(), filepath.Join(dir, "*.vcd"), cfg)
	assert.True(t, vcdleak.IsIOError(err))
}

func Test_Run_perFileErrorDoesNotAbortBatch(t *testing.T) {
	dir := t.TempDir()
	writeTrace(t, dir, "a.vcd", scalarTrace)
	writeTrace(t, dir, "bad.vcd", "$bogus $end\n")

	cfg, err := vcdleak.NewEngineOptions(true, "", false, 1, "")
	require.NoError(t, err)

	results, err := Run(context.Background(), filepath.Join(dir, "*.vcd"), cfg)
	require.NoError(t, err)
	require.Len(t, results, 2)

	var sawGood, sawBad bool
	for _, r := range results {
		if r.Path == filepath.Join(dir, "a.vcd") {
			assert.NoError(t, r.Err)
			sawGood = true
		}
		if r.Path == filepath.Join(dir, "bad.vcd") {
			assert.Error(t, r.Err)
			assert.True(t, vcdleak.IsMalformedTrace(r.Err))
			sawBad = true
		}
	}
	assert.True(t, sawGood && sawBad)
}

func Test_Run_canceledContextStopsDispatch(t *testing.T) {
	dir := t.TempDir()
	writeTrace(t, dir, "a.vcd", scalarTrace)

	cfg, err := vcdleak.NewEngineOptions(true, "", false, 1, "")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = Run(ctx, filepath.Join(dir, "*.vcd"), cfg)
	assert.ErrorIs(t, err, context.Canceled)
}
