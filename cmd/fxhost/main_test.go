package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwbudde/algo-fxhost/internal/testutil"
	"github.com/cwbudde/algo-fxhost/internal/wavio"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out, errOut bytes.Buffer

	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)

	err := cmd.ExecuteContext(context.Background())

	return out.String(), err
}

func writeWAV(t *testing.T, path string, rate int, left, right []float32) {
	t.Helper()

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w, err := wavio.NewWriter(f, rate, 16)
	require.NoError(t, err)
	require.NoError(t, w.WriteBlock(left, right))
	require.NoError(t, w.Close())
}

func TestRender(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	in := filepath.Join(dir, "in.wav")
	out := filepath.Join(dir, "out.wav")

	cfgPath := filepath.Join(dir, "host.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("block_size: 128\noutput:\n  effects: [equalizer]\n"), 0o644))

	tone := testutil.Sine(440, 44100, 0.5, 1000)
	writeWAV(t, in, 44100, tone, tone)

	stdout, err := run(t, "--config", cfgPath, "--preset-dir", dir, "render", "--in", in, "--out", out)
	require.NoError(t, err)
	assert.Contains(t, stdout, "1000 frames at 44100 Hz")

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()

	r, err := wavio.NewReader(f)
	require.NoError(t, err)
	assert.Equal(t, 44100, r.SampleRate())

	gotL := make([]float32, 1000)
	gotR := make([]float32, 1000)

	n, err := r.ReadBlock(gotL, gotR)
	require.NoError(t, err)
	assert.Equal(t, 1000, n)

	// the default equalizer is flat
	testutil.RequireBlocksNearlyEqual(t, gotL, tone, 1e-3)
}

func TestRenderErrors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	_, err := run(t, "render", "--in", filepath.Join(dir, "none.wav"), "--out", filepath.Join(dir, "o.wav"), "--preset-dir", dir)
	require.Error(t, err)

	_, err = run(t, "render", "--out", filepath.Join(dir, "o.wav"))
	require.Error(t, err, "--in is required")

	in := filepath.Join(dir, "in.wav")
	writeWAV(t, in, 48000, testutil.DC(0.1, 10), testutil.DC(0.1, 10))

	_, err = run(t, "--preset-dir", dir, "render", "-i", in, "-o", filepath.Join(dir, "o.wav"), "--direction", "sideways")
	require.Error(t, err)

	_, err = run(t, "--preset-dir", dir, "render", "-i", in, "-o", filepath.Join(dir, "o.wav"), "--preset", "missing")
	require.Error(t, err)

	_, err = run(t, "--preset-dir", dir, "render", "-i", in, "-o", filepath.Join(dir, "o.wav"), "--bypass", "reverb")
	require.Error(t, err)
}

func TestPresetCommands(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	_, err := run(t, "--preset-dir", dir, "preset", "init", "output", "flat")
	require.NoError(t, err)

	stdout, err := run(t, "--preset-dir", dir, "preset", "list", "output")
	require.NoError(t, err)
	assert.Equal(t, "flat\n", stdout)

	stdout, err = run(t, "--preset-dir", dir, "preset", "show", "output", "flat")
	require.NoError(t, err)
	assert.Contains(t, stdout, `"plugins_order"`)
	assert.Contains(t, stdout, `"num-bands": 32`)

	stdout, err = run(t, "--preset-dir", dir, "preset", "check", "output", "flat")
	require.NoError(t, err)
	assert.Equal(t, "output/flat: ok\n", stdout)

	broken := strings.Replace(readFile(t, filepath.Join(dir, "output", "flat.json")), `"num-bands": 32`, `"num-bands": 40`, 1)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "output", "broken.json"), []byte(broken), 0o644))

	_, err = run(t, "--preset-dir", dir, "preset", "check", "output", "broken")
	require.Error(t, err)

	_, err = run(t, "--preset-dir", dir, "preset", "remove", "output", "flat")
	require.NoError(t, err)

	_, err = run(t, "--preset-dir", dir, "preset", "remove", "output", "flat")
	require.Error(t, err)

	_, err = run(t, "--preset-dir", dir, "preset", "list", "sideways")
	require.Error(t, err)
}

func readFile(t *testing.T, path string) string {
	t.Helper()

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	return string(data)
}

func TestEffectsAndConfig(t *testing.T) {
	t.Parallel()

	stdout, err := run(t, "--preset-dir", t.TempDir(), "effects")
	require.NoError(t, err)
	assert.Equal(t, "equalizer\nfilter\nlimiter\n", stdout)

	stdout, err = run(t, "--log-level", "debug", "config")
	require.NoError(t, err)
	assert.Contains(t, stdout, "log_level: debug")
	assert.Contains(t, stdout, "sample_rate: 48000")

	_, err = run(t, "--log-level", "chatty", "config")
	require.Error(t, err)
}
