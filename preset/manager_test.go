package preset

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwbudde/algo-fxhost/settings"
)

type stubChain struct {
	mu      sync.Mutex
	names   []string
	locks   int
	ordered [][]string
}

func (c *stubChain) Names() []string { return slices.Clone(c.names) }

func (c *stubChain) Reorder(order []string) {
	c.ordered = append(c.ordered, slices.Clone(order))
	c.names = slices.Clone(order)
}

func (c *stubChain) Locker() sync.Locker { return countingLocker{c} }

type countingLocker struct{ c *stubChain }

func (l countingLocker) Lock() {
	l.c.mu.Lock()
	l.c.locks++
}

func (l countingLocker) Unlock() { l.c.mu.Unlock() }

func TestManagerSaveLoad(t *testing.T) {
	t.Parallel()

	root := t.TempDir()

	src := newBackend(t, settings.Output, settings.Equalizer, settings.Limiter)
	main, left, _ := eqViews(t, src, settings.Output)
	require.NoError(t, main.SetInt(settings.KeyNumBands, 4))
	require.NoError(t, left.SetDouble(settings.BandKey(2, settings.FieldGain), 6))

	lim := src.Open(settings.EffectPath(settings.Output, settings.Limiter))
	defer lim.Close()
	require.NoError(t, lim.SetDouble(settings.KeyThreshold, -6))

	srcChain := &stubChain{names: []string{settings.Limiter, settings.Equalizer}}
	m := NewManager(root, src, WithChain(settings.Output, srcChain))

	require.NoError(t, m.Save(context.Background(), settings.Output, "bright"))
	assert.FileExists(t, filepath.Join(root, "output", "bright.json"))

	names, err := m.List(settings.Output)
	require.NoError(t, err)
	assert.Equal(t, []string{"bright"}, names)

	dst := settings.NewBackend()
	dstChain := &stubChain{names: []string{settings.Equalizer, settings.Limiter}}
	m2 := NewManager(root, dst, WithChain(settings.Output, dstChain))

	require.NoError(t, m2.Load(context.Background(), settings.Output, "bright"))

	assert.Equal(t, 1, dstChain.locks)
	assert.Equal(t, [][]string{{settings.Limiter, settings.Equalizer}}, dstChain.ordered)

	g, err := dst.Value(settings.ChannelPath(settings.Output, settings.Equalizer, settings.Left) + settings.BandKey(2, settings.FieldGain))
	require.NoError(t, err)
	assert.Equal(t, 6.0, g)

	th, err := dst.Value(settings.EffectPath(settings.Output, settings.Limiter) + settings.KeyThreshold)
	require.NoError(t, err)
	assert.Equal(t, -6.0, th)

	assert.False(t, dst.Has(settings.EffectPath(settings.Output, settings.Filter)+settings.KeyMode),
		"effects absent from the preset stay unregistered")
}

func TestManagerSnapshotSkipsUnregistered(t *testing.T) {
	t.Parallel()

	b := newBackend(t, settings.Input, settings.Filter)
	m := NewManager(t.TempDir(), b)

	doc, err := m.Snapshot(settings.Input)
	require.NoError(t, err)

	assert.Equal(t, []string{settings.Filter}, doc.Children("input"))
	assert.False(t, doc.Has("input."+KeyPluginsOrder))
}

func TestManagerApplyKeepsMissingEffects(t *testing.T) {
	t.Parallel()

	b := newBackend(t, settings.Output, settings.Filter, settings.Limiter)

	lim := b.Open(settings.EffectPath(settings.Output, settings.Limiter))
	defer lim.Close()
	require.NoError(t, lim.SetDouble(settings.KeyRelease, 200))

	doc := NewDocument()
	require.NoError(t, Filter().Save(doc, settings.Output, b))

	m := NewManager(t.TempDir(), b)
	require.NoError(t, m.Apply(doc, settings.Output))

	r, err := lim.GetDouble(settings.KeyRelease)
	require.NoError(t, err)
	assert.Equal(t, 200.0, r)
}

func TestManagerApplyReportsBadOrder(t *testing.T) {
	t.Parallel()

	chain := &stubChain{names: []string{"a", "b"}}
	m := NewManager(t.TempDir(), settings.NewBackend(), WithChain(settings.Output, chain))

	doc := NewDocument()
	doc.Put("output."+KeyPluginsOrder, []any{"b", 3})

	err := m.Apply(doc, settings.Output)
	require.ErrorIs(t, err, ErrTypeMismatch)
	assert.Empty(t, chain.ordered)
}

func TestManagerNames(t *testing.T) {
	t.Parallel()

	m := NewManager(t.TempDir(), settings.NewBackend())
	ctx := context.Background()

	for _, name := range []string{"", ".", "..", "a/b", `a\b`} {
		require.ErrorIs(t, m.Save(ctx, settings.Output, name), ErrInvalidName, "name %q", name)
	}

	require.Error(t, m.Save(ctx, settings.Direction("sideways"), "x"))

	_, err := m.Read(ctx, settings.Output, "nope")
	require.ErrorIs(t, err, ErrNotFound)

	require.ErrorIs(t, m.Remove(settings.Output, "nope"), ErrNotFound)
}

func TestManagerListAndRemove(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	m := NewManager(root, newBackend(t, settings.Input, settings.Filter))
	ctx := context.Background()

	names, err := m.List(settings.Input)
	require.NoError(t, err)
	assert.Empty(t, names)
	assert.NotNil(t, names)

	for _, name := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, m.Save(ctx, settings.Input, name))
	}

	// stray files are not presets
	require.NoError(t, os.WriteFile(filepath.Join(root, "input", "notes.txt"), []byte("x"), 0o644))

	names, err = m.List(settings.Input)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, names)

	require.NoError(t, m.Remove(settings.Input, "mid"))

	names, err = m.List(settings.Input)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "zeta"}, names)

	out, err := m.List(settings.Output)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestManagerCorruptFile(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "output"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "output", "broken.json"), []byte("{"), 0o644))

	m := NewManager(root, settings.NewBackend())

	err := m.Load(context.Background(), settings.Output, "broken")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestManagerCanceledContext(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	m := NewManager(root, newBackend(t, settings.Output, settings.Limiter))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, m.Save(ctx, settings.Output, "x"), context.Canceled)
	assert.NoFileExists(t, filepath.Join(root, "output", "x.json"))

	_, err := m.Read(ctx, settings.Output, "x")
	require.ErrorIs(t, err, context.Canceled)
}
