package preset

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/cwbudde/algo-fxhost/settings"
)

// KeyPluginsOrder is the document field holding the stage order of a
// direction.
const KeyPluginsOrder = "plugins_order"

const fileExt = ".json"

// Chain is the part of an effect chain the manager needs: the stage order
// and the lock that excludes block processing.
type Chain interface {
	Names() []string
	Reorder(order []string)
	Locker() sync.Locker
}

// Option configures a Manager.
type Option func(*Manager)

// WithCodecs replaces the default codecs.
func WithCodecs(codecs ...Codec) Option {
	return func(m *Manager) { m.codecs = codecs }
}

// WithChain attaches the chain of dir. Loads then hold its lock while
// writing the store and restore its stage order.
func WithChain(dir settings.Direction, c Chain) Option {
	return func(m *Manager) { m.chains[dir] = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// Manager stores named presets as <root>/<direction>/<name>.json.
type Manager struct {
	root    string
	backend *settings.Backend
	codecs  []Codec
	chains  map[settings.Direction]Chain
	logger  *slog.Logger

	mu sync.Mutex
}

// NewManager returns a manager over backend rooted at root.
func NewManager(root string, backend *settings.Backend, opts ...Option) *Manager {
	m := &Manager{
		root:    root,
		backend: backend,
		codecs:  DefaultCodecs(),
		chains:  map[settings.Direction]Chain{},
		logger:  slog.Default(),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Root returns the preset directory.
func (m *Manager) Root() string { return m.root }

// Snapshot builds the document of dir from the current store without
// touching disk. Effects whose schema is not registered for dir are left
// out.
func (m *Manager) Snapshot(dir settings.Direction) (*Document, error) {
	doc := NewDocument()

	for _, c := range m.codecs {
		if !m.backend.Has(settings.EffectPath(dir, c.Name()) + settings.KeyInputGain) {
			continue
		}

		if err := c.Save(doc, dir, m.backend); err != nil {
			return nil, fmt.Errorf("preset: save %s: %w", c.Name(), err)
		}
	}

	if c, ok := m.chains[dir]; ok {
		doc.Put(string(dir)+"."+KeyPluginsOrder, c.Names())
	}

	return doc, nil
}

// Apply loads doc into the store for dir. Effects missing from doc are
// left unchanged. The attached chain, if any, is locked while the store is
// written and reordered afterwards.
func (m *Manager) Apply(doc *Document, dir settings.Direction) error {
	var errs []error

	chain, hasChain := m.chains[dir]

	func() {
		if hasChain {
			l := chain.Locker()
			l.Lock()
			defer l.Unlock()
		}

		for _, c := range m.codecs {
			if !doc.Has(string(dir) + "." + c.Name()) {
				continue
			}

			if err := c.Load(doc, dir, m.backend); err != nil {
				errs = append(errs, fmt.Errorf("preset: load %s: %w", c.Name(), err))
			}
		}
	}()

	if hasChain && doc.Has(string(dir)+"."+KeyPluginsOrder) {
		order, err := doc.Strings(string(dir) + "." + KeyPluginsOrder)
		if err != nil {
			errs = append(errs, err)
		} else {
			chain.Reorder(order)
		}
	}

	return errors.Join(errs...)
}

// Save writes the current parameters of dir to the preset name.
func (m *Manager) Save(ctx context.Context, dir settings.Direction, name string) error {
	path, err := m.path(dir, name)
	if err != nil {
		return err
	}

	doc, err := m.Snapshot(dir)
	if err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := writeAtomic(path, doc); err != nil {
		return err
	}

	m.logger.Info("preset saved", "direction", dir, "name", name, "path", path)

	return nil
}

// Load reads the preset name and applies it to dir.
func (m *Manager) Load(ctx context.Context, dir settings.Direction, name string) error {
	doc, err := m.Read(ctx, dir, name)
	if err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	if err := m.Apply(doc, dir); err != nil {
		m.logger.Warn("preset load incomplete", "direction", dir, "name", name, "error", err)
		return err
	}

	m.logger.Info("preset loaded", "direction", dir, "name", name)

	return nil
}

// Read returns the stored document of preset name without applying it.
func (m *Manager) Read(ctx context.Context, dir settings.Direction, name string) (*Document, error) {
	path, err := m.path(dir, name)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, dir, name)
	}

	if err != nil {
		return nil, fmt.Errorf("preset: open: %w", err)
	}
	defer f.Close()

	doc, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("preset: %s/%s: %w", dir, name, err)
	}

	return doc, nil
}

// List returns the preset names of dir, sorted.
func (m *Manager) List(dir settings.Direction) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(m.root, string(dir)))
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}

	if err != nil {
		return nil, fmt.Errorf("preset: list: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), fileExt) {
			continue
		}

		names = append(names, strings.TrimSuffix(e.Name(), fileExt))
	}

	sort.Strings(names)

	return names, nil
}

// Remove deletes the preset name.
func (m *Manager) Remove(dir settings.Direction, name string) error {
	path, err := m.path(dir, name)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	err = os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, dir, name)
	}

	if err != nil {
		return fmt.Errorf("preset: remove: %w", err)
	}

	return nil
}

func (m *Manager) path(dir settings.Direction, name string) (string, error) {
	if _, err := settings.ParseDirection(string(dir)); err != nil {
		return "", err
	}

	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	return filepath.Join(m.root, string(dir), name+fileExt), nil
}

// writeAtomic writes doc next to path and renames it into place.
func writeAtomic(path string, doc *Document) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("preset: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".preset-*")
	if err != nil {
		return fmt.Errorf("preset: create: %w", err)
	}

	defer os.Remove(tmp.Name())

	if err := doc.Encode(tmp); err != nil {
		tmp.Close()
		return err
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("preset: close: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("preset: rename: %w", err)
	}

	return nil
}
