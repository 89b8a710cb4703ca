// Package engine assembles a complete host from a hostconfig.Config: the
// settings backend, the plugin loader, one effect chain per direction with
// its optional spectrum tap, and the preset manager.
package engine

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/cwbudde/algo-fxhost/dsp/effectchain"
	"github.com/cwbudde/algo-fxhost/dsp/plugin"
	"github.com/cwbudde/algo-fxhost/dsp/plugin/builtin"
	"github.com/cwbudde/algo-fxhost/internal/hostconfig"
	"github.com/cwbudde/algo-fxhost/measure/spectrum"
	"github.com/cwbudde/algo-fxhost/preset"
	"github.com/cwbudde/algo-fxhost/settings"
)

// ErrUnknownDirection is returned for direction names other than input
// and output.
var ErrUnknownDirection = errors.New("engine: unknown direction")

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger handed to every component.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithLoader replaces the built-in engine loader.
func WithLoader(l plugin.Loader) Option {
	return func(e *Engine) {
		if l != nil {
			e.loader = l
		}
	}
}

// WithRegistry replaces the default stage registry.
func WithRegistry(r *effectchain.Registry) Option {
	return func(e *Engine) {
		if r != nil {
			e.registry = r
		}
	}
}

// Engine owns every long-lived part of a running host.
type Engine struct {
	cfg      hostconfig.Config
	logger   *slog.Logger
	loader   plugin.Loader
	registry *effectchain.Registry
	backend  *settings.Backend

	chains  map[settings.Direction]*effectchain.Chain
	spectra map[settings.Direction]*spectrum.Analyzer
	presets *preset.Manager
}

// New builds the chains of cfg and sets them up for its stream format.
// Stages whose engine fails to start stay in passthrough and are only
// logged.
func New(cfg hostconfig.Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:     cfg,
		logger:  slog.Default(),
		backend: settings.NewBackend(),
		chains:  map[settings.Direction]*effectchain.Chain{},
		spectra: map[settings.Direction]*spectrum.Analyzer{},
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.loader == nil {
		e.loader = builtin.NewLoader()
	}

	if e.registry == nil {
		e.registry = effectchain.DefaultRegistry()
	}

	managerOpts := []preset.Option{preset.WithLogger(e.logger)}

	for _, dir := range settings.Directions {
		layout := cfg.Chain(dir)

		var chainOpts []effectchain.Option

		if layout.Spectrum {
			a, err := spectrum.New(spectrum.DefaultSize)
			if err != nil {
				e.Close()
				return nil, err
			}

			e.spectra[dir] = a
			chainOpts = append(chainOpts, effectchain.WithTap(a))
		}

		env := effectchain.Env{
			Direction: dir,
			Backend:   e.backend,
			Loader:    e.loader,
			Logger:    e.logger,
		}

		c, err := e.registry.BuildChain(env, layout.Effects, chainOpts...)
		if err != nil {
			e.Close()
			return nil, fmt.Errorf("engine: %s chain: %w", dir, err)
		}

		c.SetMetering(layout.Metering)

		e.chains[dir] = c
		managerOpts = append(managerOpts, preset.WithChain(dir, c))
	}

	e.presets = preset.NewManager(cfg.PresetDir, e.backend, managerOpts...)

	if err := e.Setup(cfg.SampleRate, cfg.BlockSize); err != nil {
		e.logger.Warn("some stages run in passthrough", "error", err)
	}

	return e, nil
}

// Setup reconfigures both chains for a new stream format. Stage failures
// are joined; the stream format itself must be valid.
func (e *Engine) Setup(sampleRate float64, blockSize int) error {
	var errs []error

	for _, dir := range settings.Directions {
		if err := e.chains[dir].Setup(sampleRate, blockSize); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Config returns the layout the engine was built from.
func (e *Engine) Config() hostconfig.Config { return e.cfg }

// Backend returns the parameter store.
func (e *Engine) Backend() *settings.Backend { return e.backend }

// Presets returns the preset manager.
func (e *Engine) Presets() *preset.Manager { return e.presets }

// Logger returns the engine logger.
func (e *Engine) Logger() *slog.Logger { return e.logger }

// Effects returns the effect names that can be built.
func (e *Engine) Effects() []string { return e.registry.Names() }

// Chain returns the chain of the named direction.
func (e *Engine) Chain(dir string) (*effectchain.Chain, error) {
	d, err := settings.ParseDirection(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDirection, dir)
	}

	return e.chains[d], nil
}

// Spectrum returns the analyzer tapping the named direction, if enabled.
func (e *Engine) Spectrum(dir string) (*spectrum.Analyzer, bool) {
	a, ok := e.spectra[settings.Direction(dir)]
	return a, ok
}

// AddEffect builds effect and appends it to the chain of dir.
func (e *Engine) AddEffect(dir, effect string) error {
	c, err := e.Chain(dir)
	if err != nil {
		return err
	}

	s, err := e.registry.Build(effect, effectchain.Env{
		Direction: c.Direction(),
		Backend:   e.backend,
		Loader:    e.loader,
		Logger:    e.logger,
	})
	if err != nil {
		return err
	}

	if err := c.Append(s); err != nil {
		s.Close()
		return err
	}

	e.logger.Info("effect added", "direction", dir, "effect", effect)

	return nil
}

// RemoveEffect removes effect from the chain of dir.
func (e *Engine) RemoveEffect(dir, effect string) error {
	c, err := e.Chain(dir)
	if err != nil {
		return err
	}

	if err := c.Remove(effect); err != nil {
		return err
	}

	e.logger.Info("effect removed", "direction", dir, "effect", effect)

	return nil
}

// Close releases every stage.
func (e *Engine) Close() {
	for _, c := range e.chains {
		c.Close()
	}
}
