package effectchain

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/cwbudde/algo-fxhost/dsp/plugin"
	"github.com/cwbudde/algo-fxhost/settings"
)

// Env is what a factory needs to build a stage for one direction.
type Env struct {
	Direction settings.Direction
	Backend   *settings.Backend
	Loader    plugin.Loader
	Logger    *slog.Logger
}

func (e Env) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}

	return slog.Default()
}

// Factory builds one Stage: it registers the effect schema, creates the
// host and binds the engine ports to the store.
type Factory func(env Env) (*Stage, error)

// Registry maps effect names to the factories that build their stages.
// It is filled once at startup and read afterwards.
type Registry struct {
	factories map[string]Factory
}

// ErrEffectRegistered is returned when an effect name already has a factory.
var ErrEffectRegistered = errors.New("effectchain: effect already registered")

// NewRegistry creates a registry without any effect.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register makes effect buildable by Build and BuildChain.
func (r *Registry) Register(effect string, factory Factory) error {
	switch {
	case effect == "":
		return errors.New("effectchain: empty effect name")
	case factory == nil:
		return fmt.Errorf("effectchain: %s: nil stage factory", effect)
	}

	if _, ok := r.factories[effect]; ok {
		return fmt.Errorf("%w: %s", ErrEffectRegistered, effect)
	}

	r.factories[effect] = factory

	return nil
}

// MustRegister registers a built-in effect and panics when the name is
// taken.
func (r *Registry) MustRegister(effect string, factory Factory) {
	if err := r.Register(effect, factory); err != nil {
		panic(err)
	}
}

// Lookup returns the stage factory of effect, or nil for an unknown name.
func (r *Registry) Lookup(effect string) Factory {
	return r.factories[effect]
}

// Names returns the registered effect names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}

	sort.Strings(names)

	return names
}

// Build creates a stage for effect.
func (r *Registry) Build(effect string, env Env) (*Stage, error) {
	f := r.Lookup(effect)
	if f == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEffect, effect)
	}

	if env.Backend == nil {
		return nil, errors.New("effectchain: nil settings backend")
	}

	s, err := f(env)
	if err != nil {
		return nil, fmt.Errorf("effectchain: build %s/%s: %w", env.Direction, effect, err)
	}

	return s, nil
}

// BuildChain creates a chain for env.Direction holding one stage per name,
// in order.
func (r *Registry) BuildChain(env Env, effects []string, opts ...Option) (*Chain, error) {
	c := New(env.Direction, append([]Option{WithLogger(env.Logger)}, opts...)...)

	for _, name := range effects {
		s, err := r.Build(name, env)
		if err != nil {
			c.Close()
			return nil, err
		}

		if err := c.Append(s); err != nil {
			s.Close()
			c.Close()

			return nil, err
		}
	}

	return c, nil
}
