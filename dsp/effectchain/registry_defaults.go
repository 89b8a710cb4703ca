package effectchain

import (
	"github.com/cwbudde/algo-fxhost/dsp/plugin"
	"github.com/cwbudde/algo-fxhost/dsp/plugin/builtin"
	"github.com/cwbudde/algo-fxhost/settings"
)

// DefaultRegistry returns a Registry with the equalizer, filter and limiter
// stages. Each binds the store keys of its schema to the ports of the
// matching built-in engine.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	r.MustRegister(settings.Equalizer, newEqualizerStage)
	r.MustRegister(settings.Filter, newFilterStage)
	r.MustRegister(settings.Limiter, newLimiterStage)

	return r
}

// stageBuilder collects the host, stage and first error of a factory so
// the factories read as a flat list of bindings.
type stageBuilder struct {
	stage *Stage
	host  *plugin.Host
	err   error
}

func newStageBuilder(env Env, effect, uri string) *stageBuilder {
	b := &stageBuilder{}

	b.err = settings.RegisterEffect(env.Backend, env.Direction, effect)
	b.host = plugin.NewHost(uri, env.Loader, plugin.WithLogger(env.logger()))
	b.stage = NewStage(effect, b.host)

	return b
}

func (b *stageBuilder) open(backend *settings.Backend, ns string) *settings.View {
	v := backend.Open(ns)
	b.stage.own(v)

	return v
}

func (b *stageBuilder) do(fn func() error) {
	if b.err == nil {
		b.err = fn()
	}
}

func (b *stageBuilder) bind(bind func(string, settings.Store, string) error, port string, s settings.Store, key string) {
	b.do(func() error { return bind(port, s, key) })
}

func (b *stageBuilder) finish() (*Stage, error) {
	if b.err != nil {
		b.stage.Close()
		return nil, b.err
	}

	return b.stage, nil
}

func newEqualizerStage(env Env) (*Stage, error) {
	b := newStageBuilder(env, settings.Equalizer, builtin.URIEqualizer)
	if b.err != nil {
		return b.finish()
	}

	h := b.host
	main := b.open(env.Backend, settings.EffectPath(env.Direction, settings.Equalizer))

	b.do(func() error { return b.stage.BindGains(main) })
	b.bind(h.BindEnum, builtin.PortMode, main, settings.KeyMode)
	b.bind(h.BindInt, builtin.PortNumBands, main, settings.KeyNumBands)
	b.bind(h.BindBool, builtin.PortSplitChannels, main, settings.KeySplitChannels)

	for _, ch := range settings.Channels {
		v := b.open(env.Backend, settings.ChannelPath(env.Direction, settings.Equalizer, ch))

		for n := range settings.MaxBands {
			for _, f := range settings.BandFields {
				port := builtin.BandPort(ch, n, f)
				key := settings.BandKey(n, f)

				switch f {
				case settings.FieldType, settings.FieldMode, settings.FieldSlope:
					b.bind(h.BindEnum, port, v, key)
				case settings.FieldSolo, settings.FieldMute:
					b.bind(h.BindBool, port, v, key)
				default:
					b.bind(h.BindDouble, port, v, key)
				}
			}
		}
	}

	return b.finish()
}

func newFilterStage(env Env) (*Stage, error) {
	b := newStageBuilder(env, settings.Filter, builtin.URIFilter)
	if b.err != nil {
		return b.finish()
	}

	h := b.host
	main := b.open(env.Backend, settings.EffectPath(env.Direction, settings.Filter))

	b.do(func() error { return b.stage.BindGains(main) })
	b.bind(h.BindEnum, builtin.PortFilterMode, main, settings.KeyMode)
	b.bind(h.BindDouble, builtin.PortFrequency, main, settings.KeyFrequency)
	b.bind(h.BindDoubleDB, builtin.PortResonance, main, settings.KeyResonance)

	return b.finish()
}

func newLimiterStage(env Env) (*Stage, error) {
	b := newStageBuilder(env, settings.Limiter, builtin.URILimiter)
	if b.err != nil {
		return b.finish()
	}

	h := b.host
	main := b.open(env.Backend, settings.EffectPath(env.Direction, settings.Limiter))

	b.do(func() error { return b.stage.BindGains(main) })
	b.bind(h.BindDouble, builtin.PortLookahead, main, settings.KeyLookahead)
	b.bind(h.BindDoubleDB, builtin.PortThreshold, main, settings.KeyThreshold)
	b.bind(h.BindDouble, builtin.PortRelease, main, settings.KeyRelease)

	return b.finish()
}
