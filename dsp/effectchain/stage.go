package effectchain

import (
	"errors"
	"math"
	"sync"
	"sync/atomic"

	"github.com/cwbudde/algo-fxhost/dsp/core"
	"github.com/cwbudde/algo-fxhost/dsp/plugin"
	"github.com/cwbudde/algo-fxhost/internal/simd"
	"github.com/cwbudde/algo-fxhost/measure/level"
	"github.com/cwbudde/algo-fxhost/settings"
)

// Scaler multiplies buf by g in place.
type Scaler func(buf []float32, g float32)

// StageOption configures a Stage.
type StageOption func(*Stage)

// WithScaler replaces the gain multiply. The default is simd.Scale.
func WithScaler(fn Scaler) StageOption {
	return func(s *Stage) {
		if fn != nil {
			s.scale = fn
		}
	}
}

// WithMeterBacklog sets how many level readings may queue before new ones
// are dropped.
func WithMeterBacklog(n int) StageOption {
	return func(s *Stage) { s.meter = level.NewMeter(n) }
}

// Stage wraps one plugin.Host with gain staging, bypass and peak metering.
//
// Process is the audio path and is lock free. Everything else is control
// path.
type Stage struct {
	name  string
	host  *plugin.Host
	scale Scaler
	meter *level.Meter

	bypass  atomic.Bool
	post    atomic.Bool
	notify  atomic.Bool
	inGain  atomic.Uint32
	outGain atomic.Uint32

	mu      sync.Mutex
	cancels []func()
	views   []*settings.View
}

// NewStage wraps host. Gains start at unity and metering is off.
func NewStage(name string, host *plugin.Host, opts ...StageOption) *Stage {
	s := &Stage{
		name:  name,
		host:  host,
		scale: simd.Scale,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.meter == nil {
		s.meter = level.NewMeter(1)
	}

	s.SetInputGain(1)
	s.SetOutputGain(1)

	return s
}

// Name returns the effect name of the stage.
func (s *Stage) Name() string { return s.name }

// Host returns the wrapped plugin host.
func (s *Stage) Host() *plugin.Host { return s.host }

// Process runs one block:
//   - passthrough when the engine is unavailable, not ready or bypassed, or
//     when the block length differs from the configured size
//   - input gain, skipped at exactly 1
//   - engine run
//   - output gain, skipped at exactly 1
//   - peak metering when enabled
//
// The input slices are scaled in place.
func (s *Stage) Process(inL, inR, outL, outR []float32) {
	if s.bypass.Load() || !s.host.Available() || !s.host.Ready() {
		core.CopyStereo(outL, outR, inL, inR)
		return
	}

	n := s.host.BlockSize()
	if len(inL) != n || len(inR) != n || len(outL) != n || len(outR) != n {
		core.CopyStereo(outL, outR, inL, inR)
		return
	}

	if g := s.InputGain(); g != 1 {
		s.scale(inL, g)
		s.scale(inR, g)
	}

	if !s.host.Run(inL, inR, outL, outR) {
		core.CopyStereo(outL, outR, inL, inR)
		return
	}

	if g := s.OutputGain(); g != 1 {
		s.scale(outL, g)
		s.scale(outR, g)
	}

	if s.post.Load() {
		l := s.meter.Update(inL, inR, outL, outR)
		if s.notify.Load() {
			s.meter.Notify(l)
		}
	}
}

// Setup configures the engine for rate and block size. A missing engine is
// not an error: the stage stays in passthrough.
func (s *Stage) Setup(sampleRate float64, blockSize int) error {
	err := s.host.Configure(sampleRate, blockSize)
	if errors.Is(err, plugin.ErrUnavailable) {
		return nil
	}

	return err
}

// LatencySeconds returns the latency introduced by the engine.
func (s *Stage) LatencySeconds() float64 {
	if s.bypass.Load() {
		return 0
	}

	return s.host.LatencySeconds()
}

// SetBypass forces passthrough regardless of engine state.
func (s *Stage) SetBypass(v bool) { s.bypass.Store(v) }

// Bypassed reports the bypass flag.
func (s *Stage) Bypassed() bool { return s.bypass.Load() }

// SetMetering enables peak measurement and, with notify, forwarding of
// each reading to Levels.
func (s *Stage) SetMetering(post, notify bool) {
	s.post.Store(post)
	s.notify.Store(post && notify)
}

// Levels returns the notification channel of the stage meter.
func (s *Stage) Levels() <-chan level.Levels { return s.meter.C() }

// LatestLevels returns the most recent reading.
func (s *Stage) LatestLevels() level.Levels { return s.meter.Latest() }

// SetInputGain sets the linear pre-engine multiplier.
func (s *Stage) SetInputGain(g float32) { s.inGain.Store(math.Float32bits(g)) }

// SetOutputGain sets the linear post-engine multiplier.
func (s *Stage) SetOutputGain(g float32) { s.outGain.Store(math.Float32bits(g)) }

// InputGain returns the linear pre-engine multiplier.
func (s *Stage) InputGain() float32 { return math.Float32frombits(s.inGain.Load()) }

// OutputGain returns the linear post-engine multiplier.
func (s *Stage) OutputGain() float32 { return math.Float32frombits(s.outGain.Load()) }

// BindGains follows the input-gain and output-gain keys of store, both in
// dB, and keeps the linear multipliers current.
func (s *Stage) BindGains(store settings.Store) error {
	if err := s.bindGain(store, settings.KeyInputGain, s.SetInputGain); err != nil {
		return err
	}

	return s.bindGain(store, settings.KeyOutputGain, s.SetOutputGain)
}

func (s *Stage) bindGain(store settings.Store, key string, set func(float32)) error {
	apply := func() error {
		db, err := store.GetDouble(key)
		if err != nil {
			return err
		}

		set(float32(core.DBToLinear(db)))

		return nil
	}

	if err := apply(); err != nil {
		return err
	}

	cancel, err := store.OnChange(key, func() { _ = apply() })
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.cancels = append(s.cancels, cancel)
	s.mu.Unlock()

	return nil
}

// own hands v to the stage; Close releases it.
func (s *Stage) own(v *settings.View) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.views = append(s.views, v)
}

// Close releases the engine, the gain observers and every owned view.
func (s *Stage) Close() {
	s.host.Close()

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, cancel := range s.cancels {
		cancel()
	}

	for _, v := range s.views {
		v.Close()
	}

	s.cancels = nil
	s.views = nil
}
