package builtin

import (
	"fmt"

	"github.com/cwbudde/algo-fxhost/dsp/filter/biquad"
	"github.com/cwbudde/algo-fxhost/dsp/plugin"
	"github.com/cwbudde/algo-fxhost/settings"
)

// Filter control ports. PortResonance takes a linear Q.
const (
	PortFilterMode = "mode"
	PortFrequency  = "frequency"
	PortResonance  = "resonance"
)

// filterEngine is a stereo resonant filter. The mode label selects the
// response and the number of cascaded sections.
type filterEngine struct {
	rate      float64
	mode      int
	frequency float64
	resonance float64
	dirty     bool

	sections [2]biquad.Cascade
	ports    []plugin.Port
}

// NewFilter creates a filter engine.
func NewFilter(sampleRate float64) (plugin.Instance, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("builtin: filter: invalid sample rate %v", sampleRate)
	}

	return &filterEngine{
		rate:      sampleRate,
		frequency: 2000,
		resonance: 0.7071,
		dirty:     true,
		ports: []plugin.Port{
			{Name: PortFilterMode, Max: float64(len(settings.FilterModes) - 1), Labels: settings.FilterModes},
			{Name: PortFrequency, Min: 10, Max: 20000, Default: 2000},
			{Name: PortResonance, Min: 0.1, Max: 31.6, Default: 0.7071},
		},
	}, nil
}

func (f *filterEngine) Ports() []plugin.Port { return f.ports }

func (f *filterEngine) Latency() int { return 0 }

func (f *filterEngine) SetControl(port string, v float64) error {
	switch port {
	case PortFilterMode:
		f.mode = labelIndex(v, settings.FilterModes)
	case PortFrequency:
		f.frequency = v
	case PortResonance:
		f.resonance = v
	default:
		return unknownPort(port)
	}

	f.dirty = true

	return nil
}

// filterResponse maps a mode index to a response and section count. Modes
// come in groups of three with rising order.
func filterResponse(mode int) (biquad.Kind, int) {
	kinds := [...]biquad.Kind{biquad.Lowpass, biquad.Highpass, biquad.Bandpass, biquad.Notch}

	return kinds[(mode/3)%len(kinds)], mode%3 + 1
}

func (f *filterEngine) Run(inL, inR, outL, outR []float32) {
	if f.dirty {
		f.dirty = false

		kind, n := filterResponse(f.mode)
		c := biquad.Design(kind, f.frequency, 0, f.resonance, f.rate)

		for i := range f.sections {
			f.sections[i].Set(c, n)
		}
	}

	copy(outL, inL)
	copy(outR, inR)

	f.sections[0].ProcessBlock(outL)
	f.sections[1].ProcessBlock(outR)
}
