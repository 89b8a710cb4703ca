package builtin

import (
	"fmt"

	"github.com/cwbudde/algo-fxhost/dsp/filter/biquad"
	"github.com/cwbudde/algo-fxhost/dsp/plugin"
	"github.com/cwbudde/algo-fxhost/settings"
)

// Equalizer control ports. Band ports are named by BandPort.
const (
	PortMode          = "mode"
	PortNumBands      = "num-bands"
	PortSplitChannels = "split-channels"
)

// BandPort names the control port of one band field,
// e.g. BandPort(settings.Left, 3, "gain") == "left/band3-gain".
func BandPort(ch settings.Channel, n int, field string) string {
	return string(ch) + "/" + settings.BandKey(n, field)
}

// band type label indices in settings.BandTypes
const (
	bandOff = iota
	bandBell
	bandHiPass
	bandHiShelf
	bandLoPass
	bandLoShelf
	bandNotch
	bandResonance
	bandAllpass
	bandBandpass
)

type bandParams struct {
	typ   int
	slope int
	solo  bool
	mute  bool
	gain  float64
	freq  float64
	q     float64
}

type bandID struct {
	ch    int
	n     int
	field string
}

// equalizer runs up to settings.MaxBands cascaded biquad bands per channel.
// Band arrays have fixed capacity; num-bands is clamped to it, so a stale
// or torn band count never indexes past the end.
type equalizer struct {
	rate     float64
	mode     int
	numBands int
	split    bool

	params [2][settings.MaxBands]bandParams
	bands  [2][settings.MaxBands]biquad.Cascade
	dirty  [2][settings.MaxBands]bool

	ports []plugin.Port
	index map[string]bandID
}

// NewEqualizer creates an equalizer engine.
func NewEqualizer(sampleRate float64) (plugin.Instance, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("builtin: equalizer: invalid sample rate %v", sampleRate)
	}

	e := &equalizer{
		rate:     sampleRate,
		numBands: settings.MaxBands,
		index:    make(map[string]bandID, 2*settings.MaxBands*len(settings.BandFields)),
	}

	e.ports = []plugin.Port{
		{Name: PortMode, Max: float64(len(settings.EqualizerModes) - 1), Labels: settings.EqualizerModes},
		{Name: PortNumBands, Max: settings.MaxBands, Default: settings.MaxBands},
		{Name: PortSplitChannels, Max: 1},
	}

	for ci, ch := range settings.Channels {
		for n := range settings.MaxBands {
			e.params[ci][n] = bandParams{typ: bandBell, freq: 1000, q: 4.36}
			e.dirty[ci][n] = true

			for _, f := range settings.BandFields {
				name := BandPort(ch, n, f)
				e.index[name] = bandID{ch: ci, n: n, field: f}
				e.ports = append(e.ports, bandPortInfo(name, f))
			}
		}
	}

	return e, nil
}

func bandPortInfo(name, field string) plugin.Port {
	switch field {
	case settings.FieldType:
		return plugin.Port{Name: name, Max: float64(len(settings.BandTypes) - 1), Default: bandBell, Labels: settings.BandTypes}
	case settings.FieldMode:
		return plugin.Port{Name: name, Max: float64(len(settings.BandModes) - 1), Labels: settings.BandModes}
	case settings.FieldSlope:
		return plugin.Port{Name: name, Max: float64(len(settings.BandSlopes) - 1), Labels: settings.BandSlopes}
	case settings.FieldSolo, settings.FieldMute:
		return plugin.Port{Name: name, Max: 1}
	case settings.FieldGain:
		return plugin.Port{Name: name, Min: -36, Max: 36}
	case settings.FieldFrequency:
		return plugin.Port{Name: name, Min: 10, Max: 24000, Default: 1000}
	default:
		return plugin.Port{Name: name, Min: 0.1, Max: 100, Default: 4.36}
	}
}

func (e *equalizer) Ports() []plugin.Port { return e.ports }

func (e *equalizer) Latency() int { return 0 }

func (e *equalizer) SetControl(port string, v float64) error {
	switch port {
	case PortMode:
		// every mode is rendered with IIR sections
		e.mode = labelIndex(v, settings.EqualizerModes)
		return nil
	case PortNumBands:
		e.numBands = min(max(int(v), 0), settings.MaxBands)
		return nil
	case PortSplitChannels:
		split := v != 0
		if split != e.split {
			e.split = split
			e.markAll()
		}

		return nil
	}

	id, ok := e.index[port]
	if !ok {
		return unknownPort(port)
	}

	p := &e.params[id.ch][id.n]

	switch id.field {
	case settings.FieldType:
		p.typ = labelIndex(v, settings.BandTypes)
	case settings.FieldMode:
		// band filter topology is not modelled
		return nil
	case settings.FieldSlope:
		p.slope = labelIndex(v, settings.BandSlopes)
	case settings.FieldSolo:
		p.solo = v != 0
	case settings.FieldMute:
		p.mute = v != 0
	case settings.FieldGain:
		p.gain = v
	case settings.FieldFrequency:
		p.freq = v
	case settings.FieldQ:
		p.q = v
	}

	e.dirty[id.ch][id.n] = true
	if id.ch == 0 && !e.split {
		e.dirty[1][id.n] = true
	}

	return nil
}

func (e *equalizer) markAll() {
	for ci := range e.dirty {
		for n := range e.dirty[ci] {
			e.dirty[ci][n] = true
		}
	}
}

// source returns the parameters channel ci actually uses.
func (e *equalizer) source(ci, n int) *bandParams {
	if ci == 1 && !e.split {
		return &e.params[0][n]
	}

	return &e.params[ci][n]
}

func (e *equalizer) Run(inL, inR, outL, outR []float32) {
	copy(outL, inL)
	copy(outR, inR)

	e.runChannel(0, outL)
	e.runChannel(1, outR)
}

func (e *equalizer) runChannel(ci int, buf []float32) {
	n := e.numBands

	solo := false

	for i := range n {
		if e.source(ci, i).solo {
			solo = true
			break
		}
	}

	for i := range n {
		p := e.source(ci, i)

		if e.dirty[ci][i] {
			e.dirty[ci][i] = false
			e.design(ci, i, p)
		}

		if p.typ == bandOff || p.mute || (solo && !p.solo) {
			continue
		}

		e.bands[ci][i].ProcessBlock(buf)
	}
}

func (e *equalizer) design(ci, i int, p *bandParams) {
	var kind biquad.Kind

	switch p.typ {
	case bandBell, bandResonance:
		kind = biquad.Peak
	case bandHiPass:
		kind = biquad.Highpass
	case bandHiShelf:
		kind = biquad.HighShelf
	case bandLoPass:
		kind = biquad.Lowpass
	case bandLoShelf:
		kind = biquad.LowShelf
	case bandNotch:
		kind = biquad.Notch
	case bandAllpass:
		kind = biquad.Allpass
	case bandBandpass:
		kind = biquad.Bandpass
	default:
		e.bands[ci][i].Set(biquad.Identity, 0)
		return
	}

	stages := p.slope + 1
	gain := p.gain / float64(stages)

	e.bands[ci][i].Set(biquad.Design(kind, p.freq, gain, p.q, e.rate), stages)
}
