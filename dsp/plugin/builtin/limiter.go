package builtin

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/cwbudde/algo-fxhost/dsp/core"
	"github.com/cwbudde/algo-fxhost/dsp/plugin"
)

// Limiter control ports. PortThreshold takes a linear amplitude.
const (
	PortLookahead = "lookahead"
	PortThreshold = "threshold"
	PortRelease   = "release"
)

// MaxLookaheadMs bounds the lookahead delay line.
const MaxLookaheadMs = 20.0

// limiter is a stereo-linked peak limiter. The signal is delayed by the
// lookahead; the gain follows the minimum required gain over the lookahead
// window, attacking instantly and releasing exponentially, so a delayed
// sample never leaves above the threshold.
type limiter struct {
	rate      float64
	threshold float64
	coef      float64

	delay atomic.Int64
	bufL  []float32
	bufR  []float32
	pos   int
	env   float64

	// monotonic queue of (sample index, required gain) over the window
	qIdx  []int64
	qGain []float64
	qHead int
	qLen  int
	n     int64

	ports []plugin.Port
}

// NewLimiter creates a limiter engine.
func NewLimiter(sampleRate float64) (plugin.Instance, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("builtin: limiter: invalid sample rate %v", sampleRate)
	}

	size := core.MsToFrames(MaxLookaheadMs, sampleRate) + 1

	l := &limiter{
		rate:      sampleRate,
		threshold: 1,
		env:       1,
		bufL:      make([]float32, size),
		bufR:      make([]float32, size),
		qIdx:      make([]int64, size),
		qGain:     make([]float64, size),
		ports: []plugin.Port{
			{Name: PortLookahead, Max: MaxLookaheadMs, Default: 5},
			{Name: PortThreshold, Min: core.DBToLinear(-60), Max: 1, Default: 1},
			{Name: PortRelease, Min: 1, Max: 1000, Default: 50},
		},
	}
	l.setRelease(50)
	l.delay.Store(int64(core.MsToFrames(5, sampleRate)))

	return l, nil
}

func (l *limiter) setRelease(ms float64) {
	l.coef = 1 - math.Exp(-1000/(max(ms, 1)*l.rate))
}

func (l *limiter) Ports() []plugin.Port { return l.ports }

func (l *limiter) Latency() int { return int(l.delay.Load()) }

func (l *limiter) SetControl(port string, v float64) error {
	switch port {
	case PortLookahead:
		frames := core.MsToFrames(core.Clamp(v, 0, MaxLookaheadMs), l.rate)
		l.delay.Store(int64(min(frames, len(l.bufL)-1)))
	case PortThreshold:
		if v > 0 {
			l.threshold = v
		}
	case PortRelease:
		l.setRelease(v)
	default:
		return unknownPort(port)
	}

	return nil
}

// window pushes the required gain of the newest sample and returns the
// minimum over the last delay+1 samples.
func (l *limiter) window(gain float64, delay int) float64 {
	size := len(l.qIdx)

	for l.qLen > 0 {
		back := (l.qHead + l.qLen - 1) % size
		if l.qGain[back] < gain {
			break
		}

		l.qLen--
	}

	tail := (l.qHead + l.qLen) % size
	l.qIdx[tail] = l.n
	l.qGain[tail] = gain
	l.qLen++

	for l.qIdx[l.qHead] < l.n-int64(delay) {
		l.qHead = (l.qHead + 1) % size
		l.qLen--
	}

	l.n++

	return l.qGain[l.qHead]
}

func (l *limiter) Run(inL, inR, outL, outR []float32) {
	size := len(l.bufL)
	delay := int(l.delay.Load())

	for i := range inL {
		xl, xr := inL[i], inR[i]

		peak := math.Max(math.Abs(float64(xl)), math.Abs(float64(xr)))

		need := 1.0
		if peak > l.threshold {
			need = l.threshold / peak
		}

		want := l.window(need, delay)
		if want < l.env {
			l.env = want
		} else {
			l.env += (want - l.env) * l.coef
		}

		l.bufL[l.pos] = xl
		l.bufR[l.pos] = xr

		rd := l.pos - delay
		if rd < 0 {
			rd += size
		}

		g := float32(l.env)
		outL[i] = l.bufL[rd] * g
		outR[i] = l.bufR[rd] * g

		l.pos++
		if l.pos == size {
			l.pos = 0
		}
	}
}
