// Package level implements block peak metering for effect stages.
//
// Peaks are reported in dBFS and floored at core.SilenceDB so an all-zero
// block reads -120 dB instead of -Inf. Update and Notify are safe to call
// from the audio goroutine: they neither allocate nor block.
package level

import (
	"math"
	"sync/atomic"

	"github.com/cwbudde/algo-fxhost/dsp/core"
	"github.com/cwbudde/algo-fxhost/internal/simd"
)

// Levels is one set of stereo input/output peak readings in dBFS.
type Levels struct {
	InputLeft   float64 `json:"input_left"`
	InputRight  float64 `json:"input_right"`
	OutputLeft  float64 `json:"output_left"`
	OutputRight float64 `json:"output_right"`
}

// Silent returns Levels with every channel at the silence floor.
func Silent() Levels {
	return Levels{
		InputLeft:   core.SilenceDB,
		InputRight:  core.SilenceDB,
		OutputLeft:  core.SilenceDB,
		OutputRight: core.SilenceDB,
	}
}

// PeakDB returns the peak of buf in dBFS.
func PeakDB(buf []float32) float64 {
	return core.LinearToDB(float64(simd.PeakAbs(buf)))
}

// Meter keeps the latest Levels and forwards them to a subscriber.
type Meter struct {
	latest [4]atomic.Uint64
	ch     chan Levels
}

// NewMeter returns a meter whose notification channel buffers up to
// backlog readings. Readings are dropped while the buffer is full.
func NewMeter(backlog int) *Meter {
	if backlog < 1 {
		backlog = 1
	}

	m := &Meter{ch: make(chan Levels, backlog)}
	m.store(Silent())

	return m
}

// Update measures the four spans, stores and returns the result.
func (m *Meter) Update(inL, inR, outL, outR []float32) Levels {
	l := Levels{
		InputLeft:   PeakDB(inL),
		InputRight:  PeakDB(inR),
		OutputLeft:  PeakDB(outL),
		OutputRight: PeakDB(outR),
	}
	m.store(l)

	return l
}

// Notify offers l to the subscriber without blocking.
func (m *Meter) Notify(l Levels) bool {
	select {
	case m.ch <- l:
		return true
	default:
		return false
	}
}

// C returns the notification channel.
func (m *Meter) C() <-chan Levels { return m.ch }

// Latest returns the most recent reading.
func (m *Meter) Latest() Levels {
	return Levels{
		InputLeft:   math.Float64frombits(m.latest[0].Load()),
		InputRight:  math.Float64frombits(m.latest[1].Load()),
		OutputLeft:  math.Float64frombits(m.latest[2].Load()),
		OutputRight: math.Float64frombits(m.latest[3].Load()),
	}
}

// Reset returns the stored reading to the silence floor.
func (m *Meter) Reset() { m.store(Silent()) }

func (m *Meter) store(l Levels) {
	m.latest[0].Store(math.Float64bits(l.InputLeft))
	m.latest[1].Store(math.Float64bits(l.InputRight))
	m.latest[2].Store(math.Float64bits(l.OutputLeft))
	m.latest[3].Store(math.Float64bits(l.OutputRight))
}
