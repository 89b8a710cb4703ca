// Package spectrum implements a power spectrum analyzer that taps the
// output of an effect chain.
//
// The audio side only copies the mono mix into a ring buffer under TryLock
// and skips the block when a reader holds the lock. The FFT runs on the
// reader's goroutine in Snapshot.
package spectrum

import (
	"fmt"
	"math"
	"math/bits"
	"sync"

	algofft "github.com/MeKo-Christian/algo-fft"
	"github.com/cwbudde/algo-vecmath"
	"gonum.org/v1/gonum/dsp/window"

	"github.com/cwbudde/algo-fxhost/dsp/core"
)

// DefaultSize is the FFT length used by New when size is 0.
const DefaultSize = 4096

// Spectrum is one power spectrum in dBFS, bins 0..size/2.
type Spectrum struct {
	SampleRate float64   `json:"sample_rate"`
	BinHz      float64   `json:"bin_hz"`
	DB         []float64 `json:"db"`
}

// At returns the level at freq, linearly interpolated between bins.
func (s Spectrum) At(freq float64) float64 {
	last := len(s.DB) - 1
	if last < 1 || s.BinHz <= 0 {
		return core.SilenceDB
	}

	bin := core.Clamp(freq/s.BinHz, 0, float64(last))

	base := int(bin)
	if base >= last {
		return s.DB[last]
	}

	frac := bin - float64(base)

	return s.DB[base] + frac*(s.DB[base+1]-s.DB[base])
}

// Peak returns the frequency and level of the loudest bin above DC.
func (s Spectrum) Peak() (freq, db float64) {
	db = core.SilenceDB

	for i := 1; i < len(s.DB); i++ {
		if s.DB[i] > db {
			db = s.DB[i]
			freq = float64(i) * s.BinHz
		}
	}

	return freq, db
}

// Analyzer accumulates samples and computes spectra on demand.
type Analyzer struct {
	size int

	mu     sync.Mutex
	ring   []float64
	pos    int
	filled int
	rate   float64

	snapMu  sync.Mutex
	plan    *algofft.Plan[complex128]
	window  []float64
	norm    float64
	frame   []float64
	in, out []complex128
	re, im  []float64
	power   []float64
}

// New returns an analyzer with an FFT of size samples. size must be a power
// of two of at least 64.
func New(size int) (*Analyzer, error) {
	if size == 0 {
		size = DefaultSize
	}

	if size < 64 || bits.OnesCount(uint(size)) != 1 {
		return nil, fmt.Errorf("spectrum: size %d is not a power of two >= 64", size)
	}

	plan, err := algofft.NewPlan64(size)
	if err != nil {
		return nil, fmt.Errorf("spectrum: fft plan: %w", err)
	}

	win := make([]float64, size)
	for i := range win {
		win[i] = 1
	}

	win = window.Hann(win)

	var sum float64
	for _, w := range win {
		sum += w
	}

	bins := size/2 + 1

	return &Analyzer{
		size:   size,
		ring:   make([]float64, size),
		plan:   plan,
		window: win,
		norm:   sum / 2,
		frame:  make([]float64, size),
		in:     make([]complex128, size),
		out:    make([]complex128, size),
		re:     make([]float64, bins),
		im:     make([]float64, bins),
		power:  make([]float64, bins),
	}, nil
}

// Size returns the FFT length.
func (a *Analyzer) Size() int { return a.size }

// Setup records the sample rate and clears the history.
func (a *Analyzer) Setup(sampleRate float64, _ int) error {
	if sampleRate <= 0 {
		return fmt.Errorf("spectrum: invalid sample rate %v", sampleRate)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.rate = sampleRate
	a.pos = 0
	a.filled = 0
	clear(a.ring)

	return nil
}

// Process appends the mono mix of left and right. The block is dropped
// when a snapshot is copying the history.
func (a *Analyzer) Process(left, right []float32) {
	if !a.mu.TryLock() {
		return
	}
	defer a.mu.Unlock()

	n := min(len(left), len(right))
	for i := range n {
		a.ring[a.pos] = 0.5 * (float64(left[i]) + float64(right[i]))

		a.pos++
		if a.pos == a.size {
			a.pos = 0
		}
	}

	a.filled = min(a.filled+n, a.size)
}

// Snapshot computes the spectrum of the most recent size samples. It
// reports false until enough samples have been seen.
func (a *Analyzer) Snapshot() (Spectrum, bool) {
	a.snapMu.Lock()
	defer a.snapMu.Unlock()

	a.mu.Lock()
	if a.filled < a.size || a.rate <= 0 {
		a.mu.Unlock()
		return Spectrum{}, false
	}

	rate := a.rate
	n := copy(a.frame, a.ring[a.pos:])
	copy(a.frame[n:], a.ring[:a.pos])
	a.mu.Unlock()

	vecmath.MulBlockInPlace(a.frame, a.window)

	for i, x := range a.frame {
		a.in[i] = complex(x, 0)
	}

	if err := a.plan.Forward(a.out, a.in); err != nil {
		return Spectrum{}, false
	}

	for i := range a.re {
		a.re[i] = real(a.out[i]) / a.norm
		a.im[i] = imag(a.out[i]) / a.norm
	}

	vecmath.Power(a.power, a.re, a.im)

	db := make([]float64, len(a.power))
	for i, p := range a.power {
		db[i] = powerToDB(p)
	}

	return Spectrum{
		SampleRate: rate,
		BinHz:      rate / float64(a.size),
		DB:         db,
	}, true
}

func powerToDB(p float64) float64 {
	if !(p > 0) {
		return core.SilenceDB
	}

	return math.Max(10*math.Log10(p), core.SilenceDB)
}
