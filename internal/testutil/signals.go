// Package testutil holds signal generators and block comparison helpers
// shared by the package tests.
package testutil

import (
	"math"
	"math/rand"
)

// Sine generates a deterministic float32 sine block.
func Sine(freqHz, sampleRate, amplitude float64, length int) []float32 {
	out := make([]float32, length)
	step := 2 * math.Pi * freqHz / sampleRate
	for i := range out {
		out[i] = float32(amplitude * math.Sin(step*float64(i)))
	}
	return out
}

// Noise generates white noise with a fixed seed for reproducibility.
func Noise(seed int64, amplitude float64, length int) []float32 {
	out := make([]float32, length)
	rng := rand.New(rand.NewSource(seed))
	for i := range out {
		out[i] = float32((rng.Float64()*2 - 1) * amplitude)
	}
	return out
}

// Impulse generates a unit impulse at the given position.
func Impulse(length, pos int) []float32 {
	out := make([]float32, length)
	if pos >= 0 && pos < length {
		out[pos] = 1
	}
	return out
}

// DC generates a constant-valued block.
func DC(value float32, length int) []float32 {
	out := make([]float32, length)
	for i := range out {
		out[i] = value
	}
	return out
}

// Clone returns a copy of block.
func Clone(block []float32) []float32 {
	return append([]float32(nil), block...)
}

// RMS returns the root mean square of block, skipping the first skip
// samples to ignore filter transients.
func RMS(block []float32, skip int) float64 {
	if skip >= len(block) {
		return 0
	}
	var sum float64
	for _, x := range block[skip:] {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum / float64(len(block)-skip))
}
