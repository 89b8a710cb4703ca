package simd

import "github.com/tphakala/simd/f32"

// Scale multiplies buf by g in place: buf[i] *= g.
func Scale(buf []float32, g float32) {
	if len(buf) == 0 {
		return
	}

	f32.Scale(buf, buf, g)
}

// PeakAbs returns the largest absolute sample value in buf, 0 for an empty
// slice.
func PeakAbs(buf []float32) float32 {
	if len(buf) == 0 {
		return 0
	}

	return max(f32.Max(buf), -f32.Min(buf), 0)
}
