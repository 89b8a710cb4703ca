package core

// EnsureLen returns buf resized to n, reallocating only when the capacity
// is too small.
func EnsureLen(buf []float32, n int) []float32 {
	if cap(buf) < n {
		return make([]float32, n)
	}

	return buf[:n]
}

// CopyStereo copies both channels of a block.
func CopyStereo(dstL, dstR, srcL, srcR []float32) {
	copy(dstL, srcL)
	copy(dstR, srcR)
}
