// Package biquad implements second-order IIR sections for the built-in
// engines.
//
// Coefficients are designed in float64 and state is kept in float64; the
// audio samples themselves are float32.
package biquad

// Coefficients holds the transfer function coefficients for a single
// second-order section. a0 is normalized to 1 and not stored.
//
// The sign convention follows Direct Form II Transposed:
//
//	y  = B0*x + d0
//	d0 = B1*x - A1*y + d1
//	d1 = B2*x - A2*y
type Coefficients struct {
	B0, B1, B2 float64
	A1, A2     float64
}

// Identity passes the input unchanged.
var Identity = Coefficients{B0: 1}

// Section is a single biquad filter with coefficients and internal state.
type Section struct {
	Coefficients

	d0, d1 float64
}

// ProcessSample filters one input sample and returns the output.
func (s *Section) ProcessSample(x float64) float64 {
	y := s.B0*x + s.d0
	s.d0 = s.B1*x - s.A1*y + s.d1
	s.d1 = s.B2*x - s.A2*y

	return y
}

// ProcessBlock filters buf in place. Zero-alloc.
func (s *Section) ProcessBlock(buf []float32) {
	b0, b1, b2 := s.B0, s.B1, s.B2
	a1, a2 := s.A1, s.A2
	d0, d1 := s.d0, s.d1

	for i, in := range buf {
		x := float64(in)
		y := b0*x + d0
		d0 = b1*x - a1*y + d1
		d1 = b2*x - a2*y
		buf[i] = float32(y)
	}

	s.d0, s.d1 = flushDenormal(d0), flushDenormal(d1)
}

// SetCoefficients replaces the coefficients and keeps the state, so a
// parameter sweep does not click.
func (s *Section) SetCoefficients(c Coefficients) {
	s.Coefficients = c
}

// Reset clears the delay line to zero.
func (s *Section) Reset() {
	s.d0, s.d1 = 0, 0
}

// Cascade is a fixed-capacity series of sections. Only the first N run.
type Cascade struct {
	Sections [4]Section
	N        int
}

// Set loads c into the first n sections, n clamped to [0, 4].
func (c *Cascade) Set(coeffs Coefficients, n int) {
	n = min(max(n, 0), len(c.Sections))
	for i := range n {
		c.Sections[i].SetCoefficients(coeffs)
	}

	if n != c.N {
		for i := n; i < len(c.Sections); i++ {
			c.Sections[i].Reset()
		}
	}

	c.N = n
}

// ProcessBlock runs buf through the active sections in order.
func (c *Cascade) ProcessBlock(buf []float32) {
	for i := range c.N {
		c.Sections[i].ProcessBlock(buf)
	}
}

// Reset clears every section.
func (c *Cascade) Reset() {
	for i := range c.Sections {
		c.Sections[i].Reset()
	}
}

func flushDenormal(x float64) float64 {
	const epsilon = 1e-30
	if x > -epsilon && x < epsilon {
		return 0
	}

	return x
}
