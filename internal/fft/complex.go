package fft

import "math"

// Complex is a complex number in polar form. Addition goes through the
// Cartesian form; multiplication composes magnitudes and angles directly.
type Complex struct {
	R   float64
	Phi float64
}

// FromEuler builds r·e^(i·phi).
func FromEuler(r, phi float64) Complex {
	return Complex{R: r, Phi: phi}
}

// FromCartesian converts re + i·im to polar form.
func FromCartesian(re, im float64) Complex {
	return Complex{R: math.Hypot(re, im), Phi: math.Atan2(im, re)}
}

// Cartesian returns the real and imaginary parts.
func (c Complex) Cartesian() (re, im float64) {
	sin, cos := math.Sincos(c.Phi)
	return c.R * cos, c.R * sin
}

// Add returns c + o.
func (c Complex) Add(o Complex) Complex {
	re1, im1 := c.Cartesian()
	re2, im2 := o.Cartesian()
	return FromCartesian(re1+re2, im1+im2)
}

// Sub returns c - o.
func (c Complex) Sub(o Complex) Complex {
	re1, im1 := c.Cartesian()
	re2, im2 := o.Cartesian()
	return FromCartesian(re1-re2, im1-im2)
}

// Mul returns c · o.
func (c Complex) Mul(o Complex) Complex {
	return Complex{R: c.R * o.R, Phi: c.Phi + o.Phi}
}
