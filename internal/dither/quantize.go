// Package dither implements the quantization stages: plain thresholding,
// noise and mask based dithering, matrix error diffusion and Riemersma
// dithering along a Hilbert curve.
//
// Every function works channel by channel on float buffers with values
// nominally in [0,1], so the same code serves grayscale and RGB input.
// Inputs are never modified; each call returns a new buffer.
package dither

import "math"

// Quantizer maps a value to one of a fixed set of output levels.
type Quantizer interface {
	Quantize(v float32) float32
	// Step is the distance between adjacent output levels. Noise and mask
	// stages scale their bias by it.
	Step() float32
}

const (
	MinLevels = 2
	MaxLevels = 255
)

// EvenPalette quantizes to n evenly spaced levels in [0,1].
type EvenPalette struct {
	n int
}

// NewEvenPalette clamps n to [MinLevels, MaxLevels].
func NewEvenPalette(n int) EvenPalette {
	return EvenPalette{n: min(max(n, MinLevels), MaxLevels)}
}

// Levels returns the number of output levels.
func (p EvenPalette) Levels() int { return p.n }

func (p EvenPalette) Quantize(v float32) float32 {
	d := float64(p.n - 1)
	q := math.Round(float64(v)*d) / d
	return float32(min(max(q, 0), 1))
}

func (p EvenPalette) Step() float32 { return 1 / float32(p.n-1) }

// Cutoff is a binary quantizer: 1 above the cutoff, 0 otherwise.
type Cutoff float32

func (c Cutoff) Quantize(v float32) float32 {
	if v > float32(c) {
		return 1
	}
	return 0
}

func (c Cutoff) Step() float32 { return 1 }

// FloorPalette quantizes to n levels by truncation, floor(v·n)/(n-1),
// clamped to [0,1]. It brightens midtones compared with EvenPalette.
type FloorPalette struct {
	n int
}

func NewFloorPalette(n int) FloorPalette {
	return FloorPalette{n: min(max(n, MinLevels), MaxLevels)}
}

func (p FloorPalette) Quantize(v float32) float32 {
	q := math.Floor(float64(v)*float64(p.n)) / float64(p.n-1)
	return float32(min(max(q, 0), 1))
}

func (p FloorPalette) Step() float32 { return 1 / float32(p.n-1) }
