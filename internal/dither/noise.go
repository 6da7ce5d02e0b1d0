package dither

import (
	"fmt"
	"math/rand/v2"

	"github.com/rmitchellscott/ditherworks/internal/pixbuf"
)

// Threshold quantizes every value directly.
func Threshold(img *pixbuf.Buffer[float32], q Quantizer) *pixbuf.Buffer[float32] {
	return img.Copy().MapSelf(func(v float32, _ pixbuf.Coord) float32 {
		return q.Quantize(v)
	})
}

// Random adds uniform noise in [-0.5, 0.5)·step before quantizing.
func Random(img *pixbuf.Buffer[float32], q Quantizer, rng *rand.Rand) *pixbuf.Buffer[float32] {
	step := q.Step()
	return img.Copy().MapSelf(func(v float32, _ pixbuf.Coord) float32 {
		return q.Quantize(v + (rng.Float32()-0.5)*step)
	})
}

// Ordered adds the wrap-addressed Bayer threshold, shifted to [-0.5, 0.5)
// and scaled by one step, before quantizing. mask must hold normalized
// values in [0,1).
func Ordered(img *pixbuf.Buffer[float32], mask *pixbuf.Gray, q Quantizer) (*pixbuf.Buffer[float32], error) {
	return withMask(img, mask, q)
}

// BlueNoise is Ordered with a blue-noise mask.
func BlueNoise(img *pixbuf.Buffer[float32], mask *pixbuf.Gray, q Quantizer) (*pixbuf.Buffer[float32], error) {
	return withMask(img, mask, q)
}

func withMask(img *pixbuf.Buffer[float32], mask *pixbuf.Gray, q Quantizer) (*pixbuf.Buffer[float32], error) {
	if mask == nil || mask.Width == 0 || mask.Height == 0 {
		return nil, fmt.Errorf("%w: dither mask is empty", pixbuf.ErrPrecondition)
	}
	step := q.Step()
	return img.Copy().MapSelf(func(v float32, c pixbuf.Coord) float32 {
		bias := mask.ValueAt(c.X, c.Y, 0, pixbuf.Wrap) - 0.5
		return q.Quantize(v + bias*step)
	}), nil
}
