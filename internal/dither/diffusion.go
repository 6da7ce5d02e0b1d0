package dither

import (
	"fmt"

	"github.com/rmitchellscott/ditherworks/internal/pixbuf"
)

// Kernel is an error diffusion matrix. The current pixel sits in the top row
// at column floor((w-1)/2); every weight at or before it in that row must be
// zero so error only flows to pixels not yet visited.
type Kernel struct {
	Name      string
	weights   *pixbuf.Gray
	normalize bool
}

// NewKernel validates weights and wraps them in a Kernel. With normalize set
// the weights are scaled to sum to one before use.
func NewKernel(name string, weights []float32, width, height int, normalize bool) (Kernel, error) {
	w, err := pixbuf.FromData(append([]float32(nil), weights...), width, height, 1)
	if err != nil {
		return Kernel{}, fmt.Errorf("kernel %s: %w", name, err)
	}
	if width == 0 || height == 0 {
		return Kernel{}, fmt.Errorf("%w: kernel %s is empty", pixbuf.ErrPrecondition, name)
	}
	for _, v := range w.Data {
		if v < 0 {
			return Kernel{}, fmt.Errorf("%w: kernel %s has negative weight %v", pixbuf.ErrPrecondition, name, v)
		}
	}
	anchor := (width - 1) / 2
	for x := 0; x <= anchor; x++ {
		if w.Data[x] != 0 {
			return Kernel{}, fmt.Errorf("%w: kernel %s diffuses to visited column %d",
				pixbuf.ErrPrecondition, name, x-anchor)
		}
	}
	if normalize {
		if err := w.NormalizeSelf(); err != nil {
			return Kernel{}, fmt.Errorf("kernel %s: %w", name, err)
		}
	}
	return Kernel{Name: name, weights: w, normalize: normalize}, nil
}

func mustKernel(name string, weights []float32, width, height int, normalize bool) Kernel {
	k, err := NewKernel(name, weights, width, height, normalize)
	if err != nil {
		panic(err)
	}
	return k
}

var (
	Simple2D = mustKernel("simple", []float32{
		0, 1,
		1, 0,
	}, 2, 2, true)

	FloydSteinberg = mustKernel("floyd-steinberg", []float32{
		0, 0, 7,
		1, 5, 3,
	}, 3, 2, true)

	JarvisJudiceNinke = mustKernel("jarvis-judice-ninke", []float32{
		0, 0, 0, 7, 5,
		3, 5, 7, 5, 3,
		1, 3, 5, 3, 1,
	}, 5, 3, true)

	// Atkinson spreads only 6/8 of the error and is used unnormalized.
	Atkinson = mustKernel("atkinson", []float32{
		0, 0, 1.0 / 8, 1.0 / 8,
		1.0 / 8, 1.0 / 8, 1.0 / 8, 0,
		0, 1.0 / 8, 0, 0,
	}, 4, 3, false)
)

// Weights returns a copy of the effective weights.
func (k Kernel) Weights() *pixbuf.Gray { return k.weights.Copy() }

// Anchor returns the column of the current pixel in the top row.
func (k Kernel) Anchor() int { return (k.weights.Width - 1) / 2 }

// ErrorDiffusion quantizes img in raster order, pushing each pixel's
// residual onto its unvisited neighbours.
func ErrorDiffusion(img *pixbuf.Buffer[float32], k Kernel, q Quantizer) (*pixbuf.Buffer[float32], error) {
	if k.weights == nil {
		return nil, fmt.Errorf("%w: zero diffusion kernel", pixbuf.ErrPrecondition)
	}
	out := img.Copy()
	diffuse(out, k, q)
	return out, nil
}

// diffuse scans img in place and returns the residual mass per channel that
// fell outside the image.
func diffuse(img *pixbuf.Buffer[float32], k Kernel, q Quantizer) []float64 {
	leaked := make([]float64, img.Channels)
	anchor := k.Anchor()
	residual := make([]float32, img.Channels)

	for p, pixel := range img.AllPixels() {
		for ch, v := range pixel {
			quantized := q.Quantize(v)
			pixel[ch] = quantized
			residual[ch] = v - quantized
		}
		for kp, w := range k.weights.AllPixels() {
			if w[0] == 0 {
				continue
			}
			x, y := p.X+kp.X-anchor, p.Y+kp.Y
			if !img.InBounds(x, y) {
				for ch := range residual {
					leaked[ch] += float64(residual[ch] * w[0])
				}
				continue
			}
			target := img.PixelAt(x, y, pixbuf.Clamp)
			for ch := range target {
				target[ch] += residual[ch] * w[0]
			}
		}
	}
	return leaked
}
