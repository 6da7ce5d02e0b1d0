package dither

import (
	"fmt"
	"math"

	"github.com/rmitchellscott/ditherworks/internal/pixbuf"
)

const (
	DefaultRiemersmaQueue      = 32
	DefaultRiemersmaRatio      = 1.0 / 8
	DefaultColorRiemersmaRatio = 1.0 / 16
)

// RiemersmaWeights returns queue weights ratio^(i/(queue-1)), newest first,
// so the newest error has weight 1 and the oldest has weight ratio.
func RiemersmaWeights(queue int, ratio float64) ([]float32, error) {
	if queue < 2 {
		return nil, fmt.Errorf("%w: riemersma queue must hold at least 2 errors, got %d", pixbuf.ErrPrecondition, queue)
	}
	if ratio <= 0 || ratio > 1 {
		return nil, fmt.Errorf("%w: riemersma ratio must be in (0,1], got %v", pixbuf.ErrPrecondition, ratio)
	}
	weights := make([]float32, queue)
	for i := range weights {
		weights[i] = float32(math.Pow(ratio, float64(i)/float64(queue-1)))
	}
	return weights, nil
}

// errorQueue is a fixed-length ring of per-channel residuals. Index 0 is the
// most recent entry.
type errorQueue struct {
	entries  []float32
	channels int
	head     int
	size     int
}

func newErrorQueue(length, channels int) *errorQueue {
	return &errorQueue{entries: make([]float32, length*channels), channels: channels, size: length}
}

func (q *errorQueue) push(residual []float32) {
	q.head = (q.head - 1 + q.size) % q.size
	copy(q.entries[q.head*q.channels:], residual)
}

func (q *errorQueue) at(i int) []float32 {
	j := (q.head + i) % q.size * q.channels
	return q.entries[j : j+q.channels]
}

// Riemersma quantizes img along a Hilbert curve. Each pixel is adjusted by
// the weighted sum of the most recent residuals before quantizing, and its
// own residual (original minus quantized) is pushed, evicting the oldest.
func Riemersma(img *pixbuf.Buffer[float32], q Quantizer, queue int, ratio float64) (*pixbuf.Buffer[float32], error) {
	weights, err := RiemersmaWeights(queue, ratio)
	if err != nil {
		return nil, err
	}
	out := img.Copy()
	errs := newErrorQueue(queue, out.Channels)
	residual := make([]float32, out.Channels)

	for p := range HilbertCurve(out.Width, out.Height) {
		if !out.InBounds(p.X, p.Y) {
			continue
		}
		pixel := out.PixelAt(p.X, p.Y, pixbuf.Clamp)
		for ch, original := range pixel {
			var acc float32
			for i, w := range weights {
				acc += errs.at(i)[ch] * w
			}
			quantized := q.Quantize(original + acc)
			residual[ch] = original - quantized
			pixel[ch] = quantized
		}
		errs.push(residual)
	}
	return out, nil
}
