// Package fft implements a two-dimensional radix-2 Cooley-Tukey transform
// over complex-valued pixel buffers.
//
// A complex buffer is a pixbuf.Buffer[float64] with two channels holding the
// real and imaginary parts. Transforms run in place, row pass first, then
// column pass. Inputs must be square with a power-of-two side; there is no
// automatic padding.
package fft

import (
	"fmt"
	"math"
	"math/bits"

	"github.com/rmitchellscott/ditherworks/internal/pixbuf"
)

// Buffer is a complex-valued pixel buffer (channel 0 real, channel 1 imaginary).
type Buffer = pixbuf.Buffer[float64]

// NewBuffer allocates a zeroed complex buffer.
func NewBuffer(width, height int) *Buffer {
	return pixbuf.New[float64](width, height, 2)
}

// FromGray copies a grayscale buffer into the real part of a complex buffer.
func FromGray(g *pixbuf.Gray) *Buffer {
	out := NewBuffer(g.Width, g.Height)
	for i, v := range g.Data {
		out.Data[2*i] = float64(v)
	}
	return out
}

func toGray(c *Buffer, f func(re, im float64) float64) *pixbuf.Gray {
	out := pixbuf.NewGray(c.Width, c.Height)
	for i := range out.Data {
		out.Data[i] = float32(f(c.Data[2*i], c.Data[2*i+1]))
	}
	return out
}

// Abs returns the magnitude of every element.
func Abs(c *Buffer) *pixbuf.Gray { return toGray(c, math.Hypot) }

// Real returns the real parts.
func Real(c *Buffer) *pixbuf.Gray { return toGray(c, func(re, _ float64) float64 { return re }) }

// Imag returns the imaginary parts.
func Imag(c *Buffer) *pixbuf.Gray { return toGray(c, func(_, im float64) float64 { return im }) }

// BitReverse reverses the lowest numBits bits of x.
func BitReverse(x, numBits int) int {
	if numBits == 0 {
		return 0
	}
	return int(bits.Reverse32(uint32(x)) >> (32 - numBits))
}

// IsPowerOfTwo reports whether n is a positive power of two.
func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

func checkTransformable(c *Buffer) error {
	if c.Channels != 2 {
		return fmt.Errorf("%w: complex buffer needs 2 channels, got %d", pixbuf.ErrPrecondition, c.Channels)
	}
	if c.Width != c.Height {
		return fmt.Errorf("%w: can only transform square buffers, got %dx%d",
			pixbuf.ErrPrecondition, c.Width, c.Height)
	}
	if !IsPowerOfTwo(c.Width) {
		return fmt.Errorf("%w: side length %d is not a power of two", pixbuf.ErrPrecondition, c.Width)
	}
	return nil
}

// Forward applies the forward transform (sign -1) in place.
func Forward(c *Buffer) error {
	return transform2(c, -1)
}

// Inverse applies the inverse transform (sign +1) in place and scales the
// result by 1/N.
func Inverse(c *Buffer) error {
	if err := transform2(c, 1); err != nil {
		return err
	}
	n := float64(c.Width * c.Height)
	for i := range c.Data {
		c.Data[i] /= n
	}
	return nil
}

func transform2(c *Buffer, sign float64) error {
	if err := checkTransformable(c); err != nil {
		return err
	}
	n := c.Width
	for y := 0; y < n; y++ {
		transform1(c.Data, y*n, n, 1, sign)
	}
	for x := 0; x < n; x++ {
		transform1(c.Data, x, n, n, sign)
	}
	return nil
}

// transform1 runs a 1D transform over n complex samples starting at element
// start and spaced stride elements apart.
func transform1(data []float64, start, n, stride int, sign float64) {
	numBits := bits.TrailingZeros(uint(n))
	at := func(k int) int { return 2 * (start + k*stride) }

	for i := 0; i < n; i++ {
		bi := BitReverse(i, numBits)
		if i >= bi {
			continue
		}
		p, q := at(i), at(bi)
		data[p], data[q] = data[q], data[p]
		data[p+1], data[q+1] = data[q+1], data[p+1]
	}

	for s := 1; s <= numBits; s++ {
		m := 1 << s
		wm := FromEuler(1, sign*2*math.Pi/float64(m))
		for k := 0; k < n; k += m {
			w := FromEuler(1, 0)
			for j := 0; j < m/2; j++ {
				pt := at(k + j + m/2)
				pu := at(k + j)
				tre, tim := w.Mul(FromCartesian(data[pt], data[pt+1])).Cartesian()
				ure, uim := data[pu], data[pu+1]
				data[pu], data[pu+1] = ure+tre, uim+tim
				data[pt], data[pt+1] = ure-tre, uim-tim
				w = w.Mul(wm)
			}
		}
	}
}

// CenterSelf swaps diagonal quadrants so the zero frequency moves to the
// center. It is its own inverse. Width and height must be even.
func CenterSelf[T pixbuf.Element](b *pixbuf.Buffer[T]) error {
	if b.Width%2 != 0 || b.Height%2 != 0 {
		return fmt.Errorf("%w: centering needs even width and height, got %dx%d",
			pixbuf.ErrPrecondition, b.Width, b.Height)
	}
	halfW, halfH := b.Width/2, b.Height/2
	for y := 0; y < halfH; y++ {
		for x := 0; x < b.Width; x++ {
			p := b.PixelAt(x, y, pixbuf.Clamp)
			q := b.PixelAt(x+halfW, y+halfH, pixbuf.Wrap)
			for ch := range p {
				p[ch], q[ch] = q[ch], p[ch]
			}
		}
	}
	return nil
}

// MultiplySelf replaces a with the element-wise complex product a·b.
func MultiplySelf(a, b *Buffer) error {
	if err := pixbuf.SameSize(a, b); err != nil {
		return err
	}
	if a.Channels != 2 || b.Channels != 2 {
		return fmt.Errorf("%w: complex multiply needs 2-channel buffers", pixbuf.ErrPrecondition)
	}
	for i := 0; i < len(a.Data); i += 2 {
		p := FromCartesian(a.Data[i], a.Data[i+1])
		q := FromCartesian(b.Data[i], b.Data[i+1])
		a.Data[i], a.Data[i+1] = p.Mul(q).Cartesian()
	}
	return nil
}
