// Package pixbuf provides a typed two-dimensional pixel buffer shared by the
// FFT engine, the mask generators and the dithering stages.
//
// A Buffer is parameterized over its element type. The channel count is data,
// not type, so the same methods serve 8-bit RGBA images, float grayscale
// images, float RGB images and complex spectra (two float64 per element).
package pixbuf

import (
	"fmt"
	"image"
	"iter"
	"math"
)

// Element is the set of supported storage types.
type Element interface {
	~uint8 | ~float32 | ~float64
}

// AddressMode selects how out-of-range coordinates are resolved.
type AddressMode int

const (
	// Clamp saturates coordinates to [0, dim-1].
	Clamp AddressMode = iota
	// Wrap treats the buffer as a torus.
	Wrap
)

// Coord identifies one stored value.
type Coord struct {
	X, Y    int
	Channel int
	Index   int
}

// Buffer is a row-major pixel buffer with interleaved channels.
// len(Data) == Width*Height*Channels always holds for buffers built by
// New and FromData.
type Buffer[T Element] struct {
	Width    int
	Height   int
	Channels int
	Data     []T
}

type (
	// RGBA holds 8-bit non-premultiplied color, four channels.
	RGBA = Buffer[uint8]
	// Gray holds single-channel intensities, nominally in [0,1].
	Gray = Buffer[float32]
	// RGB holds three float channels, nominally in [0,1].
	RGB = Buffer[float32]
)

// New allocates a zeroed buffer. Negative sizes are treated as zero.
func New[T Element](width, height, channels int) *Buffer[T] {
	width, height, channels = max(width, 0), max(height, 0), max(channels, 0)
	return &Buffer[T]{
		Width:    width,
		Height:   height,
		Channels: channels,
		Data:     make([]T, width*height*channels),
	}
}

// NewGray allocates a single-channel float buffer.
func NewGray(width, height int) *Gray { return New[float32](width, height, 1) }

// NewRGB allocates a three-channel float buffer.
func NewRGB(width, height int) *RGB { return New[float32](width, height, 3) }

// NewRGBA allocates a four-channel 8-bit buffer.
func NewRGBA(width, height int) *RGBA { return New[uint8](width, height, 4) }

// FromData wraps data without copying.
func FromData[T Element](data []T, width, height, channels int) (*Buffer[T], error) {
	if width < 0 || height < 0 || channels <= 0 {
		return nil, fmt.Errorf("%w: invalid geometry %dx%dx%d", ErrPrecondition, width, height, channels)
	}
	if len(data) != width*height*channels {
		return nil, fmt.Errorf("%w: storage length %d does not match %dx%dx%d",
			ErrPrecondition, len(data), width, height, channels)
	}
	return &Buffer[T]{Width: width, Height: height, Channels: channels, Data: data}, nil
}

// MustFromData is FromData for literal kernels; it panics on bad geometry.
func MustFromData[T Element](data []T, width, height, channels int) *Buffer[T] {
	b, err := FromData(data, width, height, channels)
	if err != nil {
		panic(err)
	}
	return b
}

// Bounds returns the buffer rectangle anchored at the origin.
func (b *Buffer[T]) Bounds() image.Rectangle {
	return image.Rect(0, 0, b.Width, b.Height)
}

// InBounds reports whether (x, y) addresses a stored pixel.
func (b *Buffer[T]) InBounds(x, y int) bool {
	return x >= 0 && y >= 0 && x < b.Width && y < b.Height
}

func wrap(v, n int) int {
	v %= n
	if v < 0 {
		v += n
	}
	return v
}

func (b *Buffer[T]) resolve(x, y int, mode AddressMode) (int, int) {
	if mode == Wrap {
		return wrap(x, b.Width), wrap(y, b.Height)
	}
	return min(max(x, 0), b.Width-1), min(max(y, 0), b.Height-1)
}

func (b *Buffer[T]) offset(x, y int) int {
	return (y*b.Width + x) * b.Channels
}

// PixelAt returns the channel tuple at (x, y). The slice aliases the
// buffer storage, so writes through it modify the buffer.
func (b *Buffer[T]) PixelAt(x, y int, mode AddressMode) []T {
	x, y = b.resolve(x, y, mode)
	i := b.offset(x, y)
	return b.Data[i : i+b.Channels : i+b.Channels]
}

// ValueAt returns one channel value at (x, y).
func (b *Buffer[T]) ValueAt(x, y, channel int, mode AddressMode) T {
	x, y = b.resolve(x, y, mode)
	return b.Data[b.offset(x, y)+channel]
}

// SetValueAt stores one channel value at (x, y).
func (b *Buffer[T]) SetValueAt(x, y, channel int, v T, mode AddressMode) {
	x, y = b.resolve(x, y, mode)
	b.Data[b.offset(x, y)+channel] = v
}

// MapSelf replaces every stored value with f(value, coordinate) in place.
func (b *Buffer[T]) MapSelf(f func(v T, c Coord) T) *Buffer[T] {
	if b.Width == 0 || b.Channels == 0 {
		return b
	}
	for i, v := range b.Data {
		pixel := i / b.Channels
		b.Data[i] = f(v, Coord{
			X:       pixel % b.Width,
			Y:       pixel / b.Width,
			Channel: i % b.Channels,
			Index:   i,
		})
	}
	return b
}

// Fill sets every stored value to v.
func (b *Buffer[T]) Fill(v T) *Buffer[T] {
	for i := range b.Data {
		b.Data[i] = v
	}
	return b
}

// Copy returns a deep clone.
func (b *Buffer[T]) Copy() *Buffer[T] {
	data := make([]T, len(b.Data))
	copy(data, b.Data)
	return &Buffer[T]{Width: b.Width, Height: b.Height, Channels: b.Channels, Data: data}
}

// AllCoordinates yields every pixel coordinate in raster order. Each call
// starts a fresh traversal.
func (b *Buffer[T]) AllCoordinates() iter.Seq[image.Point] {
	return func(yield func(image.Point) bool) {
		for y := 0; y < b.Height; y++ {
			for x := 0; x < b.Width; x++ {
				if !yield(image.Pt(x, y)) {
					return
				}
			}
		}
	}
}

// AllPixels yields every coordinate with its writable channel tuple.
func (b *Buffer[T]) AllPixels() iter.Seq2[image.Point, []T] {
	return func(yield func(image.Point, []T) bool) {
		for p := range b.AllCoordinates() {
			if !yield(p, b.PixelAt(p.X, p.Y, Clamp)) {
				return
			}
		}
	}
}

// SameSize fails with ErrPrecondition unless a and b share width and height.
func SameSize[A, B Element](a *Buffer[A], b *Buffer[B]) error {
	if a.Width != b.Width || a.Height != b.Height {
		return fmt.Errorf("%w: buffers differ in size (%dx%d vs %dx%d)",
			ErrPrecondition, a.Width, a.Height, b.Width, b.Height)
	}
	return nil
}

// Convolve computes the toroidal 2D convolution of b with kernel and returns
// a new buffer of the same size. Channel 0 of the kernel is applied to every
// channel of b. The kernel must have odd width and height.
func (b *Buffer[T]) Convolve(kernel *Buffer[T]) (*Buffer[T], error) {
	if kernel.Width%2 != 1 || kernel.Height%2 != 1 {
		return nil, fmt.Errorf("%w: convolution kernel must have odd size, got %dx%d",
			ErrPrecondition, kernel.Width, kernel.Height)
	}
	result := New[T](b.Width, b.Height, b.Channels)
	if b.Width == 0 || b.Height == 0 {
		return result, nil
	}
	offsetX := kernel.Width / 2
	offsetY := kernel.Height / 2
	for y := 0; y < b.Height; y++ {
		for x := 0; x < b.Width; x++ {
			for ch := 0; ch < b.Channels; ch++ {
				var sum float64
				for ky := 0; ky < kernel.Height; ky++ {
					for kx := 0; kx < kernel.Width; kx++ {
						w := float64(kernel.Data[kernel.offset(kx, ky)])
						if w == 0 {
							continue
						}
						sum += float64(b.ValueAt(x+kx-offsetX, y+ky-offsetY, ch, Wrap)) * w
					}
				}
				result.Data[result.offset(x, y)+ch] = fromFloat[T](sum)
			}
		}
	}
	return result, nil
}

// Sum adds every stored value.
func (b *Buffer[T]) Sum() float64 {
	var sum float64
	for _, v := range b.Data {
		sum += float64(v)
	}
	return sum
}

// NormalizeSelf scales the buffer so its values sum to one.
func (b *Buffer[T]) NormalizeSelf() error {
	sum := b.Sum()
	if sum == 0 {
		return fmt.Errorf("%w: cannot normalize a buffer summing to zero", ErrPrecondition)
	}
	b.MapSelf(func(v T, _ Coord) T { return fromFloat[T](float64(v) / sum) })
	return nil
}

// ClampSelf saturates every value to [lo, hi].
func (b *Buffer[T]) ClampSelf(lo, hi T) *Buffer[T] {
	return b.MapSelf(func(v T, _ Coord) T { return min(max(v, lo), hi) })
}

// MinMax returns the smallest and largest stored values.
func (b *Buffer[T]) MinMax() (lo, hi T) {
	if len(b.Data) == 0 {
		return lo, hi
	}
	lo, hi = b.Data[0], b.Data[0]
	for _, v := range b.Data[1:] {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	return lo, hi
}

// CheckFinite fails with ErrNonFinite at the first NaN or infinite value.
func CheckFinite[T Element](b *Buffer[T]) error {
	for i, v := range b.Data {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			pixel := i / b.Channels
			return fmt.Errorf("%w at (%d,%d) channel %d", ErrNonFinite,
				pixel%b.Width, pixel/b.Width, i%b.Channels)
		}
	}
	return nil
}

func fromFloat[T Element](v float64) T {
	var zero T
	if _, ok := any(zero).(uint8); ok {
		return T(uint8(math.Round(min(max(v, 0), 255))))
	}
	return T(v)
}
