package pixbuf

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromDataValidatesStorageLength(t *testing.T) {
	_, err := FromData([]float32{1, 2, 3}, 2, 2, 1)
	if !errors.Is(err, ErrPrecondition) {
		t.Fatalf("Expected ErrPrecondition, got %v", err)
	}

	b, err := FromData([]float32{1, 2, 3, 4}, 2, 2, 1)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if b.Width != 2 || b.Height != 2 || b.Channels != 1 {
		t.Errorf("Unexpected geometry %dx%dx%d", b.Width, b.Height, b.Channels)
	}
}

func TestAddressModes(t *testing.T) {
	// 3x2 buffer holding its own raster index
	b := MustFromData([]float32{0, 1, 2, 3, 4, 5}, 3, 2, 1)

	tests := []struct {
		name     string
		x, y     int
		mode     AddressMode
		expected float32
	}{
		{"inside", 1, 1, Clamp, 4},
		{"clamp left", -5, 0, Clamp, 0},
		{"clamp bottom right", 9, 9, Clamp, 5},
		{"wrap right", 3, 0, Wrap, 0},
		{"wrap negative", -1, -1, Wrap, 5},
		{"wrap far negative", -7, 2, Wrap, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := b.ValueAt(tt.x, tt.y, 0, tt.mode); got != tt.expected {
				t.Errorf("ValueAt(%d,%d) = %v, expected %v", tt.x, tt.y, got, tt.expected)
			}
			if got := b.PixelAt(tt.x, tt.y, tt.mode)[0]; got != tt.expected {
				t.Errorf("PixelAt(%d,%d) = %v, expected %v", tt.x, tt.y, got, tt.expected)
			}
		})
	}
}

func TestPixelAtAliasesStorage(t *testing.T) {
	b := NewRGBA(2, 2)
	px := b.PixelAt(1, 1, Clamp)
	require.Len(t, px, 4)
	px[2] = 200
	assert.Equal(t, uint8(200), b.ValueAt(1, 1, 2, Clamp))

	b.SetValueAt(-1, 0, 3, 9, Wrap)
	assert.Equal(t, uint8(9), b.Data[(0*2+1)*4+3])
}

func TestMapSelfPassesCoordinates(t *testing.T) {
	b := New[float32](3, 2, 2)
	b.MapSelf(func(_ float32, c Coord) float32 {
		return float32(c.Y*100 + c.X*10 + c.Channel)
	})

	assert.Equal(t, float32(121), b.ValueAt(2, 1, 1, Clamp))
	assert.Equal(t, float32(10), b.ValueAt(1, 0, 0, Clamp))
}

func TestCopyIsDeep(t *testing.T) {
	a := MustFromData([]float32{1, 2, 3, 4}, 2, 2, 1)
	b := a.Copy()
	b.Data[0] = 42
	assert.Equal(t, float32(1), a.Data[0])
}

func TestAllCoordinatesIsRestartable(t *testing.T) {
	b := NewGray(3, 2)
	seq := b.AllCoordinates()

	var first, second []image.Point
	for p := range seq {
		first = append(first, p)
	}
	for p := range seq {
		second = append(second, p)
	}

	expected := []image.Point{{0, 0}, {1, 0}, {2, 0}, {0, 1}, {1, 1}, {2, 1}}
	assert.Equal(t, expected, first)
	assert.Equal(t, expected, second)

	// Early break stops the traversal
	count := 0
	for range b.AllPixels() {
		count++
		if count == 2 {
			break
		}
	}
	assert.Equal(t, 2, count)
}

func TestConvolveRejectsEvenKernel(t *testing.T) {
	b := NewGray(4, 4)
	_, err := b.Convolve(NewGray(2, 3))
	if !errors.Is(err, ErrPrecondition) {
		t.Errorf("Expected ErrPrecondition, got %v", err)
	}
}

func TestConvolveWrapsAroundEdges(t *testing.T) {
	// A kernel that picks the left neighbour shifts the image right by one.
	b := MustFromData([]float32{1, 2, 3, 4}, 4, 1, 1)
	kernel := MustFromData([]float32{1, 0, 0}, 3, 1, 1)

	out, err := b.Convolve(kernel)
	require.NoError(t, err)
	assert.Equal(t, []float32{4, 1, 2, 3}, out.Data)
	// The source is untouched
	assert.Equal(t, []float32{1, 2, 3, 4}, b.Data)
}

func TestConvolveBoxPreservesMass(t *testing.T) {
	b := NewGray(5, 5)
	b.SetValueAt(0, 0, 0, 9, Clamp)
	kernel := NewGray(3, 3).Fill(1)
	require.NoError(t, kernel.NormalizeSelf())

	out, err := b.Convolve(kernel)
	require.NoError(t, err)
	assert.InDelta(t, 9.0, out.Sum(), 1e-5)
	assert.InDelta(t, 1.0, out.ValueAt(4, 4, 0, Clamp), 1e-6)
}

func TestSameSize(t *testing.T) {
	if err := SameSize(NewGray(2, 2), NewRGBA(2, 2)); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if err := SameSize(NewGray(2, 2), NewGray(2, 3)); !errors.Is(err, ErrPrecondition) {
		t.Errorf("Expected ErrPrecondition, got %v", err)
	}
}

func TestNormalizeClampMinMax(t *testing.T) {
	b := MustFromData([]float32{-1, 0.5, 2, 0.5}, 2, 2, 1)
	b.ClampSelf(0, 1)
	lo, hi := b.MinMax()
	assert.Equal(t, float32(0), lo)
	assert.Equal(t, float32(1), hi)

	require.NoError(t, b.NormalizeSelf())
	assert.InDelta(t, 1.0, b.Sum(), 1e-6)

	if err := NewGray(2, 2).NormalizeSelf(); !errors.Is(err, ErrPrecondition) {
		t.Errorf("Expected ErrPrecondition for zero sum, got %v", err)
	}
}

func TestCheckFinite(t *testing.T) {
	b := MustFromData([]float64{1, 2, 3, 4}, 2, 2, 1)
	require.NoError(t, CheckFinite(b))

	zero := 0.0
	b.Data[3] = zero / zero
	err := CheckFinite(b)
	require.ErrorIs(t, err, ErrNonFinite)
	assert.Contains(t, err.Error(), "(1,1)")
}

func TestImageConversions(t *testing.T) {
	img := image.NewRGBA(image.Rect(10, 10, 12, 11))
	img.Set(10, 10, color.RGBA{255, 255, 255, 255})
	img.Set(11, 10, color.RGBA{255, 0, 0, 255})

	rgba := FromImage(img)
	require.Equal(t, 2, rgba.Width)
	require.Equal(t, 1, rgba.Height)
	assert.Equal(t, []uint8{255, 0, 0, 255}, rgba.PixelAt(1, 0, Clamp))

	gray := GrayFromRGBA(rgba)
	assert.InDelta(t, 1.0, gray.Data[0], 1e-6)
	assert.InDelta(t, 0.21, gray.Data[1], 1e-6)

	rgb := RGBFromRGBA(rgba)
	assert.Equal(t, []float32{1, 0, 0}, rgb.PixelAt(1, 0, Clamp))

	g := GrayToImage(gray)
	assert.Equal(t, uint8(54), g.GrayAt(1, 0).Y)
}
