package imageprocessing

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmitchellscott/ditherworks/internal/pixbuf"
)

func TestBitDepthForLevels(t *testing.T) {
	tests := []struct {
		levels   int
		expected int
	}{
		{2, 1},
		{3, 8},
		{4, 2},
		{5, 8},
		{6, 4},
		{16, 4},
		{17, 8},
		{255, 8},
	}
	for _, tt := range tests {
		if got := BitDepthForLevels(tt.levels); got != tt.expected {
			t.Errorf("BitDepthForLevels(%d) = %d, expected %d", tt.levels, got, tt.expected)
		}
	}
}

func TestEncodePNGGrayscale(t *testing.T) {
	tests := []struct {
		name     string
		bitDepth int
	}{
		{"1-bit", 1},
		{"2-bit", 2},
		{"4-bit", 4},
		{"8-bit", 8},
	}

	// 5 pixels wide so rows do not end on a byte boundary
	g := pixbuf.MustFromData([]float32{
		0, 1, 0, 1, 1,
		1, 0, 1, 0, 0,
	}, 5, 2, 1)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := EncodePNG(g, tt.bitDepth)
			require.NoError(t, err)

			img, err := png.Decode(bytes.NewReader(data))
			require.NoError(t, err)
			require.Equal(t, image.Rect(0, 0, 5, 2), img.Bounds())

			for p, px := range g.AllPixels() {
				c := color.GrayModel.Convert(img.At(p.X, p.Y)).(color.Gray)
				assert.Equal(t, uint8(px[0]*255), c.Y, "pixel %v", p)
			}
		})
	}
}

func TestEncodePNGSnapsToBitDepth(t *testing.T) {
	g := pixbuf.MustFromData([]float32{0.2, 0.45, 0.6, 0.8}, 4, 1, 1)
	data, err := EncodePNG(g, 2)
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)

	expected := []uint8{0, 85, 170, 255}
	for x, want := range expected {
		c := color.GrayModel.Convert(img.At(x, 0)).(color.Gray)
		assert.Equal(t, want, c.Y, "pixel %d", x)
		assert.Equal(t, QuantizeColor(uint8(g.Data[x]*255+0.5), 2), c.Y, "pixel %d", x)
	}
}

func TestEncodePNGColor(t *testing.T) {
	rgb := pixbuf.MustFromData([]float32{1, 0, 0, 0, 0.5, 1}, 2, 1, 3)
	data, err := EncodePNG(rgb, 1)
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	r, g, b, _ := img.At(0, 0).RGBA()
	assert.Equal(t, []uint32{0xffff, 0, 0}, []uint32{r, g, b})
	r, g, b, _ = img.At(1, 0).RGBA()
	assert.Equal(t, []uint32{0, 128 * 0x101, 0xffff}, []uint32{r, g, b})
}

func TestEncodePNGRejectsBadInput(t *testing.T) {
	_, err := EncodePNG(pixbuf.NewGray(2, 2), 3)
	assert.Error(t, err)

	_, err = EncodePNG(pixbuf.New[float32](2, 2, 2), 8)
	assert.Error(t, err)

	_, err = EncodePNG(pixbuf.NewGray(0, 0), 8)
	assert.Error(t, err)
}

func TestBoundToMax(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 400, 100))

	bounded := BoundToMax(img, 100)
	assert.Equal(t, image.Rect(0, 0, 100, 25), bounded.Bounds())

	assert.Same(t, img, BoundToMax(img, 0).(*image.RGBA))
	assert.Same(t, img, BoundToMax(img, 400).(*image.RGBA))
}

func TestDecodeAndLoadFile(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 8, 4))
	src.Set(1, 1, color.NRGBA{10, 20, 30, 255})

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, src))

	rgba, format, err := DecodeBytes(buf.Bytes(), ProcessingOptions{MaxDimension: 1024})
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, []uint8{10, 20, 30, 255}, rgba.PixelAt(1, 1, pixbuf.Clamp))

	path := filepath.Join(t.TempDir(), "in.png")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))

	source, err := LoadFile(path, ProcessingOptions{MaxDimension: 4})
	require.NoError(t, err)
	assert.Equal(t, 4, source.Image.Width)
	assert.Equal(t, 2, source.Image.Height)

	_, _, err = DecodeBytes([]byte("not an image"), ProcessingOptions{})
	assert.Error(t, err)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.png"), ProcessingOptions{})
	assert.Error(t, err)
}

func TestLibraryFloydSteinberg(t *testing.T) {
	g := pixbuf.NewGray(16, 16).Fill(0.5)

	out := LibraryFloydSteinberg(g, 2)
	require.Equal(t, 16, out.Width)

	var ones int
	for _, v := range out.Data {
		require.True(t, v == 0 || v == 1, "unexpected value %v", v)
		if v == 1 {
			ones++
		}
	}
	// The library diffuses in linear light, so only require a real mix
	assert.Greater(t, ones, 0)
	assert.Less(t, ones, len(out.Data))
}

func TestQuantizeColor(t *testing.T) {
	assert.Equal(t, uint8(0), QuantizeColor(127, 1))
	assert.Equal(t, uint8(255), QuantizeColor(128, 1))
	assert.Equal(t, uint8(85), QuantizeColor(64, 2))
	assert.Equal(t, uint8(255), QuantizeColor(255, 4))
	assert.Equal(t, uint8(77), QuantizeColor(77, 8))
}

func TestGrayFromImage(t *testing.T) {
	g := image.NewGray(image.Rect(2, 2, 4, 3))
	g.SetGray(3, 2, color.Gray{Y: 255})

	out := GrayFromImage(g)
	assert.Equal(t, []float32{0, 1}, out.Data)
	assert.Nil(t, GrayFromImage(nil))
}
