package blur

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmitchellscott/ditherworks/internal/pixbuf"
)

func noise(n int) *pixbuf.Gray {
	rng := rand.New(rand.NewPCG(1, 2))
	g := pixbuf.NewGray(n, n)
	for i := range g.Data {
		g.Data[i] = rng.Float32()
	}
	return g
}

func TestDefaultSize(t *testing.T) {
	tests := []struct {
		sigma    float64
		expected int
	}{
		{0.5, 3},
		{1, 7},
		{2, 13},
		{1.2, 9},
	}
	for _, tt := range tests {
		if got := DefaultSize(tt.sigma); got != tt.expected {
			t.Errorf("DefaultSize(%v) = %d, expected %d", tt.sigma, got, tt.expected)
		}
	}
}

func TestKernelIsNormalizedAndCentred(t *testing.T) {
	k, err := Kernel(1.5, 9, 7)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, k.Sum(), 1e-5)

	_, hi := k.MinMax()
	assert.Equal(t, hi, k.ValueAt(4, 3, 0, pixbuf.Clamp))
	// Symmetric about the centre in both axes
	assert.InDelta(t, k.ValueAt(2, 3, 0, pixbuf.Clamp), k.ValueAt(6, 3, 0, pixbuf.Clamp), 1e-7)
	assert.InDelta(t, k.ValueAt(4, 1, 0, pixbuf.Clamp), k.ValueAt(4, 5, 0, pixbuf.Clamp), 1e-7)
}

func TestKernelRejectsBadInput(t *testing.T) {
	for _, sigma := range []float64{0, -1, math.NaN()} {
		if _, err := Kernel(sigma, 3, 3); !errors.Is(err, pixbuf.ErrPrecondition) {
			t.Errorf("sigma %v: expected ErrPrecondition, got %v", sigma, err)
		}
	}
	if _, err := Kernel(1, 0, 3); !errors.Is(err, pixbuf.ErrPrecondition) {
		t.Errorf("Expected ErrPrecondition for empty kernel, got %v", err)
	}
}

func TestCacheMemoizes(t *testing.T) {
	c := NewCache()

	a, err := c.Kernel(2, 5, 5)
	require.NoError(t, err)
	a.Data[0] = 99 // callers get copies

	b, err := c.Kernel(2, 5, 5)
	require.NoError(t, err)
	assert.NotEqual(t, float32(99), b.Data[0])

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, 1, stats.Kernels)

	s1, err := c.Spectrum(2, 16, 16)
	require.NoError(t, err)
	s2, err := c.Spectrum(2, 16, 16)
	require.NoError(t, err)
	assert.Same(t, s1, s2)
	assert.Equal(t, 1, c.Stats().Spectra)
}

func TestSpatialMatchesFFTPath(t *testing.T) {
	img := noise(16)
	kernel, err := Kernel(1, 7, 7)
	require.NoError(t, err)

	spatial, err := img.Convolve(kernel)
	require.NoError(t, err)
	freq, err := ConvolveFFT(img, kernel)
	require.NoError(t, err)

	for i := range spatial.Data {
		assert.InDelta(t, spatial.Data[i], freq.Data[i], 1e-4, "index %d", i)
	}
}

func TestFFTBlurPreservesMeanAndSmooths(t *testing.T) {
	img := noise(32)
	out, err := FFT(NewCache(), img, 2)
	require.NoError(t, err)

	assert.InDelta(t, img.Sum(), out.Sum(), 1e-2)

	variance := func(g *pixbuf.Gray) float64 {
		mean := g.Sum() / float64(len(g.Data))
		var v float64
		for _, x := range g.Data {
			v += (float64(x) - mean) * (float64(x) - mean)
		}
		return v
	}
	assert.Less(t, variance(out), variance(img))
}

func TestFFTBlurRejectsNonPowerOfTwo(t *testing.T) {
	_, err := FFT(NewCache(), pixbuf.NewGray(12, 12), 1)
	if !errors.Is(err, pixbuf.ErrPrecondition) {
		t.Errorf("Expected ErrPrecondition, got %v", err)
	}
}

func TestPad(t *testing.T) {
	k := pixbuf.MustFromData([]float32{1, 2, 3}, 3, 1, 1)
	out, err := Pad(k, 8, 4)
	require.NoError(t, err)
	assert.Equal(t, float32(2), out.ValueAt(4, 2, 0, pixbuf.Clamp))
	assert.Equal(t, float32(1), out.ValueAt(3, 2, 0, pixbuf.Clamp))
	assert.InDelta(t, 6.0, out.Sum(), 1e-6)

	_, err = Pad(pixbuf.NewGray(2, 1), 8, 8)
	assert.ErrorIs(t, err, pixbuf.ErrPrecondition)
	_, err = Pad(pixbuf.NewGray(9, 9), 8, 8)
	assert.ErrorIs(t, err, pixbuf.ErrPrecondition)
}

func TestFFTPaddedHandlesAnySize(t *testing.T) {
	cache := NewCache()
	flat := pixbuf.NewGray(13, 7).Fill(0.5)
	out, err := FFTPadded(cache, flat, 1.5)
	require.NoError(t, err)
	require.Equal(t, 13, out.Width)
	require.Equal(t, 7, out.Height)
	for _, v := range out.Data {
		assert.InDelta(t, 0.5, v, 1e-4)
	}
	assert.Equal(t, 1, cache.Stats().Spectra)

	empty, err := FFTPadded(cache, pixbuf.NewGray(0, 0), 1)
	require.NoError(t, err)
	assert.Empty(t, empty.Data)
}
