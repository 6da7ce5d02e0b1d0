// Package blur implements Gaussian blur in the spatial and frequency domains.
//
// The spatial path convolves with a small odd kernel. The frequency path uses
// a kernel the size of the whole image and multiplies spectra, so its cost
// does not grow with sigma. For symmetric kernels both paths agree.
package blur

import (
	"fmt"

	"github.com/rmitchellscott/ditherworks/internal/fft"
	"github.com/rmitchellscott/ditherworks/internal/pixbuf"
)

// Spatial blurs img by toroidal convolution with a DefaultSize(sigma) kernel.
func Spatial(cache *Cache, img *pixbuf.Gray, sigma float64) (*pixbuf.Gray, error) {
	size := DefaultSize(sigma)
	kernel, err := cache.Kernel(sigma, size, size)
	if err != nil {
		return nil, err
	}
	return img.Convolve(kernel)
}

// FFT blurs img in the frequency domain using a kernel spectrum the size of
// img. img must be square with a power-of-two side.
func FFT(cache *Cache, img *pixbuf.Gray, sigma float64) (*pixbuf.Gray, error) {
	spectrum, err := cache.Spectrum(sigma, img.Width, img.Height)
	if err != nil {
		return nil, err
	}
	return applySpectrum(img, spectrum)
}

// FFTPadded runs FFT on an image of any size. The image is extended with
// clamped edges to the next power-of-two square and the result is cropped
// back.
func FFTPadded(cache *Cache, img *pixbuf.Gray, sigma float64) (*pixbuf.Gray, error) {
	if img.Width == 0 || img.Height == 0 {
		return img.Copy(), nil
	}
	side := 2
	for side < max(img.Width, img.Height) {
		side <<= 1
	}
	if side == img.Width && side == img.Height {
		return FFT(cache, img, sigma)
	}

	padded := pixbuf.NewGray(side, side).MapSelf(func(_ float32, c pixbuf.Coord) float32 {
		return img.ValueAt(c.X, c.Y, 0, pixbuf.Clamp)
	})
	out, err := FFT(cache, padded, sigma)
	if err != nil {
		return nil, err
	}
	return pixbuf.NewGray(img.Width, img.Height).MapSelf(func(_ float32, c pixbuf.Coord) float32 {
		return out.ValueAt(c.X, c.Y, 0, pixbuf.Clamp)
	}), nil
}

// ConvolveFFT convolves img with an arbitrary odd kernel through the
// frequency domain. The kernel is zero-padded to the image size with its
// centre at (w/2, h/2).
func ConvolveFFT(img, kernel *pixbuf.Gray) (*pixbuf.Gray, error) {
	padded, err := Pad(kernel, img.Width, img.Height)
	if err != nil {
		return nil, err
	}
	spectrum, err := spectrumOf(padded)
	if err != nil {
		return nil, err
	}
	return applySpectrum(img, spectrum)
}

// Pad embeds kernel in a zeroed width×height buffer, moving the kernel
// centre to (width/2, height/2).
func Pad(kernel *pixbuf.Gray, width, height int) (*pixbuf.Gray, error) {
	if kernel.Width%2 != 1 || kernel.Height%2 != 1 {
		return nil, fmt.Errorf("%w: kernel must have odd size, got %dx%d",
			pixbuf.ErrPrecondition, kernel.Width, kernel.Height)
	}
	if kernel.Width > width || kernel.Height > height {
		return nil, fmt.Errorf("%w: kernel %dx%d does not fit %dx%d",
			pixbuf.ErrPrecondition, kernel.Width, kernel.Height, width, height)
	}
	out := pixbuf.NewGray(width, height)
	offX := width/2 - kernel.Width/2
	offY := height/2 - kernel.Height/2
	for p, px := range kernel.AllPixels() {
		out.SetValueAt(p.X+offX, p.Y+offY, 0, px[0], pixbuf.Clamp)
	}
	return out, nil
}

func applySpectrum(img *pixbuf.Gray, spectrum *fft.Buffer) (*pixbuf.Gray, error) {
	c := fft.FromGray(img)
	if err := fft.Forward(c); err != nil {
		return nil, fmt.Errorf("forward transform: %w", err)
	}
	if err := fft.CenterSelf(c); err != nil {
		return nil, err
	}
	if err := fft.MultiplySelf(c, spectrum); err != nil {
		return nil, err
	}
	if err := fft.CenterSelf(c); err != nil {
		return nil, err
	}
	if err := fft.Inverse(c); err != nil {
		return nil, fmt.Errorf("inverse transform: %w", err)
	}
	if err := fft.CenterSelf(c); err != nil {
		return nil, err
	}
	if err := pixbuf.CheckFinite(c); err != nil {
		return nil, err
	}
	return fft.Abs(c), nil
}
