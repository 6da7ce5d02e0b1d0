package blur

import (
	"fmt"
	"math"
	"sync"

	"github.com/rmitchellscott/ditherworks/internal/fft"
	"github.com/rmitchellscott/ditherworks/internal/pixbuf"
)

// Key identifies a cached kernel or kernel spectrum.
type Key struct {
	Sigma  float64
	Width  int
	Height int
}

// CacheStats reports cache usage.
type CacheStats struct {
	Hits    int64
	Misses  int64
	Kernels int
	Spectra int
}

// Cache memoizes Gaussian kernels and their centered spectra. Entries are
// never evicted. A Cache belongs to one worker; it is safe for concurrent use
// but is not meant to be shared across workers.
type Cache struct {
	mu      sync.Mutex
	kernels map[Key]*pixbuf.Gray
	spectra map[Key]*fft.Buffer
	hits    int64
	misses  int64
}

func NewCache() *Cache {
	return &Cache{
		kernels: make(map[Key]*pixbuf.Gray),
		spectra: make(map[Key]*fft.Buffer),
	}
}

// DefaultSize is the kernel side used when none is given: the next odd
// integer at or above 6σ.
func DefaultSize(sigma float64) int {
	return nextOdd(int(math.Ceil(6 * sigma)))
}

func nextOdd(n int) int {
	if n%2 == 0 {
		return n + 1
	}
	return n
}

// Kernel builds a Gaussian kernel of the given size centred at
// (floor(w/2), floor(h/2)) and normalized to sum to one.
func Kernel(sigma float64, width, height int) (*pixbuf.Gray, error) {
	if sigma <= 0 || math.IsNaN(sigma) || math.IsInf(sigma, 0) {
		return nil, fmt.Errorf("%w: sigma must be positive, got %v", pixbuf.ErrPrecondition, sigma)
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: kernel size must be positive, got %dx%d",
			pixbuf.ErrPrecondition, width, height)
	}
	k := pixbuf.NewGray(width, height)
	cx, cy := width/2, height/2
	denom := 2 * sigma * sigma
	k.MapSelf(func(_ float32, c pixbuf.Coord) float32 {
		dx, dy := float64(c.X-cx), float64(c.Y-cy)
		return float32(math.Exp(-(dx*dx + dy*dy) / denom))
	})
	if err := k.NormalizeSelf(); err != nil {
		return nil, fmt.Errorf("failed to normalize gaussian kernel: %w", err)
	}
	return k, nil
}

// Kernel returns a copy of the cached kernel for key, building it on a miss.
func (c *Cache) Kernel(sigma float64, width, height int) (*pixbuf.Gray, error) {
	key := Key{Sigma: sigma, Width: width, Height: height}

	c.mu.Lock()
	defer c.mu.Unlock()

	if k, ok := c.kernels[key]; ok {
		c.hits++
		return k.Copy(), nil
	}
	c.misses++
	k, err := Kernel(sigma, width, height)
	if err != nil {
		return nil, err
	}
	c.kernels[key] = k
	return k.Copy(), nil
}

// Spectrum returns the centered forward transform of the full-size kernel
// for key. The returned buffer is shared and must not be modified.
func (c *Cache) Spectrum(sigma float64, width, height int) (*fft.Buffer, error) {
	key := Key{Sigma: sigma, Width: width, Height: height}

	c.mu.Lock()
	if s, ok := c.spectra[key]; ok {
		c.hits++
		c.mu.Unlock()
		return s, nil
	}
	c.mu.Unlock()

	k, err := c.Kernel(sigma, width, height)
	if err != nil {
		return nil, err
	}
	s, err := spectrumOf(k)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.spectra[key]; ok {
		return existing, nil
	}
	c.misses++
	c.spectra[key] = s
	return s, nil
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{
		Hits:    c.hits,
		Misses:  c.misses,
		Kernels: len(c.kernels),
		Spectra: len(c.spectra),
	}
}

func spectrumOf(kernel *pixbuf.Gray) (*fft.Buffer, error) {
	s := fft.FromGray(kernel)
	if err := fft.Forward(s); err != nil {
		return nil, fmt.Errorf("failed to transform kernel: %w", err)
	}
	if err := fft.CenterSelf(s); err != nil {
		return nil, err
	}
	return s, nil
}
