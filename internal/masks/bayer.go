// Package masks builds the threshold masks used by ordered and blue-noise
// dithering.
package masks

import (
	"fmt"
	"sync"

	"github.com/rmitchellscott/ditherworks/internal/pixbuf"
)

// MaxBayerLevel bounds requests to a 2048×2048 matrix.
const MaxBayerLevel = 10

var bayerBase = []float32{0, 3, 2, 1}

// BayerSize returns the side length of the Bayer matrix at level.
func BayerSize(level int) int {
	return 1 << (level + 1)
}

// BayerCache memoizes the Bayer pyramid. Level L is 2^(L+1) square and holds
// the integer ranks 0..size²-1. Returned buffers are shared and must be
// treated as read-only.
type BayerCache struct {
	mu           sync.Mutex
	levels       []*pixbuf.Gray
	normalized   map[int]*pixbuf.Gray
	computations int
}

func NewBayerCache() *BayerCache {
	return &BayerCache{
		levels:     []*pixbuf.Gray{pixbuf.MustFromData(append([]float32(nil), bayerBase...), 2, 2, 1)},
		normalized: make(map[int]*pixbuf.Gray),
	}
}

func checkLevel(level int) error {
	if level < 0 || level > MaxBayerLevel {
		return fmt.Errorf("%w: bayer level %d out of range [0,%d]", pixbuf.ErrPrecondition, level, MaxBayerLevel)
	}
	return nil
}

// Level returns the raw rank matrix for level.
func (c *BayerCache) Level(level int) (*pixbuf.Gray, error) {
	if err := checkLevel(level); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.level(level), nil
}

func (c *BayerCache) level(level int) *pixbuf.Gray {
	for len(c.levels) <= level {
		c.levels = append(c.levels, nextBayerLevel(c.levels[len(c.levels)-1]))
		c.computations++
	}
	return c.levels[level]
}

func nextBayerLevel(prev *pixbuf.Gray) *pixbuf.Gray {
	half := prev.Width
	size := half * 2
	out := pixbuf.NewGray(size, size)
	out.MapSelf(func(_ float32, c pixbuf.Coord) float32 {
		quadX, quadY := c.X/half, c.Y/half
		return 4*prev.ValueAt(c.X%half, c.Y%half, 0, pixbuf.Clamp) + bayerBase[quadY*2+quadX]
	})
	return out
}

// Normalized returns level divided by size², giving thresholds in [0,1).
func (c *BayerCache) Normalized(level int) (*pixbuf.Gray, error) {
	if err := checkLevel(level); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if n, ok := c.normalized[level]; ok {
		return n, nil
	}
	raw := c.level(level)
	area := float32(raw.Width * raw.Height)
	n := raw.Copy().MapSelf(func(v float32, _ pixbuf.Coord) float32 { return v / area })
	c.normalized[level] = n
	return n, nil
}

// Computations reports how many pyramid levels have been built.
func (c *BayerCache) Computations() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.computations
}
