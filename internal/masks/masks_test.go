package masks

import (
	"context"
	"errors"
	"math/rand/v2"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmitchellscott/ditherworks/internal/pixbuf"
)

func TestBayerLevelOne(t *testing.T) {
	c := NewBayerCache()
	level, err := c.Level(1)
	require.NoError(t, err)

	expected := []float32{
		0, 12, 3, 15,
		8, 4, 11, 7,
		2, 14, 1, 13,
		10, 6, 9, 5,
	}
	assert.Equal(t, expected, level.Data)
}

func TestBayerLevelSizesAndRanks(t *testing.T) {
	c := NewBayerCache()
	for level := 0; level <= 5; level++ {
		m, err := c.Level(level)
		require.NoError(t, err)
		size := BayerSize(level)
		require.Equal(t, size, m.Width)
		require.Equal(t, size, m.Height)

		ranks := slices.Clone(m.Data)
		slices.Sort(ranks)
		for i, v := range ranks {
			if v != float32(i) {
				t.Fatalf("level %d: rank %d missing", level, i)
			}
		}

		n, err := c.Normalized(level)
		require.NoError(t, err)
		lo, hi := n.MinMax()
		assert.Equal(t, float32(0), lo)
		assert.Less(t, hi, float32(1))
	}
}

func TestBayerMemoization(t *testing.T) {
	c := NewBayerCache()

	first, err := c.Level(3)
	require.NoError(t, err)
	assert.Equal(t, 3, c.Computations())

	second, err := c.Level(3)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 3, c.Computations())

	// Lower levels were built on the way up
	_, err = c.Level(2)
	require.NoError(t, err)
	assert.Equal(t, 3, c.Computations())

	n1, err := c.Normalized(3)
	require.NoError(t, err)
	n2, err := c.Normalized(3)
	require.NoError(t, err)
	assert.Same(t, n1, n2)
	assert.Equal(t, 3, c.Computations())
}

func TestBayerConcurrentRequests(t *testing.T) {
	c := NewBayerCache()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Normalized(4)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 4, c.Computations())
}

func TestBayerRejectsBadLevel(t *testing.T) {
	c := NewBayerCache()
	for _, level := range []int{-1, MaxBayerLevel + 1} {
		if _, err := c.Level(level); !errors.Is(err, pixbuf.ErrPrecondition) {
			t.Errorf("level %d: expected ErrPrecondition, got %v", level, err)
		}
	}
}

// stepClock advances by a fixed step every time it is read.
type stepClock struct {
	now  time.Time
	step time.Duration
}

func (c *stepClock) Now() time.Time {
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

func generate(t *testing.T, seed uint64) (*pixbuf.Gray, BlueNoiseStats, *BlueNoise) {
	t.Helper()
	g, err := NewBlueNoise(BlueNoiseOptions{
		Size:   8,
		Budget: 200 * time.Millisecond,
		Clock:  &stepClock{now: time.Unix(0, 0), step: time.Millisecond},
		Rand:   rand.New(rand.NewPCG(seed, 42)),
	})
	require.NoError(t, err)
	mask, stats, err := g.Generate(context.Background())
	require.NoError(t, err)
	return mask, stats, g
}

func TestBlueNoiseIsDeterministic(t *testing.T) {
	a, statsA, _ := generate(t, 7)
	b, statsB, _ := generate(t, 7)

	assert.Equal(t, a.Data, b.Data)
	assert.Equal(t, statsA, statsB)
	// One clock read per loop check, the first at start
	assert.Equal(t, 199, statsA.Iterations)
	assert.Equal(t, 201*time.Millisecond, statsA.Duration)
}

func TestBlueNoiseOnlyPermutesAndLowersEnergy(t *testing.T) {
	mask, stats, g := generate(t, 11)
	require.Positive(t, stats.Accepted)

	// Rebuild the starting noise from the same seed
	rng := rand.New(rand.NewPCG(11, 42))
	initial := pixbuf.NewGray(8, 8)
	initial.MapSelf(func(float32, pixbuf.Coord) float32 { return rng.Float32() })

	before := slices.Clone(initial.Data)
	after := slices.Clone(mask.Data)
	slices.Sort(before)
	slices.Sort(after)
	assert.Equal(t, before, after)

	assert.Less(t, g.Energy(mask), g.Energy(initial))
}

func TestBlueNoiseStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	g, err := NewBlueNoise(BlueNoiseOptions{Size: 4, Budget: time.Hour})
	require.NoError(t, err)
	mask, stats, err := g.Generate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Iterations)
	assert.Equal(t, 4, mask.Width)
}

func TestNewBlueNoiseDefaults(t *testing.T) {
	g, err := NewBlueNoise(BlueNoiseOptions{})
	require.NoError(t, err)
	opts := g.Options()
	assert.Equal(t, DefaultBlueNoiseSize, opts.Size)
	assert.Equal(t, DefaultBlueNoiseBudget, opts.Budget)
	assert.Equal(t, DefaultSigmaI, opts.SigmaI)
	assert.Equal(t, DefaultSigmaS, opts.SigmaS)

	_, err = NewBlueNoise(BlueNoiseOptions{Size: 1})
	assert.ErrorIs(t, err, pixbuf.ErrPrecondition)
}

func TestTorusDistance(t *testing.T) {
	assert.Equal(t, 1.0, torusDistance2(0, 0, 7, 0, 8, 8))
	assert.Equal(t, 2.0, torusDistance2(0, 0, 7, 7, 8, 8))
	assert.Equal(t, 32.0, torusDistance2(0, 0, 4, 4, 8, 8))
}
