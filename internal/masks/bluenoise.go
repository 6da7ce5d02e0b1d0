package masks

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"golang.org/x/time/rate"

	"github.com/rmitchellscott/ditherworks/internal/logging"
	"github.com/rmitchellscott/ditherworks/internal/pixbuf"
)

const (
	DefaultBlueNoiseSize   = 64
	DefaultBlueNoiseBudget = 10 * time.Second
	DefaultSigmaI          = 2.1
	DefaultSigmaS          = 1.0
)

// Clock supplies the wall-clock time the generator budgets against.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock reads time.Now.
var SystemClock Clock = systemClock{}

// BlueNoiseOptions configures a BlueNoise generator. Zero values take the
// package defaults; a nil Rand is seeded from the runtime source.
type BlueNoiseOptions struct {
	Size   int
	Budget time.Duration
	SigmaI float64
	SigmaS float64
	Clock  Clock
	Rand   *rand.Rand
}

// BlueNoiseStats describes one generation run.
type BlueNoiseStats struct {
	Iterations int
	Accepted   int
	Duration   time.Duration
}

// BlueNoise generates a tileable blue-noise mask by annealing white noise
// within a fixed time budget. A swap of two pixels is kept only if it
// strictly lowers the pairwise energy
//
//	E = Σ exp(-d²/σi² - sqrt|Δv|/σs²)
//
// where d is the toroidal distance between the pixels and Δv their
// intensity difference.
type BlueNoise struct {
	opts BlueNoiseOptions
}

func NewBlueNoise(opts BlueNoiseOptions) (*BlueNoise, error) {
	if opts.Size == 0 {
		opts.Size = DefaultBlueNoiseSize
	}
	if opts.Budget == 0 {
		opts.Budget = DefaultBlueNoiseBudget
	}
	if opts.SigmaI == 0 {
		opts.SigmaI = DefaultSigmaI
	}
	if opts.SigmaS == 0 {
		opts.SigmaS = DefaultSigmaS
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if opts.Size < 2 {
		return nil, fmt.Errorf("%w: blue noise size must be at least 2, got %d", pixbuf.ErrPrecondition, opts.Size)
	}
	if opts.Budget < 0 || opts.SigmaI < 0 || opts.SigmaS < 0 {
		return nil, fmt.Errorf("%w: blue noise budget and sigmas must be positive", pixbuf.ErrPrecondition)
	}
	return &BlueNoise{opts: opts}, nil
}

// Options returns the effective options.
func (g *BlueNoise) Options() BlueNoiseOptions { return g.opts }

// Generate runs until the budget is spent or ctx is cancelled and returns
// the mask reached so far. Cancellation is not an error.
func (g *BlueNoise) Generate(ctx context.Context) (*pixbuf.Gray, BlueNoiseStats, error) {
	rng := g.opts.Rand
	size := g.opts.Size
	noise := pixbuf.NewGray(size, size)
	noise.MapSelf(func(float32, pixbuf.Coord) float32 { return rng.Float32() })

	var stats BlueNoiseStats
	progress := rate.NewLimiter(rate.Every(2*time.Second), 1)
	start := g.opts.Clock.Now()
	deadline := start.Add(g.opts.Budget)

	for g.opts.Clock.Now().Before(deadline) {
		if ctx.Err() != nil {
			logging.WarnWithComponent(logging.ComponentBlueNoise, "Blue noise generation cancelled",
				"iterations", stats.Iterations, "accepted", stats.Accepted)
			break
		}
		stats.Iterations++

		px, py := rng.IntN(size), rng.IntN(size)
		qx, qy := rng.IntN(size), rng.IntN(size)
		if px == qx && py == qy {
			continue
		}
		if g.energyDelta(noise, px, py, qx, qy) < 0 {
			p := noise.PixelAt(px, py, pixbuf.Clamp)
			q := noise.PixelAt(qx, qy, pixbuf.Clamp)
			p[0], q[0] = q[0], p[0]
			stats.Accepted++
		}

		if progress.Allow() {
			logging.DebugWithComponent(logging.ComponentBlueNoise, "Blue noise progress",
				"iterations", stats.Iterations, "accepted", stats.Accepted)
		}
	}

	stats.Duration = g.opts.Clock.Now().Sub(start)
	return noise, stats, nil
}

func torusDistance2(x1, y1, x2, y2, width, height int) float64 {
	dx := abs(x1 - x2)
	dy := abs(y1 - y2)
	dx = min(dx, width-dx)
	dy = min(dy, height-dy)
	return float64(dx*dx + dy*dy)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func (g *BlueNoise) pairEnergy(d2 float64, a, b float32) float64 {
	return math.Exp(-d2/(g.opts.SigmaI*g.opts.SigmaI) -
		math.Sqrt(math.Abs(float64(a-b)))/(g.opts.SigmaS*g.opts.SigmaS))
}

// energyDelta returns E(after swapping p and q) - E(before). Only pairs
// with exactly one end in {p, q} change; the p–q pair itself is symmetric.
func (g *BlueNoise) energyDelta(noise *pixbuf.Gray, px, py, qx, qy int) float64 {
	vp := noise.ValueAt(px, py, 0, pixbuf.Clamp)
	vq := noise.ValueAt(qx, qy, 0, pixbuf.Clamp)
	var delta float64
	for c := range noise.AllCoordinates() {
		if (c.X == px && c.Y == py) || (c.X == qx && c.Y == qy) {
			continue
		}
		vc := noise.ValueAt(c.X, c.Y, 0, pixbuf.Clamp)
		dp := torusDistance2(px, py, c.X, c.Y, noise.Width, noise.Height)
		dq := torusDistance2(qx, qy, c.X, c.Y, noise.Width, noise.Height)
		before := g.pairEnergy(dp, vp, vc) + g.pairEnergy(dq, vq, vc)
		after := g.pairEnergy(dp, vq, vc) + g.pairEnergy(dq, vp, vc)
		delta += after - before
	}
	return delta
}

// Energy returns the total pairwise energy of mask, summing each unordered
// pair once.
func (g *BlueNoise) Energy(mask *pixbuf.Gray) float64 {
	var total float64
	n := len(mask.Data)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d2 := torusDistance2(i%mask.Width, i/mask.Width, j%mask.Width, j/mask.Width, mask.Width, mask.Height)
			total += g.pairEnergy(d2, mask.Data[i], mask.Data[j])
		}
	}
	return total
}
