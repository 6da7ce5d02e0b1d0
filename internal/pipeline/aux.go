package pipeline

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/rmitchellscott/ditherworks/internal/blur"
	"github.com/rmitchellscott/ditherworks/internal/pixbuf"
)

// Aux is the per-orchestrator auxiliary state stages draw on: masks that
// arrive out of band from the mask workers, the blur cache and the RNG.
// It is owned by one orchestrator and used by one stage at a time.
type Aux struct {
	BayerLevels *Future[[]*pixbuf.Gray]
	BlueNoise   *Future[*pixbuf.Gray]
	Blur        *blur.Cache
	Rand        *rand.Rand

	// Timeout bounds each wait for a mask; zero waits indefinitely.
	Timeout time.Duration

	blueNoiseDuration atomic.Int64
}

// NewAux creates empty auxiliary state. A zero seed picks a random one.
func NewAux(seed uint64, timeout time.Duration) *Aux {
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &Aux{
		BayerLevels: NewFuture[[]*pixbuf.Gray](),
		BlueNoise:   NewFuture[*pixbuf.Gray](),
		Blur:        blur.NewCache(),
		Rand:        rand.New(rand.NewPCG(seed, seed>>1|1)),
		Timeout:     timeout,
	}
}

func (a *Aux) waitContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.Timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, a.Timeout)
}

// BayerLevel waits for the Bayer levels and returns one of them.
func (a *Aux) BayerLevel(ctx context.Context, level int) (*pixbuf.Gray, error) {
	ctx, cancel := a.waitContext(ctx)
	defer cancel()

	levels, err := a.BayerLevels.Wait(ctx)
	if err != nil {
		return nil, fmt.Errorf("waiting for bayer levels: %w", err)
	}
	if level < 0 || level >= len(levels) {
		return nil, fmt.Errorf("%w: bayer level %d not available (have %d)", pixbuf.ErrPrecondition, level, len(levels))
	}
	return levels[level], nil
}

// BlueNoiseMask waits for the blue-noise mask.
func (a *Aux) BlueNoiseMask(ctx context.Context) (*pixbuf.Gray, error) {
	ctx, cancel := a.waitContext(ctx)
	defer cancel()

	mask, err := a.BlueNoise.Wait(ctx)
	if err != nil {
		return nil, fmt.Errorf("waiting for blue noise mask: %w", err)
	}
	return mask, nil
}

// SetBlueNoiseDuration records how long the mask took to generate.
func (a *Aux) SetBlueNoiseDuration(d time.Duration) {
	a.blueNoiseDuration.Store(int64(d))
}

// BlueNoiseDuration returns the generation time once the mask is known.
func (a *Aux) BlueNoiseDuration() (time.Duration, bool) {
	if !a.BlueNoise.Resolved() {
		return 0, false
	}
	return time.Duration(a.blueNoiseDuration.Load()), true
}
