package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/rmitchellscott/ditherworks/internal/logging"
	"github.com/rmitchellscott/ditherworks/internal/masks"
	"github.com/rmitchellscott/ditherworks/internal/pixbuf"
	"github.com/rmitchellscott/ditherworks/internal/storage"
	"github.com/rmitchellscott/ditherworks/internal/workerproto"
)

// BlueNoiseWorker generates one blue-noise mask per lifetime and posts it
// as a bluenoise message. With a MaskStore it reuses a saved snapshot and
// saves fresh masks.
type BlueNoiseWorker struct {
	gen   *masks.BlueNoise
	store *storage.MaskStore
}

func NewBlueNoiseWorker(gen *masks.BlueNoise, store *storage.MaskStore) *BlueNoiseWorker {
	return &BlueNoiseWorker{gen: gen, store: store}
}

func (w *BlueNoiseWorker) snapshotKey() string {
	opts := w.gen.Options()
	return storage.MaskKey("bluenoise", opts.Size, opts.SigmaI, opts.SigmaS)
}

// Run produces the mask and posts it to out. A cancelled generation posts
// nothing.
func (w *BlueNoiseWorker) Run(ctx context.Context, out workerproto.Port) error {
	msg, err := w.produce(ctx)
	if err != nil {
		failed := workerproto.Message{ID: workerproto.IDBlueNoise, Type: workerproto.TypeFailed, Err: err}
		if ctx.Err() == nil {
			_ = out.Post(failed)
		}
		return err
	}
	return out.Post(msg)
}

func (w *BlueNoiseWorker) produce(ctx context.Context) (workerproto.Message, error) {
	if w.store != nil {
		mask, took, ok, err := w.store.Load(ctx, w.snapshotKey())
		if err != nil {
			logging.WarnWithComponent(logging.ComponentBlueNoise, "Ignoring unreadable mask snapshot",
				"key", w.snapshotKey(), "error", err)
		}
		if ok {
			logging.InfoWithComponent(logging.ComponentBlueNoise, "Loaded blue noise mask from snapshot",
				"key", w.snapshotKey(), "size", mask.Width)
			return blueNoiseMessage(mask, took), nil
		}
	}

	opts := w.gen.Options()
	logging.InfoWithComponent(logging.ComponentBlueNoise, "Generating blue noise mask",
		"size", opts.Size, "budget", opts.Budget)

	mask, stats, err := w.gen.Generate(ctx)
	if err != nil {
		return workerproto.Message{}, fmt.Errorf("failed to generate blue noise: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return workerproto.Message{}, err
	}
	if err := pixbuf.CheckFinite(mask); err != nil {
		return workerproto.Message{}, err
	}

	logging.InfoWithComponent(logging.ComponentBlueNoise, "Blue noise mask ready",
		"iterations", stats.Iterations, "accepted", stats.Accepted, "duration", stats.Duration)

	if w.store != nil {
		if err := w.store.Save(ctx, w.snapshotKey(), mask, stats.Duration); err != nil {
			logging.WarnWithComponent(logging.ComponentBlueNoise, "Failed to save mask snapshot", "error", err)
		}
	}
	return blueNoiseMessage(mask, stats.Duration), nil
}

func blueNoiseMessage(mask *pixbuf.Gray, took time.Duration) workerproto.Message {
	return workerproto.Message{
		ID:       workerproto.IDBlueNoise,
		Type:     workerproto.TypeResult,
		Mask:     mask,
		Duration: took,
	}
}
