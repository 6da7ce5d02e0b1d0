// Package workers runs the auxiliary mask producers. Each worker owns its
// caches and talks to orchestrators only through workerproto messages.
package workers

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/rmitchellscott/ditherworks/internal/logging"
	"github.com/rmitchellscott/ditherworks/internal/masks"
	"github.com/rmitchellscott/ditherworks/internal/pixbuf"
	"github.com/rmitchellscott/ditherworks/internal/workerproto"
)

var ErrWorkerStopped = errors.New("worker stopped")

type bayerRequest struct {
	msg     workerproto.Message
	replyTo workerproto.Port
}

// BayerWorker serves normalized Bayer levels from its own BayerCache.
type BayerWorker struct {
	cache *masks.BayerCache
	inbox chan bayerRequest
	done  chan struct{}
}

func NewBayerWorker(buffer int) *BayerWorker {
	return &BayerWorker{
		cache: masks.NewBayerCache(),
		inbox: make(chan bayerRequest, max(buffer, 1)),
		done:  make(chan struct{}),
	}
}

// Cache exposes the worker's cache for instrumentation.
func (w *BayerWorker) Cache() *masks.BayerCache { return w.cache }

// Port returns a Port that enqueues requests whose replies go to replyTo.
func (w *BayerWorker) Port(replyTo workerproto.Port) workerproto.Port {
	return workerproto.PortFunc(func(msg workerproto.Message) error {
		select {
		case <-w.done:
			return ErrWorkerStopped
		default:
		}
		select {
		case w.inbox <- bayerRequest{msg: msg, replyTo: replyTo}:
			return nil
		case <-w.done:
			return ErrWorkerStopped
		}
	})
}

// Run serves requests until ctx is done.
func (w *BayerWorker) Run(ctx context.Context) error {
	defer close(w.done)
	logging.DebugWithComponent(logging.ComponentBayer, "Bayer worker started")

	for {
		select {
		case <-ctx.Done():
			logging.DebugWithComponent(logging.ComponentBayer, "Bayer worker stopped")
			return nil
		case req := <-w.inbox:
			reply := workerproto.Message{ID: req.msg.ID, Type: workerproto.TypeResult, Level: req.msg.Level}
			mask, err := w.cache.Normalized(req.msg.Level)
			if err != nil {
				reply.Type = workerproto.TypeFailed
				reply.Err = err
			} else {
				reply.Mask = mask
			}
			if err := req.replyTo.Post(reply); err != nil {
				logging.WarnWithComponent(logging.ComponentBayer, "Failed to deliver Bayer level",
					"id", req.msg.ID, "level", req.msg.Level, "error", err)
			}
		}
	}
}

// FetchBayerLevels requests levels 0..n-1 concurrently, each under its own
// correlation id, and returns them in level order.
func FetchBayerLevels(ctx context.Context, port workerproto.Port, replies *workerproto.Mailbox, n int) ([]*pixbuf.Gray, error) {
	levels := make([]*pixbuf.Gray, n)
	g, ctx := errgroup.WithContext(ctx)
	for level := 0; level < n; level++ {
		g.Go(func() error {
			reply, err := workerproto.Request(ctx, port, replies, workerproto.Message{Level: level})
			if err != nil {
				return fmt.Errorf("bayer level %d: %w", level, err)
			}
			levels[level] = reply.Mask
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return levels, nil
}

// DeliverBayerLevels fetches n levels and posts them to out as a single
// bayerlevels message. Failures are posted as a failed message.
func DeliverBayerLevels(ctx context.Context, port workerproto.Port, replies *workerproto.Mailbox, n int, out workerproto.Port) error {
	levels, err := FetchBayerLevels(ctx, port, replies, n)
	msg := workerproto.Message{ID: workerproto.IDBayerLevels, Type: workerproto.TypeResult, BayerLevels: levels}
	if err != nil {
		msg.Type = workerproto.TypeFailed
		msg.Err = err
	}
	if postErr := out.Post(msg); postErr != nil {
		return errors.Join(err, postErr)
	}
	return err
}
