// Package pipeline runs the dithering stages over a job image and reports
// progress as workerproto messages.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rmitchellscott/ditherworks/internal/logging"
	"github.com/rmitchellscott/ditherworks/internal/pixbuf"
	"github.com/rmitchellscott/ditherworks/internal/workerproto"
	"github.com/rmitchellscott/ditherworks/internal/workers"
)

// Job is one image to run through the pipeline.
type Job struct {
	ID     string
	Source string
	Image  *pixbuf.RGBA
}

// Emitter receives progress messages in order.
type Emitter func(msg workerproto.Message)

// Orchestrator runs stages sequentially. It is also the port mask workers
// deliver to: bayerlevels and bluenoise messages resolve the aux futures,
// everything else is routed to the reply mailbox by correlation id.
type Orchestrator struct {
	stages  []Stage
	aux     *Aux
	replies *workerproto.Mailbox
}

// New creates an orchestrator over the given stages.
func New(stages []Stage, aux *Aux) *Orchestrator {
	return &Orchestrator{
		stages:  stages,
		aux:     aux,
		replies: workerproto.NewMailbox(),
	}
}

func (o *Orchestrator) Aux() *Aux { return o.aux }

func (o *Orchestrator) Stages() []Stage { return o.stages }

// Replies is the mailbox correlated worker replies land in.
func (o *Orchestrator) Replies() *workerproto.Mailbox { return o.replies }

// Post accepts worker deliveries.
func (o *Orchestrator) Post(msg workerproto.Message) error {
	var err error
	if msg.Type == workerproto.TypeFailed {
		err = msg.Err
		if err == nil {
			err = errors.New("worker reported failure")
		}
	}

	switch msg.ID {
	case workerproto.IDBayerLevels:
		if !o.aux.BayerLevels.Resolve(msg.BayerLevels, err) {
			logging.DebugWithComponent(logging.ComponentOrchestrator, "Ignoring repeated Bayer levels")
		}
		return nil
	case workerproto.IDBlueNoise:
		if err == nil {
			o.aux.SetBlueNoiseDuration(msg.Duration)
		}
		if !o.aux.BlueNoise.Resolve(msg.Mask, err) {
			logging.DebugWithComponent(logging.ComponentOrchestrator, "Ignoring repeated blue noise mask")
		}
		return nil
	default:
		return o.replies.Deliver(msg)
	}
}

// RequestBayerLevels asks the Bayer worker for n levels in the background.
// The result, or the failure, resolves the aux future.
func (o *Orchestrator) RequestBayerLevels(ctx context.Context, bayer *workers.BayerWorker, n int) {
	go func() {
		if err := workers.DeliverBayerLevels(ctx, bayer.Port(o), o.replies, n, o); err != nil {
			logging.WarnWithComponent(logging.ComponentOrchestrator, "Bayer levels unavailable", "error", err)
		}
	}()
}

// Close releases pending mailbox waiters.
func (o *Orchestrator) Close() {
	o.replies.Close()
}

// Run emits the original and grayscale images, then each stage's started
// message followed by its result or failure. A failing stage does not stop
// the job. Run returns early only when ctx is done.
func (o *Orchestrator) Run(ctx context.Context, job Job, emit Emitter) error {
	if job.Image == nil || job.Image.Width == 0 || job.Image.Height == 0 {
		return fmt.Errorf("%w: job %s has no image", pixbuf.ErrPrecondition, job.ID)
	}

	color := pixbuf.RGBFromRGBA(job.Image)
	gray := pixbuf.GrayFromRGBA(job.Image)

	emit(workerproto.Message{ID: workerproto.IDOriginal, Type: workerproto.TypeResult, Title: "Original", Image: color})
	emit(workerproto.Message{ID: workerproto.IDGrayscale, Type: workerproto.TypeResult, Title: "Grayscale", Image: gray})

	for _, stage := range o.stages {
		if err := ctx.Err(); err != nil {
			return err
		}

		emit(workerproto.Message{ID: stage.ID, Type: workerproto.TypeStarted, Title: stage.Title(o.aux)})

		src := gray
		if stage.Input == InputColor {
			src = color
		}

		start := time.Now()
		out, err := o.runStage(ctx, stage, src)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			logging.WarnWithComponent(logging.ComponentOrchestrator, "Stage failed",
				"job_id", job.ID, "stage", stage.ID, "error", err)
			emit(workerproto.Message{ID: stage.ID, Type: workerproto.TypeFailed, Title: stage.Title(o.aux), Err: err})
			continue
		}

		took := time.Since(start)
		logging.DebugWithComponent(logging.ComponentOrchestrator, "Stage finished",
			"job_id", job.ID, "stage", stage.ID, "duration", took)
		emit(workerproto.Message{ID: stage.ID, Type: workerproto.TypeResult, Title: stage.Title(o.aux), Image: out, Duration: took})
	}
	return nil
}

func (o *Orchestrator) runStage(ctx context.Context, stage Stage, src *pixbuf.Buffer[float32]) (*pixbuf.Buffer[float32], error) {
	out, err := stage.Process(ctx, src, o.aux)
	if err != nil {
		return nil, fmt.Errorf("stage %s: %w", stage.ID, err)
	}
	if out == nil {
		return nil, fmt.Errorf("stage %s produced no image", stage.ID)
	}
	if err := pixbuf.CheckFinite(out); err != nil {
		return nil, fmt.Errorf("stage %s: %w", stage.ID, err)
	}
	return out, nil
}
