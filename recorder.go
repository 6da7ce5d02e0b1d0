package main

import (
	"context"

	"github.com/google/uuid"

	"github.com/rmitchellscott/ditherworks/internal/database"
	"github.com/rmitchellscott/ditherworks/internal/events"
	"github.com/rmitchellscott/ditherworks/internal/imageprocessing"
	"github.com/rmitchellscott/ditherworks/internal/logging"
	"github.com/rmitchellscott/ditherworks/internal/storage"
	"github.com/rmitchellscott/ditherworks/internal/workerproto"
)

// continuousStages produce arbitrary gray values rather than palette levels
var continuousStages = map[string]bool{
	workerproto.IDOriginal:  true,
	workerproto.IDGrayscale: true,
	"blur-spatial":          true,
	"blur-fft":              true,
}

// recorder writes stage results as PNG artifacts and, when history is
// enabled, records a stage run per result or failure.
type recorder struct {
	artifacts *storage.ArtifactStore
	jobs      *database.JobService // nil disables history
	levels    int
}

func (r *recorder) bitDepth(stageID string) int {
	if continuousStages[stageID] {
		return 8
	}
	return imageprocessing.BitDepthForLevels(r.levels)
}

// consume handles events until the subscription is closed
func (r *recorder) consume(ctx context.Context, sub *events.Subscriber) {
	for event := range sub.Events {
		r.handle(ctx, event)
	}
}

func (r *recorder) handle(ctx context.Context, event events.Event) {
	switch event.Type {
	case workerproto.TypeStarted:
		logging.DebugWithComponent(logging.ComponentCLI, "Stage started", "job_id", event.JobID, "stage", event.StageID, "title", event.Title)
		return
	case workerproto.TypeFailed:
		logging.WarnWithComponent(logging.ComponentCLI, "Stage failed", "job_id", event.JobID, "stage", event.StageID, "error", event.Error)
		r.record(ctx, event, &database.StageRun{Status: database.StageStatusFailed, Error: event.Error})
		return
	case workerproto.TypeResult:
	default:
		return
	}

	data, err := imageprocessing.EncodePNG(event.Image, r.bitDepth(event.StageID))
	if err != nil {
		logging.ErrorWithComponent(logging.ComponentCLI, "Failed to encode stage result", "job_id", event.JobID, "stage", event.StageID, "error", err)
		r.record(ctx, event, &database.StageRun{Status: database.StageStatusFailed, Error: err.Error()})
		return
	}

	artifact, err := r.artifacts.StoreImage(ctx, event.JobID, event.StageID, data)
	if err != nil {
		logging.ErrorWithComponent(logging.ComponentCLI, "Failed to store stage result", "job_id", event.JobID, "stage", event.StageID, "error", err)
		r.record(ctx, event, &database.StageRun{Status: database.StageStatusFailed, Error: err.Error()})
		return
	}

	logging.InfoWithComponent(logging.ComponentCLI, "Stage result written",
		"job_id", event.JobID, "stage", event.StageID, "title", event.Title, "key", artifact.Key, "bytes", artifact.Size)
	r.record(ctx, event, &database.StageRun{
		Status:      database.StageStatusCompleted,
		ArtifactKey: artifact.Key,
		Checksum:    artifact.Checksum,
		Size:        artifact.Size,
	})
}

func (r *recorder) record(ctx context.Context, event events.Event, run *database.StageRun) {
	if r.jobs == nil {
		return
	}
	jobID, err := uuid.Parse(event.JobID)
	if err != nil {
		logging.WarnWithComponent(logging.ComponentCLI, "Skipping history for job with foreign id", "job_id", event.JobID)
		return
	}
	run.JobID = jobID
	run.StageID = event.StageID
	run.Title = event.Title
	run.DurationMs = event.Duration.Milliseconds()
	if err := r.jobs.RecordStage(ctx, run); err != nil {
		logging.ErrorWithComponent(logging.ComponentCLI, "Failed to record stage", "job_id", event.JobID, "stage", event.StageID, "error", err)
	}
}
