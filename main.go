package main

import (
	// standard library
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	// third-party
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	// internal
	"github.com/rmitchellscott/ditherworks/internal/config"
	"github.com/rmitchellscott/ditherworks/internal/database"
	"github.com/rmitchellscott/ditherworks/internal/events"
	"github.com/rmitchellscott/ditherworks/internal/imageprocessing"
	"github.com/rmitchellscott/ditherworks/internal/logging"
	"github.com/rmitchellscott/ditherworks/internal/pipeline"
	"github.com/rmitchellscott/ditherworks/internal/pool"
	"github.com/rmitchellscott/ditherworks/internal/storage"
	"github.com/rmitchellscott/ditherworks/internal/version"
)

func main() {
	_ = godotenv.Load()

	if len(os.Args) > 1 && (os.Args[1] == "--version" || os.Args[1] == "-v") {
		fmt.Println(version.String())
		os.Exit(0)
	}

	files := os.Args[1:]
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "usage: ditherworks [--version] <image files...>")
		os.Exit(2)
	}

	info := version.Get()
	logging.InfoWithComponent(logging.ComponentStartup, "Starting ditherworks",
		"version", info["version"], "build_time", info["buildTime"],
		"git_commit", info["gitCommit"], "go_version", info["goVersion"])

	cfg, err := config.Load()
	if err != nil {
		logging.ErrorWithComponent(logging.ComponentStartup, "Failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Job history
	var jobs *database.JobService
	if cfg.RecordHistory {
		if err := database.Initialize(); err != nil {
			logging.ErrorWithComponent(logging.ComponentStartup, "Failed to initialize database", "error", err)
			os.Exit(1)
		}
		defer database.Close()
		jobs = database.NewJobService(database.GetDB())
	}

	if cfg.ArtifactMaxAge > 0 {
		if _, err := storage.CleanupOlderThan(cfg.OutputDir, cfg.ArtifactMaxAge); err != nil {
			logging.WarnWithComponent(logging.ComponentStartup, "Failed to clean up old artifacts", "error", err)
		}
		if jobs != nil {
			if _, err := jobs.CleanupOldJobs(ctx, cfg.ArtifactMaxAge); err != nil {
				logging.WarnWithComponent(logging.ComponentStartup, "Failed to clean up old jobs", "error", err)
			}
		}
	}

	// Job pool
	results := make(chan pool.JobResult, len(files))
	opts := pool.OptionsFrom(cfg)
	opts.MaskStore = storage.NewMaskStore(storage.NewFilesystemBackend(cfg.DataDir))
	opts.OnResult = func(r pool.JobResult) { results <- r }

	ev := events.NewService()
	jobPool, err := pool.New(opts, ev)
	if err != nil {
		logging.ErrorWithComponent(logging.ComponentStartup, "Failed to create job pool", "error", err)
		os.Exit(1)
	}

	// Every job emits two leading results plus started and result per stage
	sub := ev.SubscribeAll(len(files) * (2 + 2*len(jobPool.Stages())))
	rec := &recorder{
		artifacts: storage.NewArtifactStore(storage.NewFilesystemBackend(cfg.OutputDir)),
		jobs:      jobs,
		levels:    cfg.Pipeline.Levels,
	}
	recorded := make(chan struct{})
	go func() {
		rec.consume(ctx, sub)
		close(recorded)
	}()

	if err := jobPool.Start(ctx); err != nil {
		logging.ErrorWithComponent(logging.ComponentStartup, "Failed to start job pool", "error", err)
		os.Exit(1)
	}

	// Stop on interrupt
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-quit:
			logging.InfoWithComponent(logging.ComponentStartup, "Shutting down...")
			cancel()
		case <-ctx.Done():
		}
	}()

	submitted := 0
	for _, path := range files {
		source, err := imageprocessing.LoadFile(path, imageprocessing.ProcessingOptions{MaxDimension: cfg.MaxDimension})
		if err != nil {
			logging.ErrorWithComponent(logging.ComponentCLI, "Failed to load image", "path", path, "error", err)
			continue
		}

		id := uuid.New()
		if jobs != nil {
			if _, err := jobs.CreateJob(ctx, id, path, source.Image.Width, source.Image.Height, cfg.Pipeline); err != nil {
				logging.ErrorWithComponent(logging.ComponentCLI, "Failed to record job", "path", path, "error", err)
			}
		}

		logging.InfoWithComponent(logging.ComponentCLI, "Submitting job", "job_id", id, "path", path, "format", source.Format,
			"width", source.Image.Width, "height", source.Image.Height)
		if !jobPool.Submit(pipeline.Job{ID: id.String(), Source: path, Image: source.Image}) {
			finishJob(jobs, id.String(), pool.JobResult{Error: errors.New("job queue full")})
			continue
		}
		submitted++
	}

	failed := 0
wait:
	for done := 0; done < submitted; done++ {
		select {
		case r := <-results:
			if !r.Success {
				failed++
			}
			finishJob(jobs, r.JobID, r)
		case <-ctx.Done():
			break wait
		}
	}

	if err := jobPool.Stop(); err != nil {
		logging.ErrorWithComponent(logging.ComponentStartup, "Failed to stop job pool", "error", err)
	}
	ev.Unsubscribe(sub.ID)
	<-recorded

	logging.InfoWithComponent(logging.ComponentStartup, "Done",
		"jobs", submitted, "failed", failed, "output", cfg.OutputDir, "dropped_events", sub.Dropped())
	if failed > 0 || ctx.Err() != nil {
		os.Exit(1)
	}
}

func finishJob(jobs *database.JobService, jobID string, r pool.JobResult) {
	if jobs == nil {
		return
	}
	id, err := uuid.Parse(jobID)
	if err != nil {
		return
	}
	if err := jobs.FinishJob(context.Background(), id, r.FailedStages, r.Duration, r.Error); err != nil {
		logging.ErrorWithComponent(logging.ComponentCLI, "Failed to finish job", "job_id", jobID, "error", err)
	}
}
