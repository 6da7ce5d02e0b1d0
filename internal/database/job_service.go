package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/rmitchellscott/ditherworks/internal/logging"
)

// JobService handles job history operations
type JobService struct {
	db *gorm.DB
}

// NewJobService creates a new job service
func NewJobService(db *gorm.DB) *JobService {
	return &JobService{db: db}
}

// CreateJob records a job as running. options is stored as JSON.
func (js *JobService) CreateJob(ctx context.Context, id uuid.UUID, source string, width, height int, options any) (*Job, error) {
	raw, err := json.Marshal(options)
	if err != nil {
		return nil, fmt.Errorf("failed to encode job options: %w", err)
	}

	job := &Job{
		ID:      id,
		Source:  source,
		Width:   width,
		Height:  height,
		Status:  JobStatusRunning,
		Options: datatypes.JSON(raw),
	}
	if err := js.db.WithContext(ctx).Create(job).Error; err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}
	return job, nil
}

// RecordStage appends a stage outcome to a job
func (js *JobService) RecordStage(ctx context.Context, run *StageRun) error {
	if run.JobID == uuid.Nil {
		return fmt.Errorf("stage run %s has no job", run.StageID)
	}
	if err := js.db.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("failed to record stage %s: %w", run.StageID, err)
	}
	return nil
}

// FinishJob marks a job completed, or failed when jobErr is set
func (js *JobService) FinishJob(ctx context.Context, id uuid.UUID, failedStages int, duration time.Duration, jobErr error) error {
	now := time.Now()
	updates := map[string]interface{}{
		"status":        JobStatusCompleted,
		"failed_stages": failedStages,
		"duration_ms":   duration.Milliseconds(),
		"finished_at":   &now,
	}
	if jobErr != nil {
		updates["status"] = JobStatusFailed
		updates["error"] = jobErr.Error()
	}

	result := js.db.WithContext(ctx).Model(&Job{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to finish job: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("job %s: %w", id, gorm.ErrRecordNotFound)
	}
	return nil
}

// GetJob loads a job with its stage runs in recorded order
func (js *JobService) GetJob(ctx context.Context, id uuid.UUID) (*Job, error) {
	var job Job
	err := js.db.WithContext(ctx).
		Preload("StageRuns", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		First(&job, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// ListRecentJobs returns the newest jobs first
func (js *JobService) ListRecentJobs(ctx context.Context, limit int) ([]Job, error) {
	var jobs []Job
	err := js.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&jobs).Error
	return jobs, err
}

// CleanupOldJobs removes finished jobs last updated before maxAge ago,
// together with their stage runs
func (js *JobService) CleanupOldJobs(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().Add(-maxAge)

	var removed int64
	err := js.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []uuid.UUID
		if err := tx.Model(&Job{}).
			Where("status IN ? AND updated_at < ?", []string{JobStatusCompleted, JobStatusFailed}, cutoff).
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}

		if err := tx.Where("job_id IN ?", ids).Delete(&StageRun{}).Error; err != nil {
			return err
		}
		result := tx.Where("id IN ?", ids).Delete(&Job{})
		removed = result.RowsAffected
		return result.Error
	})
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup old jobs: %w", err)
	}

	if removed > 0 {
		logging.InfoWithComponent(logging.ComponentDatabase, "Cleaned up old jobs", "count", removed)
	}

	return removed, nil
}
