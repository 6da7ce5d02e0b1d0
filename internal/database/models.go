package database

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"

	StageStatusCompleted = "completed"
	StageStatusFailed    = "failed"
)

// Job is one source image run through the pipeline
type Job struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Source       string         `gorm:"not null" json:"source"`
	Width        int            `json:"width"`
	Height       int            `json:"height"`
	Status       string         `gorm:"size:20;not null;index" json:"status"`
	Options      datatypes.JSON `json:"options"`
	FailedStages int            `gorm:"default:0" json:"failed_stages"`
	Error        string         `json:"error,omitempty"`
	DurationMs   int64          `json:"duration_ms"`
	FinishedAt   *time.Time     `json:"finished_at,omitempty"`

	// Timestamps
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Associations
	StageRuns []StageRun `gorm:"foreignKey:JobID;constraint:OnDelete:CASCADE" json:"stage_runs,omitempty"`
}

// BeforeCreate sets UUID if not already set
func (j *Job) BeforeCreate(tx *gorm.DB) error {
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	return nil
}

// StageRun is the outcome of one stage within a job
type StageRun struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	JobID       uuid.UUID `gorm:"type:uuid;not null;index" json:"job_id"`
	StageID     string    `gorm:"size:64;not null" json:"stage_id"`
	Title       string    `json:"title"`
	Status      string    `gorm:"size:20;not null" json:"status"`
	Error       string    `json:"error,omitempty"`
	ArtifactKey string    `json:"artifact_key,omitempty"`
	Checksum    string    `gorm:"size:64" json:"checksum,omitempty"`
	Size        int64     `json:"size"`
	DurationMs  int64     `json:"duration_ms"`
	CreatedAt   time.Time `json:"created_at"`

	// Association
	Job Job `gorm:"foreignKey:JobID" json:"-"`
}

// BeforeCreate sets UUID if not already set
func (s *StageRun) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// GetAllModels returns every model managed by migrations
func GetAllModels() []interface{} {
	return []interface{}{
		&Job{},
		&StageRun{},
	}
}
