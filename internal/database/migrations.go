package database

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"

	"github.com/rmitchellscott/ditherworks/internal/logging"
)

// RunMigrations runs any pending database migrations using gormigrate
func RunMigrations(db *gorm.DB) error {
	logging.InfoWithComponent(logging.ComponentDatabase, "Running database migrations...")

	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "202610170000_create_jobs_and_stage_runs",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&Job{}, &StageRun{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&StageRun{}, &Job{})
			},
		},
		{
			ID: "202610170001_add_stage_runs_job_stage_index",
			Migrate: func(tx *gorm.DB) error {
				if tx.Migrator().HasIndex(&StageRun{}, "idx_stage_runs_job_stage") {
					return nil
				}
				return tx.Exec("CREATE INDEX idx_stage_runs_job_stage ON stage_runs (job_id, stage_id)").Error
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropIndex(&StageRun{}, "idx_stage_runs_job_stage")
			},
		},
	})

	if err := m.Migrate(); err != nil {
		return err
	}

	logging.InfoWithComponent(logging.ComponentDatabase, "Database migrations completed successfully")
	return nil
}
