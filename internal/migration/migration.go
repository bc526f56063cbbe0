package migration

import (
	"context"

	"gortm/internal/errors"

	"github.com/jmoiron/sqlx"
)

// Migrator defines the interface for database migration operations
type Migrator interface {
	Run(ctx context.Context, db *sqlx.DB) error
	Version() string
}

// MigrationRunner handles database schema migrations
type MigrationRunner struct {
	version string
}

// NewRunner creates a new migration runner
func NewRunner() *MigrationRunner {
	return &MigrationRunner{
		version: "1.1.0",
	}
}

// Version returns the migration version
func (r *MigrationRunner) Version() string {
	return r.version
}

// Run executes all database migrations in the correct order
func (r *MigrationRunner) Run(ctx context.Context, db *sqlx.DB) error {
	if err := r.createRunsTable(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create rtm_runs table")
	}

	if err := r.addRunUsageColumns(ctx, db); err != nil {
		return errors.Wrap(err, "failed to add rtm_runs usage columns")
	}

	if err := r.createIndexes(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create indexes")
	}

	return nil
}

func (r *MigrationRunner) createRunsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS rtm_runs (
			id UUID PRIMARY KEY,
			file_id VARCHAR(64) NOT NULL,
			file_name TEXT NOT NULL,
			focus_sheet TEXT NOT NULL DEFAULT '',
			include_all_sheets BOOLEAN NOT NULL DEFAULT false,
			fingerprint VARCHAR(64) NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'pending',
			total_requirements INTEGER NOT NULL DEFAULT 0,
			fallback_count INTEGER NOT NULL DEFAULT 0,
			output_file TEXT NOT NULL DEFAULT '',
			error_code VARCHAR(50) NOT NULL DEFAULT '',
			error_message TEXT NOT NULL DEFAULT '',
			summary JSONB,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			completed_at TIMESTAMP WITH TIME ZONE
		)
	`)
	return err
}

func (r *MigrationRunner) addRunUsageColumns(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		DO $$
		BEGIN
			IF NOT EXISTS (
				SELECT 1 FROM information_schema.columns
				WHERE table_name = 'rtm_runs' AND column_name = 'prompt_tokens'
			) THEN
				ALTER TABLE rtm_runs ADD COLUMN prompt_tokens INTEGER NOT NULL DEFAULT 0;
			END IF;

			IF NOT EXISTS (
				SELECT 1 FROM information_schema.columns
				WHERE table_name = 'rtm_runs' AND column_name = 'completion_tokens'
			) THEN
				ALTER TABLE rtm_runs ADD COLUMN completion_tokens INTEGER NOT NULL DEFAULT 0;
			END IF;
		END $$;
	`)
	return err
}

func (r *MigrationRunner) createIndexes(ctx context.Context, db *sqlx.DB) error {
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_rtm_runs_fingerprint ON rtm_runs(fingerprint)",
		"CREATE INDEX IF NOT EXISTS idx_rtm_runs_created_at ON rtm_runs(created_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_rtm_runs_status ON rtm_runs(status)",
	}

	for _, idx := range indexes {
		if _, err := db.ExecContext(ctx, idx); err != nil {
			return err
		}
	}
	return nil
}
