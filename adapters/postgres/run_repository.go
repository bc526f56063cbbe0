package postgres

import (
	"context"
	"database/sql"
	stderrors "errors"

	"gortm/domain/run"
	"gortm/internal/errors"
	"gortm/ports"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const runColumns = `
	id, file_id, file_name, focus_sheet, include_all_sheets, fingerprint, status,
	total_requirements, fallback_count, prompt_tokens, completion_tokens,
	output_file, error_code, error_message, summary, created_at, completed_at`

// RunRepositoryImpl implements RunRepository for PostgreSQL
type RunRepositoryImpl struct {
	db *sqlx.DB
}

// NewRunRepository creates a new PostgreSQL run repository
func NewRunRepository(db *sqlx.DB) ports.RunRepository {
	return &RunRepositoryImpl{db: db}
}

// Create stores a new run
func (r *RunRepositoryImpl) Create(ctx context.Context, rn *run.Run) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO rtm_runs (`+runColumns+`)
		VALUES (
			:id, :file_id, :file_name, :focus_sheet, :include_all_sheets, :fingerprint, :status,
			:total_requirements, :fallback_count, :prompt_tokens, :completion_tokens,
			:output_file, :error_code, :error_message, :summary, :created_at, :completed_at
		)
	`, rn)
	if err != nil {
		var pqErr *pq.Error
		if stderrors.As(err, &pqErr) && pqErr.Code == "23505" { // unique_violation
			return errors.ValidationError("run " + rn.ID + " already exists")
		}
		return errors.DatabaseError("failed to create run", err)
	}
	return nil
}

// Update overwrites the mutable fields of a run
func (r *RunRepositoryImpl) Update(ctx context.Context, rn *run.Run) error {
	result, err := r.db.NamedExecContext(ctx, `
		UPDATE rtm_runs SET
			status = :status,
			total_requirements = :total_requirements,
			fallback_count = :fallback_count,
			prompt_tokens = :prompt_tokens,
			completion_tokens = :completion_tokens,
			output_file = :output_file,
			error_code = :error_code,
			error_message = :error_message,
			summary = :summary,
			completed_at = :completed_at
		WHERE id = :id
	`, rn)
	if err != nil {
		return errors.DatabaseError("failed to update run", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return errors.DatabaseError("failed to update run", err)
	}
	if rows == 0 {
		return errors.NotFound("run " + rn.ID)
	}
	return nil
}

// Get returns a run by ID
func (r *RunRepositoryImpl) Get(ctx context.Context, id string) (*run.Run, error) {
	var rn run.Run
	err := r.db.GetContext(ctx, &rn, `SELECT `+runColumns+` FROM rtm_runs WHERE id = $1`, id)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NotFound("run " + id)
	}
	if err != nil {
		return nil, errors.DatabaseError("failed to get run", err)
	}
	return &rn, nil
}

// List returns the most recent runs first
func (r *RunRepositoryImpl) List(ctx context.Context, limit int) ([]*run.Run, error) {
	var runs []*run.Run
	var err error
	if limit > 0 {
		err = r.db.SelectContext(ctx, &runs, `SELECT `+runColumns+` FROM rtm_runs ORDER BY created_at DESC LIMIT $1`, limit)
	} else {
		err = r.db.SelectContext(ctx, &runs, `SELECT `+runColumns+` FROM rtm_runs ORDER BY created_at DESC`)
	}
	if err != nil {
		return nil, errors.DatabaseError("failed to list runs", err)
	}
	return runs, nil
}

// FindByFingerprint returns the latest completed run with the fingerprint
func (r *RunRepositoryImpl) FindByFingerprint(ctx context.Context, fingerprint string) (*run.Run, error) {
	var rn run.Run
	err := r.db.GetContext(ctx, &rn, `
		SELECT `+runColumns+`
		FROM rtm_runs
		WHERE fingerprint = $1 AND status = $2
		ORDER BY completed_at DESC
		LIMIT 1
	`, fingerprint, run.StatusCompleted)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NotFound("run with fingerprint " + fingerprint)
	}
	if err != nil {
		return nil, errors.DatabaseError("failed to find run by fingerprint", err)
	}
	return &rn, nil
}
