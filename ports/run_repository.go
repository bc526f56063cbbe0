package ports

import (
	"context"

	"gortm/domain/run"
)

// RunRepository persists pipeline run records
type RunRepository interface {
	// Create stores a new run
	Create(ctx context.Context, r *run.Run) error

	// Update overwrites the mutable fields of a run
	Update(ctx context.Context, r *run.Run) error

	// Get returns a run by ID, or a NOT_FOUND error
	Get(ctx context.Context, id string) (*run.Run, error)

	// List returns the most recent runs first, optionally limited
	List(ctx context.Context, limit int) ([]*run.Run, error)

	// FindByFingerprint returns the latest completed run with the fingerprint, or a NOT_FOUND error
	FindByFingerprint(ctx context.Context, fingerprint string) (*run.Run, error)
}
