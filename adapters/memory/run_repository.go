// Package memory holds in-process repository implementations used when no
// database is configured.
package memory

import (
	"context"
	"sort"
	"sync"

	"gortm/domain/run"
	"gortm/internal/errors"
	"gortm/ports"
)

// RunRepository keeps runs in a map. Stored runs are copied on the way in and out.
type RunRepository struct {
	mu   sync.RWMutex
	runs map[string]run.Run
}

// NewRunRepository creates an empty in-memory run repository
func NewRunRepository() ports.RunRepository {
	return &RunRepository{runs: make(map[string]run.Run)}
}

// Create stores a new run
func (r *RunRepository) Create(ctx context.Context, rn *run.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.runs[rn.ID]; exists {
		return errors.ValidationError("run " + rn.ID + " already exists")
	}
	r.runs[rn.ID] = *rn
	return nil
}

// Update overwrites a stored run
func (r *RunRepository) Update(ctx context.Context, rn *run.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.runs[rn.ID]; !exists {
		return errors.NotFound("run " + rn.ID)
	}
	r.runs[rn.ID] = *rn
	return nil
}

// Get returns a run by ID
func (r *RunRepository) Get(ctx context.Context, id string) (*run.Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rn, ok := r.runs[id]
	if !ok {
		return nil, errors.NotFound("run " + id)
	}
	return &rn, nil
}

// List returns the most recent runs first
func (r *RunRepository) List(ctx context.Context, limit int) ([]*run.Run, error) {
	r.mu.RLock()
	out := make([]*run.Run, 0, len(r.runs))
	for _, rn := range r.runs {
		rn := rn
		out = append(out, &rn)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// FindByFingerprint returns the latest completed run with the fingerprint
func (r *RunRepository) FindByFingerprint(ctx context.Context, fingerprint string) (*run.Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var latest *run.Run
	for _, rn := range r.runs {
		rn := rn
		if rn.Fingerprint != fingerprint || rn.Status != run.StatusCompleted {
			continue
		}
		if latest == nil || rn.CompletedAt != nil && latest.CompletedAt != nil && rn.CompletedAt.After(*latest.CompletedAt) {
			latest = &rn
		}
	}
	if latest == nil {
		return nil, errors.NotFound("run with fingerprint " + fingerprint)
	}
	return latest, nil
}
