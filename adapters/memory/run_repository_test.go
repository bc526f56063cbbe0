package memory

import (
	"context"
	"testing"
	"time"

	"gortm/domain/requirement"
	"gortm/domain/run"
	"gortm/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func TestRunRepositoryLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewRunRepository()

	rn := run.NewRun("run-1", "file-1", "reqs.xlsx", "Reqs", false, "fp", t0)
	require.NoError(t, repo.Create(ctx, rn))
	assert.True(t, errors.HasCode(repo.Create(ctx, rn), errors.CodeValidationError))

	// the stored copy is independent of the caller's value
	rn.Status = run.StatusProcessing
	stored, err := repo.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, run.StatusPending, stored.Status)

	rn.Complete(requirement.Summary{TotalRequirements: 4}, "RTM_reqs.xlsx", t0.Add(time.Minute))
	require.NoError(t, repo.Update(ctx, rn))
	stored, err = repo.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, run.StatusCompleted, stored.Status)
	assert.Equal(t, 4, stored.TotalRequirements)

	_, err = repo.Get(ctx, "missing")
	assert.True(t, errors.HasCode(err, errors.CodeNotFound))
	assert.True(t, errors.HasCode(repo.Update(ctx, run.NewRun("missing", "", "", "", false, "", t0)), errors.CodeNotFound))
}

func TestRunRepositoryListNewestFirst(t *testing.T) {
	ctx := context.Background()
	repo := NewRunRepository()
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, repo.Create(ctx, run.NewRun(id, "", "f.xlsx", "", false, "", t0.Add(time.Duration(i)*time.Hour))))
	}

	runs, err := repo.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "c", runs[0].ID)
	assert.Equal(t, "a", runs[2].ID)

	runs, err = repo.List(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestRunRepositoryFindByFingerprint(t *testing.T) {
	ctx := context.Background()
	repo := NewRunRepository()

	older := run.NewRun("older", "", "f.xlsx", "", false, "fp", t0)
	older.Complete(requirement.Summary{}, "old.xlsx", t0.Add(time.Minute))
	newer := run.NewRun("newer", "", "f.xlsx", "", false, "fp", t0)
	newer.Complete(requirement.Summary{}, "new.xlsx", t0.Add(time.Hour))
	failed := run.NewRun("failed", "", "f.xlsx", "", false, "fp", t0)
	failed.Fail(errors.CodeUnreadableWorkbook, "bad file", t0.Add(2*time.Hour))
	for _, rn := range []*run.Run{older, newer, failed} {
		require.NoError(t, repo.Create(ctx, rn))
	}

	found, err := repo.FindByFingerprint(ctx, "fp")
	require.NoError(t, err)
	assert.Equal(t, "newer", found.ID)

	_, err = repo.FindByFingerprint(ctx, "other")
	assert.True(t, errors.HasCode(err, errors.CodeNotFound))
}
