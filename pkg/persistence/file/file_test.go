package file

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genflowhq/genflow/pkg/models"
	"github.com/genflowhq/genflow/pkg/persistence"
)

func testSubmission(id string) *models.Submission {
	submission := &models.Submission{
		ID:         id,
		Inputs:     models.Inputs{Market: "b2b saas", Product: "widget"},
		Components: make(map[string]map[string]any),
		CreatedAt:  time.Now().UTC(),
	}
	submission.SeedComponentStatus()

	return submission
}

func TestSaveAndLoadSubmission(t *testing.T) {
	ctx := context.Background()
	store := NewPersistence(t.TempDir())

	original := testSubmission("sub-1")
	original.Components[models.StepAudience] = map[string]any{"segments": []any{"smb"}}

	require.NoError(t, store.SaveSubmission(ctx, original))

	loaded, err := store.SubmissionByID(ctx, "sub-1")
	require.NoError(t, err)

	assert.Equal(t, original.ID, loaded.ID)
	assert.Equal(t, original.Inputs, loaded.Inputs)
	assert.Equal(t, models.StepStatusPending, loaded.StepStatusOf(models.StepAudience))
	assert.Contains(t, loaded.ComponentOf(models.StepAudience), "segments")
	assert.False(t, loaded.UpdatedAt.IsZero())
}

func TestSaveSubmission_Upserts(t *testing.T) {
	ctx := context.Background()
	store := NewPersistence(t.TempDir())

	submission := testSubmission("sub-1")
	require.NoError(t, store.SaveSubmission(ctx, submission))

	firstUpdate := submission.UpdatedAt

	submission.ComponentStatus[models.StepAudience] = models.StepStatusCompleted
	require.NoError(t, store.SaveSubmission(ctx, submission))

	loaded, err := store.SubmissionByID(ctx, "sub-1")
	require.NoError(t, err)

	assert.Equal(t, models.StepStatusCompleted, loaded.StepStatusOf(models.StepAudience))
	assert.False(t, loaded.UpdatedAt.Before(firstUpdate))
}

func TestSubmissionByID_NotFound(t *testing.T) {
	store := NewPersistence(t.TempDir())

	_, err := store.SubmissionByID(context.Background(), "missing")

	assert.True(t, persistence.IsSubmissionNotFound(err))
}

func TestSubmissions_SortedNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := NewPersistence(t.TempDir())

	older := testSubmission("older")
	older.CreatedAt = time.Now().UTC().Add(-time.Hour)
	require.NoError(t, store.SaveSubmission(ctx, older))

	newer := testSubmission("newer")
	require.NoError(t, store.SaveSubmission(ctx, newer))

	all, err := store.Submissions(ctx)
	require.NoError(t, err)

	require.Len(t, all, 2)
	assert.Equal(t, "newer", all[0].ID)
	assert.Equal(t, "older", all[1].ID)
}

func TestSubmissions_EmptyStore(t *testing.T) {
	store := NewPersistence(t.TempDir())

	all, err := store.Submissions(context.Background())

	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestNewPersistence_StripsFileScheme(t *testing.T) {
	dir := t.TempDir()
	store := NewPersistence("file://" + dir)

	assert.NoError(t, store.HealthCheck(context.Background()))
}
