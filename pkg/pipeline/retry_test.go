package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genflowhq/genflow/pkg/models"
	"github.com/genflowhq/genflow/pkg/persistence/file"
)

func TestResetFailed_FailedStepsBecomePending(t *testing.T) {
	submission := &models.Submission{
		Inputs: models.Inputs{Market: "b2b saas", Product: "widget"},
		ComponentStatus: map[string]models.StepStatus{
			models.StepAudience:    models.StepStatusCompleted,
			models.StepStrategy:    models.StepStatusFailed,
			models.StepContentPlan: models.StepStatusPending,
			models.StepLandingPage: models.StepStatusNotRequested,
			models.StepEventPromo:  models.StepStatusNotRequested,
		},
		Status: models.SubmissionStatusFailed,
	}

	result := ResetFailed(submission)

	assert.Equal(t, models.StepStatusPending, submission.StepStatusOf(models.StepStrategy))
	assert.Equal(t, models.StepStatusCompleted, submission.StepStatusOf(models.StepAudience))
	assert.Equal(t, models.SubmissionStatusPending, submission.Status)

	assert.Equal(t, models.StepStrategy, result.StartAt)
	assert.Equal(t, []string{models.StepStrategy}, result.Reset)
}

func TestResetFailed_SettledChainHasNoStart(t *testing.T) {
	submission := &models.Submission{
		ComponentStatus: map[string]models.StepStatus{
			models.StepAudience:    models.StepStatusCompleted,
			models.StepStrategy:    models.StepStatusCompleted,
			models.StepContentPlan: models.StepStatusCompleted,
			models.StepLandingPage: models.StepStatusNotRequested,
			models.StepEventPromo:  models.StepStatusNotRequested,
		},
		Status: models.SubmissionStatusCompleted,
	}

	result := ResetFailed(submission)

	assert.Empty(t, result.StartAt)
	assert.Empty(t, result.Reset)
}

func TestResetFailed_ReportsUnretryableOptionalSteps(t *testing.T) {
	// Landing page was requested but skipped for missing event details; a
	// retry cannot revive it and says so instead of silently stalling.
	submission := &models.Submission{
		Inputs: models.Inputs{
			Market:              "b2b saas",
			Product:             "widget",
			GenerateLandingPage: true,
		},
		ComponentStatus: map[string]models.StepStatus{
			models.StepAudience:    models.StepStatusCompleted,
			models.StepStrategy:    models.StepStatusFailed,
			models.StepContentPlan: models.StepStatusPending,
			models.StepLandingPage: models.StepStatusNotRequested,
			models.StepEventPromo:  models.StepStatusNotRequested,
		},
		Status: models.SubmissionStatusFailed,
	}

	result := ResetFailed(submission)

	assert.Equal(t, models.StepStrategy, result.StartAt)
	assert.Equal(t, SkipReasonMissingEventDetails, result.Skipped[models.StepLandingPage])
	assert.Equal(t, SkipReasonMissingEventDetails, result.Skipped[models.StepEventPromo])
}

func TestEngineRetry_ResumesAfterFailure(t *testing.T) {
	ctx := context.Background()
	store := file.NewPersistence(t.TempDir())

	invoker := newStubInvoker()
	invoker.failOn[models.StepStrategy] = errors.New("model unavailable")

	engine := NewEngine(store, invoker, nil, testLogger())
	defer engine.Close()

	submission := newTestSubmission(t, store, models.Inputs{Market: "b2b saas", Product: "widget"})

	require.Error(t, engine.Run(ctx, submission.ID, ""))

	// Service recovers; retry resumes at the failed step without redoing
	// audience.
	delete(invoker.failOn, models.StepStrategy)

	result, err := engine.Retry(ctx, submission.ID)
	require.NoError(t, err)

	assert.Equal(t, models.StepStrategy, result.StartAt)
	assert.Equal(t, []string{
		models.StepAudience,
		models.StepStrategy, // first, failed attempt
		models.StepStrategy,
		models.StepContentPlan,
	}, invoker.invokedSteps())

	stored, err := store.SubmissionByID(ctx, submission.ID)
	require.NoError(t, err)

	assert.Equal(t, models.SubmissionStatusCompleted, stored.Status)
}

func TestEngineRetry_SettledChainIsNoOp(t *testing.T) {
	ctx := context.Background()
	store := file.NewPersistence(t.TempDir())
	invoker := newStubInvoker()

	engine := NewEngine(store, invoker, nil, testLogger())
	defer engine.Close()

	submission := newTestSubmission(t, store, models.Inputs{Market: "b2b saas", Product: "widget"})

	require.NoError(t, engine.Run(ctx, submission.ID, ""))

	firstRunCalls := len(invoker.invokedSteps())

	result, err := engine.Retry(ctx, submission.ID)
	require.NoError(t, err)

	assert.Empty(t, result.StartAt)
	assert.Len(t, invoker.invokedSteps(), firstRunCalls)
}
