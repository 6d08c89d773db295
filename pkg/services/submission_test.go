package services

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genflowhq/genflow/pkg/eventbus"
	"github.com/genflowhq/genflow/pkg/events"
	"github.com/genflowhq/genflow/pkg/models"
	"github.com/genflowhq/genflow/pkg/persistence"
	"github.com/genflowhq/genflow/pkg/persistence/file"
)

type recorderBus struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (r *recorderBus) Publish(_ context.Context, _ string, event eventbus.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, event)

	return nil
}

func (r *recorderBus) last() eventbus.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.events) == 0 {
		return nil
	}

	return r.events[len(r.events)-1]
}

func newTestService(t *testing.T) (*Submission, *file.Persistence, *recorderBus) {
	t.Helper()

	store := file.NewPersistence(t.TempDir())
	bus := &recorderBus{}

	return NewSubmission(store, bus), store, bus
}

func TestSubmissionCreate(t *testing.T) {
	ctx := context.Background()
	service, store, bus := newTestService(t)

	submission, err := service.Create(ctx, models.Inputs{Market: "b2b saas", Product: "widget"})
	require.NoError(t, err)

	assert.NotEmpty(t, submission.ID)
	assert.Equal(t, models.SubmissionStatusPending, submission.Status)
	assert.Equal(t, models.StepStatusPending, submission.StepStatusOf(models.StepAudience))
	assert.Equal(t, models.StepStatusNotRequested, submission.StepStatusOf(models.StepLandingPage))

	stored, err := store.SubmissionByID(ctx, submission.ID)
	require.NoError(t, err)
	assert.Equal(t, submission.ID, stored.ID)

	created, ok := bus.last().(events.SubmissionCreated)
	require.True(t, ok)
	assert.Equal(t, submission.ID, created.SubmissionID)
}

func TestSubmissionFetchByID_NotFound(t *testing.T) {
	service, _, _ := newTestService(t)

	_, err := service.FetchByID(context.Background(), "missing")

	assert.True(t, persistence.IsSubmissionNotFound(err))
}

func TestSubmissionFetchByID_EmptyID(t *testing.T) {
	service, _, _ := newTestService(t)

	_, err := service.FetchByID(context.Background(), "")

	assert.ErrorIs(t, err, ErrMissingSubmission)
}

func TestSubmissionRetry_ResetsAndPublishes(t *testing.T) {
	ctx := context.Background()
	service, store, bus := newTestService(t)

	submission, err := service.Create(ctx, models.Inputs{Market: "b2b saas", Product: "widget"})
	require.NoError(t, err)

	submission.ComponentStatus[models.StepAudience] = models.StepStatusCompleted
	submission.ComponentStatus[models.StepStrategy] = models.StepStatusFailed
	submission.Status = models.SubmissionStatusFailed
	require.NoError(t, store.SaveSubmission(ctx, submission))

	result, err := service.Retry(ctx, submission.ID)
	require.NoError(t, err)

	assert.Equal(t, models.StepStrategy, result.StartAt)
	assert.Equal(t, []string{models.StepStrategy}, result.Reset)

	// The reset is visible to readers before the worker picks it up.
	stored, err := store.SubmissionByID(ctx, submission.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StepStatusPending, stored.StepStatusOf(models.StepStrategy))
	assert.Equal(t, models.SubmissionStatusPending, stored.Status)

	retry, ok := bus.last().(events.SubmissionRetry)
	require.True(t, ok)
	assert.Equal(t, models.StepStrategy, retry.StartAt)
}

func TestSubmissionRetry_SettledChain(t *testing.T) {
	ctx := context.Background()
	service, store, _ := newTestService(t)

	submission, err := service.Create(ctx, models.Inputs{Market: "b2b saas", Product: "widget"})
	require.NoError(t, err)

	for _, step := range models.Chain() {
		if !step.Optional {
			submission.ComponentStatus[step.Name] = models.StepStatusCompleted
		}
	}

	submission.Status = models.SubmissionStatusCompleted
	require.NoError(t, store.SaveSubmission(ctx, submission))

	_, err = service.Retry(ctx, submission.ID)

	assert.ErrorIs(t, err, ErrChainNotRetryable)
}

func TestSubmissionRegenerate(t *testing.T) {
	ctx := context.Background()
	service, store, bus := newTestService(t)

	submission, err := service.Create(ctx, models.Inputs{Market: "b2b saas", Product: "widget"})
	require.NoError(t, err)

	submission.ComponentStatus[models.StepAudience] = models.StepStatusCompleted
	require.NoError(t, store.SaveSubmission(ctx, submission))

	updated, err := service.Regenerate(ctx, submission.ID, models.StepAudience)
	require.NoError(t, err)

	assert.Equal(t, models.StepStatusPending, updated.StepStatusOf(models.StepAudience))
	assert.Equal(t, models.SubmissionStatusPending, updated.Status)

	regen, ok := bus.last().(events.SubmissionRegenerate)
	require.True(t, ok)
	assert.Equal(t, models.StepAudience, regen.Step)
}

func TestSubmissionRegenerate_UnknownStep(t *testing.T) {
	ctx := context.Background()
	service, _, _ := newTestService(t)

	submission, err := service.Create(ctx, models.Inputs{Market: "b2b saas", Product: "widget"})
	require.NoError(t, err)

	_, err = service.Regenerate(ctx, submission.ID, "nonsense")

	assert.ErrorIs(t, err, ErrUnknownStep)
	assert.True(t, IsValidationError(err))
}

func TestSubmissionRegenerate_NotRequestedStep(t *testing.T) {
	ctx := context.Background()
	service, _, _ := newTestService(t)

	submission, err := service.Create(ctx, models.Inputs{Market: "b2b saas", Product: "widget"})
	require.NoError(t, err)

	_, err = service.Regenerate(ctx, submission.ID, models.StepLandingPage)

	assert.ErrorIs(t, err, ErrStepNotRegenerable)
}

func TestSubmissionRegenerate_MissingStepName(t *testing.T) {
	service, _, _ := newTestService(t)

	_, err := service.Regenerate(context.Background(), "sub-1", "")

	assert.ErrorIs(t, err, ErrMissingStep)
}

func TestSubmissionHealthCheck(t *testing.T) {
	service, _, _ := newTestService(t)

	_, healthy := service.HealthCheck(context.Background())

	assert.True(t, healthy)
}
