package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genflowhq/genflow/pkg/events"
	"github.com/genflowhq/genflow/pkg/models"
	"github.com/genflowhq/genflow/pkg/persistence/file"
)

func completedSubmission(t *testing.T, store *file.Persistence, engine *Engine) *models.Submission {
	t.Helper()

	ctx := context.Background()
	submission := newTestSubmission(t, store, models.Inputs{Market: "b2b saas", Product: "widget"})
	require.NoError(t, engine.Run(ctx, submission.ID, ""))

	stored, err := store.SubmissionByID(ctx, submission.ID)
	require.NoError(t, err)

	return stored
}

func (s *cascadeScheduler) pendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.pending)
}

func TestEngineRegenerate_ReRunsSingleStep(t *testing.T) {
	ctx := context.Background()
	store := file.NewPersistence(t.TempDir())
	invoker := newStubInvoker()

	engine := NewEngine(store, invoker, nil, testLogger())
	defer engine.Close()

	submission := completedSubmission(t, store, engine)
	firstRunCalls := len(invoker.invokedSteps())

	require.NoError(t, engine.Regenerate(ctx, submission.ID, models.StepStrategy))

	steps := invoker.invokedSteps()
	require.Len(t, steps, firstRunCalls+1)
	assert.Equal(t, models.StepStrategy, steps[len(steps)-1])

	stored, err := store.SubmissionByID(ctx, submission.ID)
	require.NoError(t, err)

	assert.Equal(t, models.StepStatusCompleted, stored.StepStatusOf(models.StepStrategy))
	assert.Equal(t, models.SubmissionStatusCompleted, stored.Status)
}

func TestEngineRegenerate_UsesFreshUpstreamContext(t *testing.T) {
	ctx := context.Background()
	store := file.NewPersistence(t.TempDir())
	invoker := newStubInvoker()

	engine := NewEngine(store, invoker, nil, testLogger())
	defer engine.Close()

	submission := completedSubmission(t, store, engine)

	require.NoError(t, engine.Regenerate(ctx, submission.ID, models.StepContentPlan))

	last := invoker.requests[len(invoker.requests)-1]

	assert.Equal(t, models.StepContentPlan, last.Step)
	require.NotNil(t, last.PreviousOutput)
	assert.Equal(t, models.StepStrategy, last.PreviousOutput["step"])
}

func TestEngineRegenerate_SchedulesCascadeForMaterializedDependent(t *testing.T) {
	ctx := context.Background()
	store := file.NewPersistence(t.TempDir())
	invoker := newStubInvoker()

	engine := NewEngine(store, invoker, &recorderBus{}, testLogger())
	defer engine.Close()

	submission := completedSubmission(t, store, engine)

	require.NoError(t, engine.Regenerate(ctx, submission.ID, models.StepStrategy))

	// content_plan is completed, so its re-run is queued.
	assert.Equal(t, 1, engine.cascades.pendingCount())
}

func TestEngineRegenerate_NoCascadeForNotRequestedDependent(t *testing.T) {
	ctx := context.Background()
	store := file.NewPersistence(t.TempDir())
	invoker := newStubInvoker()

	engine := NewEngine(store, invoker, &recorderBus{}, testLogger())
	defer engine.Close()

	submission := completedSubmission(t, store, engine)

	// landing_page was never requested, so regenerating content_plan queues
	// nothing downstream.
	require.NoError(t, engine.Regenerate(ctx, submission.ID, models.StepContentPlan))

	assert.Equal(t, 0, engine.cascades.pendingCount())
}

func TestEngineRegenerateDependent_NeverCascades(t *testing.T) {
	ctx := context.Background()
	store := file.NewPersistence(t.TempDir())
	invoker := newStubInvoker()

	engine := NewEngine(store, invoker, &recorderBus{}, testLogger())
	defer engine.Close()

	submission := completedSubmission(t, store, engine)

	// Even with a materialized dependent, the cascade hop is terminal.
	require.NoError(t, engine.RegenerateDependent(ctx, submission.ID, models.StepStrategy))

	assert.Equal(t, 0, engine.cascades.pendingCount())
}

func TestEngineRegenerate_BurstCollapsesToOneCascade(t *testing.T) {
	ctx := context.Background()
	store := file.NewPersistence(t.TempDir())
	invoker := newStubInvoker()

	engine := NewEngine(store, invoker, &recorderBus{}, testLogger())
	defer engine.Close()

	submission := completedSubmission(t, store, engine)

	require.NoError(t, engine.Regenerate(ctx, submission.ID, models.StepStrategy))
	require.NoError(t, engine.Regenerate(ctx, submission.ID, models.StepStrategy))

	assert.Equal(t, 1, engine.cascades.pendingCount())
}

func TestEngineRegenerate_FailureMarksStepFailed(t *testing.T) {
	ctx := context.Background()
	store := file.NewPersistence(t.TempDir())
	invoker := newStubInvoker()

	bus := &recorderBus{}
	engine := NewEngine(store, invoker, bus, testLogger())
	defer engine.Close()

	submission := completedSubmission(t, store, engine)

	invoker.failOn[models.StepStrategy] = errors.New("model unavailable")

	err := engine.Regenerate(ctx, submission.ID, models.StepStrategy)
	require.Error(t, err)

	stored, err := store.SubmissionByID(ctx, submission.ID)
	require.NoError(t, err)

	assert.Equal(t, models.StepStatusFailed, stored.StepStatusOf(models.StepStrategy))
	assert.Equal(t, models.SubmissionStatusFailed, stored.Status)

	// The old payload survives a failed regeneration.
	assert.NotNil(t, stored.ComponentOf(models.StepStrategy))

	assert.Contains(t, bus.eventTypes(), events.StepFailedEvent)
	assert.Equal(t, 0, engine.cascades.pendingCount())
}

func TestEngineRegenerate_UnknownStep(t *testing.T) {
	store := file.NewPersistence(t.TempDir())
	engine := NewEngine(store, newStubInvoker(), nil, testLogger())
	defer engine.Close()

	err := engine.Regenerate(context.Background(), "whatever", "nonsense")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "nonsense")
}

func TestCascadeScheduler_StopCancelsPending(t *testing.T) {
	bus := &recorderBus{}
	scheduler := newCascadeScheduler(bus, testLogger())

	scheduler.Schedule("sub-1", models.StepContentPlan, models.StepStrategy)
	require.Equal(t, 1, scheduler.pendingCount())

	scheduler.Stop()

	assert.Equal(t, 0, scheduler.pendingCount())

	// Stopped schedulers refuse new work.
	scheduler.Schedule("sub-2", models.StepContentPlan, models.StepStrategy)
	assert.Equal(t, 0, scheduler.pendingCount())
}
