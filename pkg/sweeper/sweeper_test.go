package sweeper

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genflowhq/genflow/pkg/eventbus"
	"github.com/genflowhq/genflow/pkg/events"
	"github.com/genflowhq/genflow/pkg/models"
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

func (r *recorderBus) Handle(events.EventType, eventbus.EventHandler) {}
func (r *recorderBus) Subscribe(context.Context) error               { return nil }
func (r *recorderBus) GenerateID() string                            { return "test-id" }
func (r *recorderBus) Close() error                                  { return nil }

func (r *recorderBus) published() []eventbus.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]eventbus.Event, len(r.events))
	copy(out, r.events)

	return out
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func saveSubmission(t *testing.T, store *file.Persistence, id string, status map[string]models.StepStatus, overall models.SubmissionStatus) {
	t.Helper()

	submission := &models.Submission{
		ID:              id,
		Inputs:          models.Inputs{Market: "b2b saas", Product: "widget"},
		ComponentStatus: status,
		Status:          overall,
		CreatedAt:       time.Now().UTC(),
	}

	require.NoError(t, store.SaveSubmission(context.Background(), submission))
}

func TestSweep_RepublishesStalePendingSubmissions(t *testing.T) {
	ctx := context.Background()
	store := file.NewPersistence(t.TempDir())
	bus := &recorderBus{}

	saveSubmission(t, store, "stuck", map[string]models.StepStatus{
		models.StepAudience: models.StepStatusCompleted,
		models.StepStrategy: models.StepStatusPending,
	}, models.SubmissionStatusPending)

	// Zero staleness would never match; use a negative window by passing a
	// tiny threshold and waiting it out.
	sweeper, err := NewSweeper(store, bus, testLogger(), "@every 1h", time.Millisecond)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	require.NoError(t, sweeper.Sweep(ctx))

	published := bus.published()
	require.Len(t, published, 1)

	retry, ok := published[0].(events.SubmissionRetry)
	require.True(t, ok)
	assert.Equal(t, "stuck", retry.SubmissionID)
	assert.Equal(t, models.StepStrategy, retry.StartAt)
}

func TestSweep_IgnoresFreshAndSettledSubmissions(t *testing.T) {
	ctx := context.Background()
	store := file.NewPersistence(t.TempDir())
	bus := &recorderBus{}

	// Settled: never touched regardless of age.
	saveSubmission(t, store, "done", map[string]models.StepStatus{
		models.StepAudience: models.StepStatusCompleted,
	}, models.SubmissionStatusCompleted)

	// Failed: waits for an explicit retry, not the sweeper.
	saveSubmission(t, store, "broken", map[string]models.StepStatus{
		models.StepAudience: models.StepStatusFailed,
	}, models.SubmissionStatusFailed)

	// Pending but recently updated: still in flight.
	saveSubmission(t, store, "fresh", map[string]models.StepStatus{
		models.StepAudience: models.StepStatusPending,
	}, models.SubmissionStatusPending)

	sweeper, err := NewSweeper(store, bus, testLogger(), "@every 1h", time.Hour)
	require.NoError(t, err)

	require.NoError(t, sweeper.Sweep(ctx))

	assert.Empty(t, bus.published())
}

func TestNewSweeper_InvalidSchedule(t *testing.T) {
	store := file.NewPersistence(t.TempDir())

	_, err := NewSweeper(store, &recorderBus{}, testLogger(), "not a cron expr", time.Minute)

	assert.Error(t, err)
}

func TestNewSweeper_Defaults(t *testing.T) {
	store := file.NewPersistence(t.TempDir())

	sweeper, err := NewSweeper(store, &recorderBus{}, testLogger(), "", 0)
	require.NoError(t, err)

	assert.Equal(t, defaultSchedule, sweeper.schedule)
	assert.Positive(t, sweeper.staleAfter)
}
