// Package services holds the business rules between the HTTP surface and the
// persistence layer.
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/genflowhq/genflow/pkg/eventbus"
	"github.com/genflowhq/genflow/pkg/events"
	"github.com/genflowhq/genflow/pkg/models"
	"github.com/genflowhq/genflow/pkg/persistence"
	"github.com/genflowhq/genflow/pkg/pipeline"
)

// ErrSubmissionNotFound is re-exported for callers that only import services.
var ErrSubmissionNotFound = persistence.ErrSubmissionNotFound

// EventPublisher is the slice of the event bus the service needs.
type EventPublisher interface {
	Publish(ctx context.Context, key string, event eventbus.Event) error
}

// Submission owns the submission lifecycle operations invoked from the API.
// It never drives the step chain itself: it records intent and publishes the
// command event the worker consumes.
type Submission struct {
	persistence persistence.Persistence
	bus         EventPublisher
}

// NewSubmission creates a new submission service.
func NewSubmission(store persistence.Persistence, bus EventPublisher) *Submission {
	return &Submission{
		persistence: store,
		bus:         bus,
	}
}

// HealthCheck checks the health of the persistence layer.
func (s *Submission) HealthCheck(ctx context.Context) (string, bool) {
	if s.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := s.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// Create records a new submission with its status map seeded and asks the
// worker to start the chain.
func (s *Submission) Create(ctx context.Context, inputs models.Inputs) (*models.Submission, error) {
	submission := &models.Submission{
		ID:         uuid.New().String(),
		Inputs:     inputs,
		Components: make(map[string]map[string]any),
		CreatedAt:  time.Now().UTC(),
	}
	submission.SeedComponentStatus()

	if err := s.persistence.SaveSubmission(ctx, submission); err != nil {
		return nil, fmt.Errorf("failed to create submission: %w", err)
	}

	if err := s.bus.Publish(ctx, submission.ID, events.SubmissionCreated{
		BaseEvent: events.NewBaseEvent(events.SubmissionCreatedEvent, submission.ID),
	}); err != nil {
		return nil, fmt.Errorf("failed to publish creation event for %s: %w", submission.ID, err)
	}

	return submission, nil
}

// FetchByID returns the full submission record.
func (s *Submission) FetchByID(ctx context.Context, id string) (*models.Submission, error) {
	if id == "" {
		return nil, ErrMissingSubmission
	}

	submission, err := s.persistence.SubmissionByID(ctx, id)
	if err != nil {
		return nil, err
	}

	return submission, nil
}

// Retry resets every failed step to pending, persists the reset so readers
// observe it immediately, and publishes the resume command. The actual chain
// run continues in the background.
func (s *Submission) Retry(ctx context.Context, id string) (*pipeline.RetryResult, error) {
	submission, err := s.FetchByID(ctx, id)
	if err != nil {
		return nil, err
	}

	result := pipeline.ResetFailed(submission)
	if result.StartAt == "" {
		return nil, ErrChainNotRetryable
	}

	if err := s.persistence.SaveSubmission(ctx, submission); err != nil {
		return nil, fmt.Errorf("failed to persist retry reset for %s: %w", id, err)
	}

	if err := s.bus.Publish(ctx, id, events.SubmissionRetry{
		BaseEvent: events.NewBaseEvent(events.SubmissionRetryEvent, id),
		StartAt:   result.StartAt,
	}); err != nil {
		return nil, fmt.Errorf("failed to publish retry event for %s: %w", id, err)
	}

	return result, nil
}

// Regenerate marks exactly one step pending and publishes the regeneration
// command; the worker re-runs that step (and at most its direct dependent).
func (s *Submission) Regenerate(ctx context.Context, id, stepName string) (*models.Submission, error) {
	if stepName == "" {
		return nil, ErrMissingStep
	}

	if _, ok := models.StepByName(stepName); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStep, stepName)
	}

	submission, err := s.FetchByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if submission.StepStatusOf(stepName) == models.StepStatusNotRequested {
		return nil, fmt.Errorf("%w: %s", ErrStepNotRegenerable, stepName)
	}

	merged, overall := pipeline.Merge(submission.ComponentStatus, stepName, models.StepStatusPending)
	submission.ComponentStatus = merged
	submission.Status = overall

	if err := s.persistence.SaveSubmission(ctx, submission); err != nil {
		return nil, fmt.Errorf("failed to persist regeneration of %s for %s: %w", stepName, id, err)
	}

	if err := s.bus.Publish(ctx, id, events.SubmissionRegenerate{
		BaseEvent: events.NewBaseEvent(events.SubmissionRegenerateEvent, id),
		Step:      stepName,
	}); err != nil {
		return nil, fmt.Errorf("failed to publish regenerate event for %s: %w", id, err)
	}

	return submission, nil
}
