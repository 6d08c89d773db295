package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/genflowhq/genflow/pkg/events"
	"github.com/genflowhq/genflow/pkg/generator"
	"github.com/genflowhq/genflow/pkg/models"
)

// cascadeDelay is the short, bounded pause between a regenerated step landing
// and its dependent being re-queued.
const cascadeDelay = 2 * time.Second

// Regenerate re-runs exactly one step using the freshest upstream payload as
// context, then schedules a single-hop cascade for the step's direct
// dependent if that dependent is already materialized.
func (e *Engine) Regenerate(ctx context.Context, submissionID, stepName string) error {
	return e.regenerate(ctx, submissionID, stepName, true)
}

// RegenerateDependent handles a cascade: it re-runs the dependent step and
// never schedules further cascades, bounding regeneration to one hop by
// construction.
func (e *Engine) RegenerateDependent(ctx context.Context, submissionID, stepName string) error {
	return e.regenerate(ctx, submissionID, stepName, false)
}

func (e *Engine) regenerate(ctx context.Context, submissionID, stepName string, allowCascade bool) error {
	logger := e.logger.With("submission_id", submissionID, "step", stepName)

	step, ok := models.StepByName(stepName)
	if !ok {
		return fmt.Errorf("unknown step %q", stepName)
	}

	submission, err := e.persistence.SubmissionByID(ctx, submissionID)
	if err != nil {
		return fmt.Errorf("failed to fetch submission %s: %w", submissionID, err)
	}

	if err := e.mergeAndSave(ctx, submission, step.Name, models.StepStatusPending, nil, nil); err != nil {
		return err
	}

	var previous map[string]any
	if step.DependsOn != "" {
		previous = submission.ComponentOf(step.DependsOn)
	}

	logger.InfoContext(ctx, "Regenerating step")

	raw, err := e.invoker.Generate(ctx, generator.Request{
		Step:           step.Name,
		SubmissionID:   submission.ID,
		Inputs:         submission.Inputs,
		PreviousOutput: previous,
	})
	if err != nil {
		logger.ErrorContext(ctx, "Regeneration failed", "error", err)

		if mergeErr := e.mergeAndSave(ctx, submission, step.Name, models.StepStatusFailed, nil, nil); mergeErr != nil {
			return mergeErr
		}

		e.publish(ctx, submission.ID, events.StepFailed{
			BaseEvent: events.NewBaseEvent(events.StepFailedEvent, submission.ID),
			Step:      step.Name,
			Error:     err.Error(),
		})

		return fmt.Errorf("regeneration of step %s failed for submission %s: %w", step.Name, submission.ID, err)
	}

	payload, markersFound := Normalize(step.Name, raw)
	if !markersFound {
		logger.WarnContext(ctx, "No marker fields found in regenerated payload, storing as ambiguous")

		payload["_ambiguous"] = true
	}

	if err := e.mergeAndSave(ctx, submission, step.Name, models.StepStatusCompleted, payload, raw); err != nil {
		return err
	}

	e.publish(ctx, submission.ID, events.StepCompleted{
		BaseEvent: events.NewBaseEvent(events.StepCompletedEvent, submission.ID),
		Step:      step.Name,
		Ambiguous: !markersFound,
	})

	if !allowCascade {
		return nil
	}

	dependent, ok := models.DependentOf(step.Name)
	if !ok {
		return nil
	}

	// Only a dependent the user has already seen (completed, or requested and
	// in flight) is re-queued; a not_requested dependent stays untouched.
	if submission.StepStatusOf(dependent.Name) == models.StepStatusNotRequested {
		return nil
	}

	logger.InfoContext(ctx, "Scheduling cascade for dependent step", "dependent", dependent.Name)

	e.cascades.Schedule(submission.ID, dependent.Name, step.Name)

	return nil
}

// cascadeScheduler owns the single-shot delayed cascade jobs. Scheduling a
// cascade for a submission cancels any cascade already pending for it, so a
// burst of regenerations collapses to one dependent re-run.
type cascadeScheduler struct {
	bus    EventPublisher
	logger *slog.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
	stopped bool
}

func newCascadeScheduler(bus EventPublisher, logger *slog.Logger) *cascadeScheduler {
	return &cascadeScheduler{
		bus:     bus,
		logger:  logger.With("module", "cascade_scheduler"),
		pending: make(map[string]*time.Timer),
	}
}

// Schedule queues a cascade event for the dependent step after cascadeDelay.
func (s *cascadeScheduler) Schedule(submissionID, dependentStep, upstreamStep string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped || s.bus == nil {
		return
	}

	if timer, exists := s.pending[submissionID]; exists {
		timer.Stop()
	}

	s.pending[submissionID] = time.AfterFunc(cascadeDelay, func() {
		s.mu.Lock()
		delete(s.pending, submissionID)
		s.mu.Unlock()

		event := events.SubmissionCascade{
			BaseEvent:    events.NewBaseEvent(events.SubmissionCascadeEvent, submissionID),
			Step:         dependentStep,
			UpstreamStep: upstreamStep,
		}

		if err := s.bus.Publish(context.Background(), submissionID, event); err != nil {
			s.logger.Error("Failed to publish cascade event",
				"submission_id", submissionID,
				"step", dependentStep,
				"error", err,
			)
		}
	})
}

// Stop cancels all pending cascades.
func (s *cascadeScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true

	for id, timer := range s.pending {
		timer.Stop()
		delete(s.pending, id)
	}
}
