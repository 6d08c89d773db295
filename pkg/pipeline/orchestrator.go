package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/genflowhq/genflow/pkg/eventbus"
	"github.com/genflowhq/genflow/pkg/events"
	"github.com/genflowhq/genflow/pkg/generator"
	"github.com/genflowhq/genflow/pkg/models"
	"github.com/genflowhq/genflow/pkg/persistence"
)

// StepInvoker is the external generation service seen from the pipeline.
type StepInvoker interface {
	Generate(ctx context.Context, req generator.Request) (any, error)
}

// EventPublisher is the slice of the event bus the engine needs.
type EventPublisher interface {
	Publish(ctx context.Context, key string, event eventbus.Event) error
}

// Engine drives the step chain for submissions. At most one engine run is
// active per submission at a time; concurrent triggers are last-write-wins.
type Engine struct {
	persistence persistence.Persistence
	invoker     StepInvoker
	bus         EventPublisher
	cascades    *cascadeScheduler
	logger      *slog.Logger
}

// NewEngine wires the pipeline engine.
func NewEngine(store persistence.Persistence, invoker StepInvoker, bus EventPublisher, logger *slog.Logger) *Engine {
	return &Engine{
		persistence: store,
		invoker:     invoker,
		bus:         bus,
		cascades:    newCascadeScheduler(bus, logger),
		logger:      logger.With("module", "pipeline"),
	}
}

// Close cancels any pending cascade timers.
func (e *Engine) Close() {
	e.cascades.Stop()
}

// Run executes the step chain for a submission in dependency order, starting
// at startAt (empty means the first step). Every step boundary persists the
// merged record, so a crash between steps loses at most one step's result.
// The chain halts on the first failed required step.
func (e *Engine) Run(ctx context.Context, submissionID, startAt string) error {
	logger := e.logger.With("submission_id", submissionID)

	submission, err := e.persistence.SubmissionByID(ctx, submissionID)
	if err != nil {
		return fmt.Errorf("failed to fetch submission %s: %w", submissionID, err)
	}

	steps := models.Chain()

	startIdx := 0

	if startAt != "" {
		for i, step := range steps {
			if step.Name == startAt {
				startIdx = i

				break
			}
		}
	}

	// Steps never see more than one hop of prior context: the input for a
	// step is the submission inputs plus the previous step's payload only.
	var previous map[string]any
	if startIdx > 0 {
		previous = submission.ComponentOf(steps[startIdx-1].Name)
	}

	for _, step := range steps[startIdx:] {
		stepLogger := logger.With("step", step.Name)

		// Idempotent resume: completed steps with a materialized payload are
		// never re-invoked.
		if submission.StepStatusOf(step.Name) == models.StepStatusCompleted && submission.ComponentOf(step.Name) != nil {
			stepLogger.InfoContext(ctx, "Step already completed, skipping")

			previous = submission.ComponentOf(step.Name)

			continue
		}

		// Optional steps with an unmet gate are recorded as not_requested.
		// This is a skip, not a failure.
		if step.Optional && !e.optionalStepRequested(submission) {
			stepLogger.InfoContext(ctx, "Optional step not requested, skipping")

			if err := e.mergeAndSave(ctx, submission, step.Name, models.StepStatusNotRequested, nil, nil); err != nil {
				return err
			}

			continue
		}

		stepLogger.InfoContext(ctx, "Executing step")

		raw, err := e.invoker.Generate(ctx, generator.Request{
			Step:           step.Name,
			SubmissionID:   submission.ID,
			Inputs:         submission.Inputs,
			PreviousOutput: previous,
		})
		if err != nil {
			stepLogger.ErrorContext(ctx, "Step failed, halting chain", "error", err)

			if mergeErr := e.mergeAndSave(ctx, submission, step.Name, models.StepStatusFailed, nil, nil); mergeErr != nil {
				return mergeErr
			}

			e.publish(ctx, submission.ID, events.StepFailed{
				BaseEvent: events.NewBaseEvent(events.StepFailedEvent, submission.ID),
				Step:      step.Name,
				Error:     err.Error(),
			})

			return fmt.Errorf("step %s failed for submission %s: %w", step.Name, submission.ID, err)
		}

		payload, markersFound := Normalize(step.Name, raw)
		if !markersFound {
			// Ambiguous payloads are still stored, flagged so operators can
			// find them; the user sees a completed step.
			stepLogger.WarnContext(ctx, "No marker fields found in payload, storing as ambiguous")

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

		previous = payload
	}

	logger.InfoContext(ctx, "Chain finished", "status", submission.Status)

	e.publish(ctx, submission.ID, events.SubmissionFinished{
		BaseEvent: events.NewBaseEvent(events.SubmissionFinishedEvent, submission.ID),
		Status:    submission.Status,
	})

	return nil
}

// optionalStepRequested reports whether the optional trailing steps should
// run: the user asked for them and the event details they need are present.
func (e *Engine) optionalStepRequested(submission *models.Submission) bool {
	return submission.Inputs.GenerateLandingPage && submission.Inputs.HasEventDetails()
}

// mergeAndSave applies the status merger and persists the submission. This is
// the only place the engine mutates a submission; all writes go through the
// merger's overwrite-by-key semantics.
func (e *Engine) mergeAndSave(ctx context.Context, submission *models.Submission, step string, status models.StepStatus, payload map[string]any, raw any) error {
	merged, overall := Merge(submission.ComponentStatus, step, status)
	submission.ComponentStatus = merged
	submission.Status = overall

	if payload != nil {
		if submission.Components == nil {
			submission.Components = make(map[string]map[string]any)
		}

		submission.Components[step] = payload
		submission.Output = rawAsObject(raw)
	}

	if err := e.persistence.SaveSubmission(ctx, submission); err != nil {
		return fmt.Errorf("failed to persist submission %s after step %s: %w", submission.ID, step, err)
	}

	return nil
}

func (e *Engine) publish(ctx context.Context, submissionID string, event eventbus.Event) {
	if e.bus == nil {
		return
	}

	if err := e.bus.Publish(ctx, submissionID, event); err != nil {
		e.logger.ErrorContext(ctx, "Failed to publish event", "event_type", event.GetType(), "error", err)
	}
}

// rawAsObject keeps the display copy of the most recent raw payload usable
// even when the service answered with a bare value.
func rawAsObject(raw any) map[string]any {
	if raw == nil {
		return nil
	}

	if obj, ok := raw.(map[string]any); ok {
		return obj
	}

	return map[string]any{"value": raw}
}
