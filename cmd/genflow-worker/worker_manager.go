package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/genflowhq/genflow/pkg/eventbus"
	"github.com/genflowhq/genflow/pkg/events"
	"github.com/genflowhq/genflow/pkg/models"
	"github.com/genflowhq/genflow/pkg/otelhelper"
	"github.com/genflowhq/genflow/pkg/persistence"
	"github.com/genflowhq/genflow/pkg/pipeline"
	"github.com/genflowhq/genflow/pkg/sweeper"
)

type WorkerManager struct {
	id            string
	logger        *slog.Logger
	persistence   persistence.Persistence
	eventBus      eventbus.EventBus
	invoker       pipeline.StepInvoker
	tracer        trace.Tracer
	sweepSchedule string
	staleAfter    time.Duration
}

func NewWorkerManager(
	id string,
	persistence persistence.Persistence,
	eventBus eventbus.EventBus,
	invoker pipeline.StepInvoker,
	logger *slog.Logger,
	sweepSchedule string,
	staleAfter time.Duration,
) *WorkerManager {
	return &WorkerManager{
		id:            id,
		logger:        logger.With("module", "genflow-worker", "worker_id", id),
		persistence:   persistence,
		eventBus:      eventBus,
		invoker:       invoker,
		sweepSchedule: sweepSchedule,
		staleAfter:    staleAfter,
	}
}

func (w *WorkerManager) Start(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Starting worker manager", "worker_id", w.id)

	tracer, err := otelhelper.NewTracer(ctx, "genflow-worker")
	if err != nil {
		w.logger.WarnContext(ctx, "Tracing disabled, exporter unavailable", "error", err)
	} else {
		w.tracer = tracer
	}

	engine := pipeline.NewEngine(w.persistence, w.invoker, w.eventBus, w.logger)
	defer engine.Close()

	w.eventBus.Handle(events.SubmissionCreatedEvent, w.handleSubmissionCreated(engine))
	w.eventBus.Handle(events.SubmissionRetryEvent, w.handleSubmissionRetry(engine))
	w.eventBus.Handle(events.SubmissionRegenerateEvent, w.handleSubmissionRegenerate(engine))
	w.eventBus.Handle(events.SubmissionCascadeEvent, w.handleSubmissionCascade(engine))

	if err := w.eventBus.Subscribe(ctx); err != nil {
		w.logger.ErrorContext(ctx, "Failed to subscribe to event bus", "error", err)

		return err
	}

	stallSweeper, err := sweeper.NewSweeper(w.persistence, w.eventBus, w.logger, w.sweepSchedule, w.staleAfter)
	if err != nil {
		return err
	}

	if err := stallSweeper.Start(ctx); err != nil {
		return err
	}
	defer stallSweeper.Stop()

	w.logger.InfoContext(ctx, "Worker started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		w.logger.InfoContext(ctx, "Shutting down worker...")
	case <-ctx.Done():
	}

	return nil
}

func (w *WorkerManager) handleSubmissionCreated(engine *pipeline.Engine) eventbus.EventHandler {
	return func(ctx context.Context, event any) error {
		createdEvent, ok := event.(*events.SubmissionCreated)
		if !ok {
			w.logger.ErrorContext(ctx, "Invalid event type for SubmissionCreated")

			return nil
		}

		ctx, span := w.startSpan(ctx, "submission.run", createdEvent.SubmissionID, "")
		defer span.End()

		logger := w.logger.With("submission_id", createdEvent.SubmissionID, "event_id", createdEvent.ID)
		logger.InfoContext(ctx, "Processing submission created event")

		if err := engine.Run(ctx, createdEvent.SubmissionID, models.StepAudience); err != nil {
			otelhelper.SetError(span, err)
			logger.ErrorContext(ctx, "Chain run failed", "error", err)
		}

		// Failures are recorded on the submission itself; the message is acked
		// either way so the chain isn't redelivered into the same failure.
		return nil
	}
}

func (w *WorkerManager) handleSubmissionRetry(engine *pipeline.Engine) eventbus.EventHandler {
	return func(ctx context.Context, event any) error {
		retryEvent, ok := event.(*events.SubmissionRetry)
		if !ok {
			w.logger.ErrorContext(ctx, "Invalid event type for SubmissionRetry")

			return nil
		}

		ctx, span := w.startSpan(ctx, "submission.retry", retryEvent.SubmissionID, retryEvent.StartAt)
		defer span.End()

		logger := w.logger.With("submission_id", retryEvent.SubmissionID, "start_at", retryEvent.StartAt)
		logger.InfoContext(ctx, "Processing submission retry event")

		if _, err := engine.Retry(ctx, retryEvent.SubmissionID); err != nil {
			otelhelper.SetError(span, err)
			logger.ErrorContext(ctx, "Retry run failed", "error", err)
		}

		return nil
	}
}

func (w *WorkerManager) handleSubmissionRegenerate(engine *pipeline.Engine) eventbus.EventHandler {
	return func(ctx context.Context, event any) error {
		regenEvent, ok := event.(*events.SubmissionRegenerate)
		if !ok {
			w.logger.ErrorContext(ctx, "Invalid event type for SubmissionRegenerate")

			return nil
		}

		ctx, span := w.startSpan(ctx, "submission.regenerate", regenEvent.SubmissionID, regenEvent.Step)
		defer span.End()

		logger := w.logger.With("submission_id", regenEvent.SubmissionID, "step", regenEvent.Step)
		logger.InfoContext(ctx, "Processing regenerate event")

		if err := engine.Regenerate(ctx, regenEvent.SubmissionID, regenEvent.Step); err != nil {
			otelhelper.SetError(span, err)
			logger.ErrorContext(ctx, "Regeneration failed", "error", err)
		}

		return nil
	}
}

func (w *WorkerManager) handleSubmissionCascade(engine *pipeline.Engine) eventbus.EventHandler {
	return func(ctx context.Context, event any) error {
		cascadeEvent, ok := event.(*events.SubmissionCascade)
		if !ok {
			w.logger.ErrorContext(ctx, "Invalid event type for SubmissionCascade")

			return nil
		}

		ctx, span := w.startSpan(ctx, "submission.cascade", cascadeEvent.SubmissionID, cascadeEvent.Step)
		defer span.End()

		logger := w.logger.With(
			"submission_id", cascadeEvent.SubmissionID,
			"step", cascadeEvent.Step,
			"upstream", cascadeEvent.UpstreamStep,
		)
		logger.InfoContext(ctx, "Processing cascade event")

		if err := engine.RegenerateDependent(ctx, cascadeEvent.SubmissionID, cascadeEvent.Step); err != nil {
			otelhelper.SetError(span, err)
			logger.ErrorContext(ctx, "Cascade regeneration failed", "error", err)
		}

		return nil
	}
}

func (w *WorkerManager) startSpan(ctx context.Context, name, submissionID, step string) (context.Context, trace.Span) {
	if w.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}

	attrs := []attribute.KeyValue{
		attribute.String(otelhelper.SubmissionIDKey, submissionID),
		attribute.String(otelhelper.WorkerIDKey, w.id),
	}
	if step != "" {
		attrs = append(attrs, attribute.String(otelhelper.StepNameKey, step))
	}

	return otelhelper.StartSpan(ctx, w.tracer, name, attrs...)
}
