// Package events defines the event types that drive pipeline execution.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/genflowhq/genflow/pkg/models"
)

type EventType string

// Topic carries every pipeline event.
const Topic = "genflow.pipeline"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Commands consumed by the worker.
	SubmissionCreatedEvent    EventType = "submission.created"
	SubmissionRetryEvent      EventType = "submission.retry"
	SubmissionRegenerateEvent EventType = "submission.regenerate"
	SubmissionCascadeEvent    EventType = "submission.cascade"

	// Notifications published by the worker.
	StepCompletedEvent      EventType = "step.completed"
	StepFailedEvent         EventType = "step.failed"
	SubmissionFinishedEvent EventType = "submission.finished"
)

type BaseEvent struct {
	ID           string    `json:"id"`
	Type         EventType `json:"type"`
	Timestamp    time.Time `json:"timestamp"`
	SubmissionID string    `json:"submission_id"`
	WorkerID     string    `json:"worker_id,omitempty"`
}

// NewBaseEvent stamps a fresh event envelope.
func NewBaseEvent(eventType EventType, submissionID string) BaseEvent {
	return BaseEvent{
		ID:           uuid.New().String(),
		Type:         eventType,
		Timestamp:    time.Now().UTC(),
		SubmissionID: submissionID,
	}
}

// SubmissionCreated asks the worker to run the full chain from the first step.
type SubmissionCreated struct {
	BaseEvent
}

func (e SubmissionCreated) GetType() EventType {
	return SubmissionCreatedEvent
}

// SubmissionRetry asks the worker to resume the chain at the first
// non-completed step; failed steps have already been reset to pending.
type SubmissionRetry struct {
	BaseEvent

	StartAt string `json:"start_at,omitempty"`
}

func (e SubmissionRetry) GetType() EventType {
	return SubmissionRetryEvent
}

// SubmissionRegenerate asks the worker to re-run exactly one step.
type SubmissionRegenerate struct {
	BaseEvent

	Step string `json:"step"`
}

func (e SubmissionRegenerate) GetType() EventType {
	return SubmissionRegenerateEvent
}

// SubmissionCascade asks the worker to re-run the direct dependent of a
// regenerated step, using the newly produced upstream payload. Cascades never
// chain: handling one must not publish another.
type SubmissionCascade struct {
	BaseEvent

	Step         string `json:"step"`
	UpstreamStep string `json:"upstream_step"`
}

func (e SubmissionCascade) GetType() EventType {
	return SubmissionCascadeEvent
}

type StepCompleted struct {
	BaseEvent

	Step      string `json:"step"`
	Ambiguous bool   `json:"ambiguous,omitempty"`
}

func (e StepCompleted) GetType() EventType {
	return StepCompletedEvent
}

type StepFailed struct {
	BaseEvent

	Step  string `json:"step"`
	Error string `json:"error"`
}

func (e StepFailed) GetType() EventType {
	return StepFailedEvent
}

type SubmissionFinished struct {
	BaseEvent

	Status models.SubmissionStatus `json:"status"`
}

func (e SubmissionFinished) GetType() EventType {
	return SubmissionFinishedEvent
}
