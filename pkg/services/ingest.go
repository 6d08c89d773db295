package services

import (
	"context"
	"fmt"

	"github.com/genflowhq/genflow/pkg/models"
	"github.com/genflowhq/genflow/pkg/persistence"
	"github.com/genflowhq/genflow/pkg/pipeline"
)

// IngestRequest is one out-of-band step result pushed by the generation
// service.
type IngestRequest struct {
	SubmissionID string
	Step         string
	Payload      any
	Status       string // empty defaults to completed
}

// IngestResult acknowledges the merge.
type IngestResult struct {
	SubmissionID    string                       `json:"submission_id"`
	Step            string                       `json:"step"`
	ComponentStatus models.StepStatus            `json:"component_status"`
	OverallStatus   models.SubmissionStatus      `json:"overall_status"`
	StatusMap       map[string]models.StepStatus `json:"status_map"`
	Ambiguous       bool                         `json:"ambiguous,omitempty"`
}

// Ingestor applies asynchronously-arriving step results to the submission
// record. The merge is an overwrite-by-key, so replaying the same callback is
// idempotent. The ingestor never drives the next step; chain continuation is
// the worker's job.
type Ingestor struct {
	persistence persistence.Persistence
}

// NewIngestor creates a callback ingestor service.
func NewIngestor(store persistence.Persistence) *Ingestor {
	return &Ingestor{persistence: store}
}

// Ingest validates, normalizes and merges one pushed step result. Validation
// failures reject the callback before any mutation.
func (ing *Ingestor) Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	if req.SubmissionID == "" {
		return nil, ErrMissingSubmission
	}

	if req.Step == "" {
		return nil, ErrMissingStep
	}

	if _, ok := models.StepByName(req.Step); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStep, req.Step)
	}

	status, err := reportedStatus(req.Status)
	if err != nil {
		return nil, err
	}

	if req.Payload == nil && status == models.StepStatusCompleted {
		return nil, ErrEmptyPayload
	}

	submission, err := ing.persistence.SubmissionByID(ctx, req.SubmissionID)
	if err != nil {
		return nil, err
	}

	var (
		payload   map[string]any
		ambiguous bool
	)

	if req.Payload != nil {
		var markersFound bool

		payload, markersFound = pipeline.Normalize(req.Step, req.Payload)
		ambiguous = !markersFound

		if ambiguous {
			payload["_ambiguous"] = true
		}
	}

	merged, overall := pipeline.Merge(submission.ComponentStatus, req.Step, status)
	submission.ComponentStatus = merged
	submission.Status = overall

	if payload != nil && status == models.StepStatusCompleted {
		if submission.Components == nil {
			submission.Components = make(map[string]map[string]any)
		}

		submission.Components[req.Step] = payload

		if raw, ok := req.Payload.(map[string]any); ok {
			submission.Output = raw
		}
	}

	if err := ing.persistence.SaveSubmission(ctx, submission); err != nil {
		return nil, fmt.Errorf("failed to persist callback for %s: %w", req.SubmissionID, err)
	}

	return &IngestResult{
		SubmissionID:    submission.ID,
		Step:            req.Step,
		ComponentStatus: status,
		OverallStatus:   submission.Status,
		StatusMap:       submission.ComponentStatus,
		Ambiguous:       ambiguous,
	}, nil
}

// reportedStatus maps the optional callback status field, defaulting to
// completed when absent.
func reportedStatus(status string) (models.StepStatus, error) {
	switch status {
	case "":
		return models.StepStatusCompleted, nil
	case string(models.StepStatusCompleted):
		return models.StepStatusCompleted, nil
	case string(models.StepStatusFailed):
		return models.StepStatusFailed, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrInvalidStepStatus, status)
	}
}
