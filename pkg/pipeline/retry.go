package pipeline

import (
	"context"
	"fmt"

	"github.com/genflowhq/genflow/pkg/models"
)

// SkipReasonMissingEventDetails explains why an optional step stays
// not_requested on retry instead of being forced back to pending.
const SkipReasonMissingEventDetails = "event details were not provided on the original submission"

// RetryResult tells the caller where the resume starts and which steps could
// not be re-queued, with a reason per step rather than a silent stall.
type RetryResult struct {
	StartAt string            `json:"start_at,omitempty"`
	Reset   []string          `json:"reset,omitempty"`
	Skipped map[string]string `json:"skipped,omitempty"`
}

// ResetFailed rewrites every failed entry to pending on a copy of the status
// map. Completed and not_requested entries are left untouched: completed work
// is never redone, and optional steps whose data is missing stay skipped.
func ResetFailed(submission *models.Submission) *RetryResult {
	result := &RetryResult{Skipped: make(map[string]string)}

	for _, step := range models.Chain() {
		status := submission.StepStatusOf(step.Name)

		if status == models.StepStatusFailed {
			merged, overall := Merge(submission.ComponentStatus, step.Name, models.StepStatusPending)
			submission.ComponentStatus = merged
			submission.Status = overall

			result.Reset = append(result.Reset, step.Name)

			continue
		}

		if status == models.StepStatusNotRequested && step.Optional &&
			submission.Inputs.GenerateLandingPage && !submission.Inputs.HasEventDetails() {
			result.Skipped[step.Name] = SkipReasonMissingEventDetails
		}
	}

	if startAt, ok := submission.FirstIncomplete(); ok {
		result.StartAt = startAt
	}

	return result
}

// Retry re-drives the chain for a broken submission: failed steps are reset
// to pending, the reset is persisted, and the engine resumes at the first
// step that is not completed.
func (e *Engine) Retry(ctx context.Context, submissionID string) (*RetryResult, error) {
	submission, err := e.persistence.SubmissionByID(ctx, submissionID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch submission %s: %w", submissionID, err)
	}

	result := ResetFailed(submission)

	if err := e.persistence.SaveSubmission(ctx, submission); err != nil {
		return nil, fmt.Errorf("failed to persist retry reset for %s: %w", submissionID, err)
	}

	if result.StartAt == "" {
		e.logger.InfoContext(ctx, "Nothing to retry, chain already settled", "submission_id", submissionID)

		return result, nil
	}

	e.logger.InfoContext(ctx, "Resuming chain",
		"submission_id", submissionID,
		"start_at", result.StartAt,
		"reset", result.Reset,
	)

	if err := e.Run(ctx, submissionID, result.StartAt); err != nil {
		return result, err
	}

	return result, nil
}
