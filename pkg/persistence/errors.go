// Package persistence provides standardized error types for storage operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrSubmissionNotFound indicates no submission exists for the given id.
	ErrSubmissionNotFound = errors.New("submission not found")

	// ErrSubmissionAlreadyExists indicates a create collided with an existing id.
	ErrSubmissionAlreadyExists = errors.New("submission already exists")
)

// SubmissionError wraps submission-related storage errors with context.
type SubmissionError struct {
	Op           string // Operation being performed (e.g., "GetByID", "Save")
	SubmissionID string
	Err          error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("%s operation failed for submission %s: %v", e.Op, e.SubmissionID, e.Err)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

func (e *SubmissionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewSubmissionError creates a new submission error with context.
func NewSubmissionError(op, submissionID string, err error) *SubmissionError {
	return &SubmissionError{
		Op:           op,
		SubmissionID: submissionID,
		Err:          err,
	}
}

// IsSubmissionNotFound checks if an error indicates a missing submission.
func IsSubmissionNotFound(err error) bool {
	return errors.Is(err, ErrSubmissionNotFound)
}
