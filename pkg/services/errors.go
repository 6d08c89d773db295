// Package services provides standardized error types for service layer operations.
package services

import "errors"

// Business logic errors indicating client mistakes (4xx responses).
var (
	// Validation errors (400 Bad Request).
	ErrUnknownStep        = errors.New("unknown step")
	ErrInvalidStepStatus  = errors.New("invalid step status")
	ErrMissingSubmission  = errors.New("submission id is required")
	ErrMissingStep        = errors.New("step is required")
	ErrEmptyPayload       = errors.New("payload is required")
	ErrChainNotRetryable  = errors.New("no failed or pending steps to retry")
	ErrStepNotRegenerable = errors.New("step was never requested and cannot be regenerated")
)

// IsValidationError checks if an error is a validation error that should
// return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrUnknownStep) ||
		errors.Is(err, ErrInvalidStepStatus) ||
		errors.Is(err, ErrMissingSubmission) ||
		errors.Is(err, ErrMissingStep) ||
		errors.Is(err, ErrEmptyPayload) ||
		errors.Is(err, ErrChainNotRetryable) ||
		errors.Is(err, ErrStepNotRegenerable)
}
