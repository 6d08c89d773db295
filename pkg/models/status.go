package models

// StepStatus represents the lifecycle state of a single pipeline step.
//
// A step moves not_requested -> pending -> completed|failed. A failed step
// re-enters pending only through an explicit retry, and a completed step
// only through an explicit regeneration.
type StepStatus string

const (
	StepStatusPending      StepStatus = "pending"
	StepStatusCompleted    StepStatus = "completed"
	StepStatusFailed       StepStatus = "failed"
	StepStatusNotRequested StepStatus = "not_requested"
)

// IsTerminal reports whether the step needs no further work in the current run.
func (s StepStatus) IsTerminal() bool {
	switch s {
	case StepStatusCompleted, StepStatusFailed, StepStatusNotRequested:
		return true
	default:
		return false
	}
}

// SubmissionStatus is the derived overall state of a submission. It is only
// ever computed by pipeline.Merge, never set directly by callers.
type SubmissionStatus string

const (
	SubmissionStatusPending   SubmissionStatus = "pending"
	SubmissionStatusCompleted SubmissionStatus = "completed"
	SubmissionStatusFailed    SubmissionStatus = "failed"
)
