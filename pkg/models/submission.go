// Package models defines the core domain models for the generation pipeline.
package models

import "time"

// Inputs are the user-provided parameters driving the whole chain. They are
// mutable only to append fields a retry needs, never destructively rewritten.
type Inputs struct {
	Market       string         `json:"market"                validate:"required"`
	Product      string         `json:"product"               validate:"required"`
	AudienceHint string         `json:"audience_hint,omitempty"`
	Extra        map[string]any `json:"extra,omitempty"`

	// Event fields used by the optional trailing steps.
	GenerateLandingPage bool   `json:"generate_landing_page"`
	EventName           string `json:"event_name,omitempty"`
	EventDate           string `json:"event_date,omitempty"`
	EventLocation       string `json:"event_location,omitempty"`
}

// HasEventDetails reports whether the optional trailing steps have the data
// they need to run.
func (i Inputs) HasEventDetails() bool {
	return i.EventName != "" && i.EventDate != ""
}

// Submission is the aggregate root: one user request and the evolving record
// of its generation chain. It is mutated exclusively through per-step merge
// operations; readers may observe it at any point between merges.
type Submission struct {
	ID     string           `json:"id"`
	Inputs Inputs           `json:"inputs"`
	Status SubmissionStatus `json:"status"`

	// Components maps step name to the normalized payload that step produced.
	Components map[string]map[string]any `json:"components"`

	// ComponentStatus maps step name to its lifecycle state. A step absent
	// from the map reads as not_requested.
	ComponentStatus map[string]StepStatus `json:"component_status"`

	// Output is a convenience copy of the most recently completed step's raw
	// payload, kept for display. Not authoritative; Components is.
	Output map[string]any `json:"output,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StepStatusOf returns the recorded status for a step, treating a missing
// entry as not_requested.
func (s *Submission) StepStatusOf(step string) StepStatus {
	if status, ok := s.ComponentStatus[step]; ok {
		return status
	}

	return StepStatusNotRequested
}

// ComponentOf returns the normalized payload a step produced, or nil.
func (s *Submission) ComponentOf(step string) map[string]any {
	if s.Components == nil {
		return nil
	}

	return s.Components[step]
}

// HasPending reports whether any step is still pending. The poll client
// settles once this returns false.
func (s *Submission) HasPending() bool {
	for _, status := range s.ComponentStatus {
		if status == StepStatusPending {
			return true
		}
	}

	return false
}

// SeedComponentStatus populates the status map for a fresh submission:
// pending for steps that will run, not_requested for optional steps the
// user did not request.
func (s *Submission) SeedComponentStatus() {
	s.ComponentStatus = make(map[string]StepStatus, len(Chain()))

	for _, step := range Chain() {
		if step.Optional && !s.Inputs.GenerateLandingPage {
			s.ComponentStatus[step.Name] = StepStatusNotRequested

			continue
		}

		s.ComponentStatus[step.Name] = StepStatusPending
	}

	s.Status = SubmissionStatusPending
}

// FirstIncomplete returns the name of the earliest step whose status is not
// completed, skipping steps recorded as not_requested. Returns false when the
// whole chain is settled.
func (s *Submission) FirstIncomplete() (string, bool) {
	for _, step := range Chain() {
		switch s.StepStatusOf(step.Name) {
		case StepStatusCompleted, StepStatusNotRequested:
			continue
		default:
			return step.Name, true
		}
	}

	return "", false
}
