// Package web provides HTTP request and response types for the pipeline API.
package web

// CreateSubmissionRequest is the body for creating a new submission.
type CreateSubmissionRequest struct {
	Market       string         `json:"market"                validate:"required,min=2"`
	Product      string         `json:"product"               validate:"required,min=2"`
	AudienceHint string         `json:"audience_hint,omitempty"`
	Extra        map[string]any `json:"extra,omitempty"`

	GenerateLandingPage bool   `json:"generate_landing_page"`
	EventName           string `json:"event_name,omitempty"     validate:"required_with=EventDate"`
	EventDate           string `json:"event_date,omitempty"     validate:"omitempty,datetime=2006-01-02"`
	EventLocation       string `json:"event_location,omitempty"`
}

// RegenerateRequest is the body for re-running one step.
type RegenerateRequest struct {
	Component string `json:"component" validate:"required"`
}

// RegenerateResponse acknowledges a queued regeneration.
type RegenerateResponse struct {
	Success   bool   `json:"success"`
	Status    string `json:"status"`
	Component string `json:"component"`
}

// CallbackRequest is the body the generation service pushes for a single
// step's out-of-band result.
type CallbackRequest struct {
	SubmissionID string `json:"submission_id" validate:"required"`
	Step         string `json:"step"          validate:"required"`
	Payload      any    `json:"payload"`
	Status       string `json:"status,omitempty"    validate:"omitempty,oneof=completed failed"`
	Timestamp    string `json:"timestamp,omitempty" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
}

// CallbackResponse acknowledges an ingested callback.
type CallbackResponse struct {
	OK              bool   `json:"ok"`
	SubmissionID    string `json:"submission_id"`
	Step            string `json:"step"`
	ComponentStatus string `json:"component_status"`
	OverallStatus   string `json:"overall_status"`
}

// RetryResponse acknowledges a queued retry.
type RetryResponse struct {
	Success bool              `json:"success"`
	StartAt string            `json:"start_at,omitempty"`
	Reset   []string          `json:"reset,omitempty"`
	Skipped map[string]string `json:"skipped,omitempty"`
}
