// Package pipeline drives the generation chain: step sequencing, status
// merging, payload normalization, retry/resume and single-step regeneration.
package pipeline

import "github.com/genflowhq/genflow/pkg/models"

// Merge combines an existing component-status map with one step's new status.
// It never mutates the input map: callers replace-on-write through the
// persistence layer.
//
// The returned overall status is the single source of truth for a
// submission's state: failed if the just-written status is failed, else
// completed once no entry is pending, else pending. No caller may derive the
// overall status by any other rule.
func Merge(existing map[string]models.StepStatus, step string, status models.StepStatus) (map[string]models.StepStatus, models.SubmissionStatus) {
	merged := make(map[string]models.StepStatus, len(existing)+1)
	for name, st := range existing {
		merged[name] = st
	}

	merged[step] = status

	overall := models.SubmissionStatusCompleted

	for _, st := range merged {
		switch st {
		case models.StepStatusFailed:
			return merged, models.SubmissionStatusFailed
		case models.StepStatusPending:
			overall = models.SubmissionStatusPending
		}
	}

	return merged, overall
}
