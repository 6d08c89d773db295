// Package persistence provides the storage abstraction for submissions.
package persistence

import (
	"context"

	"github.com/genflowhq/genflow/pkg/models"
)

// Persistence is the durable submission store. Implementations provide
// single-record upsert semantics; every step boundary in the pipeline is a
// SaveSubmission call, so a crash between steps loses at most one step's
// result.
type Persistence interface {
	Submissions(ctx context.Context) ([]*models.Submission, error)
	SubmissionByID(ctx context.Context, id string) (*models.Submission, error)
	SaveSubmission(ctx context.Context, submission *models.Submission) error
	HealthCheck(ctx context.Context) error

	Close(ctx context.Context) error
}
