package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/genflowhq/genflow/pkg/models"
	"github.com/genflowhq/genflow/pkg/persistence"
)

// SubmissionRepository handles submission-related database operations.
type SubmissionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSubmissionRepository creates a new submission repository.
func NewSubmissionRepository(db *sql.DB, logger *slog.Logger) *SubmissionRepository {
	return &SubmissionRepository{db: db, logger: logger}
}

const submissionColumns = `
	id
  , inputs
  , status
  , components
  , component_status
  , output
  , created_at
  , updated_at
`

// GetAll returns all submissions, newest first.
func (r *SubmissionRepository) GetAll(ctx context.Context) ([]*models.Submission, error) {
	query := `
		SELECT ` + submissionColumns + `
		FROM submissions
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query submissions: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	submissions := make([]*models.Submission, 0)

	for rows.Next() {
		submission, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan submission: %w", err)
		}

		submissions = append(submissions, submission)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating submissions: %w", err)
	}

	return submissions, nil
}

// GetByID returns a single submission.
func (r *SubmissionRepository) GetByID(ctx context.Context, id string) (*models.Submission, error) {
	query := `
		SELECT ` + submissionColumns + `
		FROM submissions
		WHERE id = $1
	`

	submission, err := scanSubmission(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewSubmissionError("GetByID", id, persistence.ErrSubmissionNotFound)
		}

		return nil, persistence.NewSubmissionError("GetByID", id, err)
	}

	return submission, nil
}

// Save upserts the submission record and bumps updated_at.
func (r *SubmissionRepository) Save(ctx context.Context, submission *models.Submission) error {
	submission.UpdatedAt = time.Now().UTC()

	inputs, err := json.Marshal(submission.Inputs)
	if err != nil {
		return persistence.NewSubmissionError("Save", submission.ID, err)
	}

	components, err := json.Marshal(submission.Components)
	if err != nil {
		return persistence.NewSubmissionError("Save", submission.ID, err)
	}

	componentStatus, err := json.Marshal(submission.ComponentStatus)
	if err != nil {
		return persistence.NewSubmissionError("Save", submission.ID, err)
	}

	var output []byte
	if submission.Output != nil {
		output, err = json.Marshal(submission.Output)
		if err != nil {
			return persistence.NewSubmissionError("Save", submission.ID, err)
		}
	}

	query := `
		INSERT INTO submissions (id, inputs, status, components, component_status, output, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			inputs = EXCLUDED.inputs,
			status = EXCLUDED.status,
			components = EXCLUDED.components,
			component_status = EXCLUDED.component_status,
			output = EXCLUDED.output,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		submission.ID,
		inputs,
		string(submission.Status),
		components,
		componentStatus,
		output,
		submission.CreatedAt,
		submission.UpdatedAt,
	)
	if err != nil {
		return persistence.NewSubmissionError("Save", submission.ID, err)
	}

	return nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubmission(row rowScanner) (*models.Submission, error) {
	var (
		submission      models.Submission
		inputs          []byte
		components      []byte
		componentStatus []byte
		output          sql.NullString
	)

	err := row.Scan(
		&submission.ID,
		&inputs,
		&submission.Status,
		&components,
		&componentStatus,
		&output,
		&submission.CreatedAt,
		&submission.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(inputs, &submission.Inputs); err != nil {
		return nil, fmt.Errorf("failed to decode inputs: %w", err)
	}

	if err := json.Unmarshal(components, &submission.Components); err != nil {
		return nil, fmt.Errorf("failed to decode components: %w", err)
	}

	if err := json.Unmarshal(componentStatus, &submission.ComponentStatus); err != nil {
		return nil, fmt.Errorf("failed to decode component status: %w", err)
	}

	if output.Valid {
		if err := json.Unmarshal([]byte(output.String), &submission.Output); err != nil {
			return nil, fmt.Errorf("failed to decode output: %w", err)
		}
	}

	return &submission, nil
}
