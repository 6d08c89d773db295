// Package postgresql provides PostgreSQL persistence for submissions.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq" // postgres driver

	"github.com/genflowhq/genflow/pkg/models"
	"github.com/genflowhq/genflow/pkg/persistence/sqlbase"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db             *sql.DB
	logger         *slog.Logger
	submissionRepo *SubmissionRepository
}

// NewPersistence connects, runs migrations and returns a ready persistence.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:             database,
		logger:         logger,
		submissionRepo: NewSubmissionRepository(database, logger),
	}, nil
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// Submissions returns all submissions, newest first.
func (p *Persistence) Submissions(ctx context.Context) ([]*models.Submission, error) {
	return p.submissionRepo.GetAll(ctx)
}

// SubmissionByID returns a submission by its id.
func (p *Persistence) SubmissionByID(ctx context.Context, id string) (*models.Submission, error) {
	return p.submissionRepo.GetByID(ctx, id)
}

// SaveSubmission upserts a submission record.
func (p *Persistence) SaveSubmission(ctx context.Context, submission *models.Submission) error {
	return p.submissionRepo.Save(ctx, submission)
}
