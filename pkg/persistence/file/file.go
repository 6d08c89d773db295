// Package file provides file-based persistence for submissions, intended for
// development and tests.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/genflowhq/genflow/pkg/models"
	"github.com/genflowhq/genflow/pkg/persistence"
)

// Persistence implements persistence.Persistence on the local file system:
// one JSON document per submission under <root>/submissions.
type Persistence struct {
	root string
	mu   sync.Mutex
}

// NewPersistence creates a file persistence rooted at the given directory.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{root: cleanRoot}
}

// Close performs any necessary cleanup. Nothing to do for files.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck verifies the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

// Submissions returns all stored submissions, newest first.
func (fp *Persistence) Submissions(ctx context.Context) ([]*models.Submission, error) {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	root := os.DirFS(fp.submissionsDir())

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list submission files: %w", err)
	}

	submissions := make([]*models.Submission, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		submission, err := fp.read(strings.TrimSuffix(file, ".json"))
		if err != nil {
			if persistence.IsSubmissionNotFound(err) {
				continue
			}

			return nil, err
		}

		submissions = append(submissions, submission)
	}

	sort.Slice(submissions, func(i, j int) bool {
		return submissions[i].CreatedAt.After(submissions[j].CreatedAt)
	})

	return submissions, nil
}

// SubmissionByID loads a single submission.
func (fp *Persistence) SubmissionByID(_ context.Context, id string) (*models.Submission, error) {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	return fp.read(id)
}

// SaveSubmission upserts the submission record and bumps UpdatedAt.
func (fp *Persistence) SaveSubmission(_ context.Context, submission *models.Submission) error {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	if err := os.MkdirAll(fp.submissionsDir(), 0o755); err != nil {
		return persistence.NewSubmissionError("Save", submission.ID, err)
	}

	submission.UpdatedAt = time.Now().UTC()

	data, err := json.MarshalIndent(submission, "", "  ")
	if err != nil {
		return persistence.NewSubmissionError("Save", submission.ID, err)
	}

	if err := os.WriteFile(fp.path(submission.ID), data, 0o644); err != nil {
		return persistence.NewSubmissionError("Save", submission.ID, err)
	}

	return nil
}

func (fp *Persistence) read(id string) (*models.Submission, error) {
	data, err := os.ReadFile(fp.path(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, persistence.NewSubmissionError("GetByID", id, persistence.ErrSubmissionNotFound)
		}

		return nil, persistence.NewSubmissionError("GetByID", id, err)
	}

	var submission models.Submission
	if err := json.Unmarshal(data, &submission); err != nil {
		return nil, persistence.NewSubmissionError("GetByID", id, err)
	}

	return &submission, nil
}

func (fp *Persistence) submissionsDir() string {
	return filepath.Join(fp.root, "submissions")
}

func (fp *Persistence) path(id string) string {
	return filepath.Join(fp.submissionsDir(), id+".json")
}
