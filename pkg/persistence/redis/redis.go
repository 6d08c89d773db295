// Package redis provides Redis-backed persistence for submissions. The
// submission record is stored whole as a JSON value, which matches the
// pipeline's replace-on-write merge semantics.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/genflowhq/genflow/pkg/models"
	"github.com/genflowhq/genflow/pkg/persistence"
)

const keyPrefix = "genflow:submission:"

// Persistence implements persistence.Persistence on a Redis server.
type Persistence struct {
	client goredis.UniversalClient
}

// NewPersistence connects to the Redis instance described by the URL
// (redis://[:password@]host:port/db).
func NewPersistence(ctx context.Context, redisURL string) (*Persistence, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := goredis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &Persistence{client: client}, nil
}

// Close closes the underlying client.
func (p *Persistence) Close(_ context.Context) error {
	return p.client.Close()
}

// HealthCheck pings the server.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	if err := p.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}

	return nil
}

// Submissions scans all submission keys. Intended for operational tooling,
// not hot paths.
func (p *Persistence) Submissions(ctx context.Context) ([]*models.Submission, error) {
	var (
		cursor      uint64
		submissions []*models.Submission
	)

	for {
		keys, next, err := p.client.Scan(ctx, cursor, keyPrefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan submissions: %w", err)
		}

		for _, key := range keys {
			submission, err := p.get(ctx, key)
			if err != nil {
				if persistence.IsSubmissionNotFound(err) {
					continue // expired between scan and get
				}

				return nil, err
			}

			submissions = append(submissions, submission)
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	return submissions, nil
}

// SubmissionByID loads a single submission.
func (p *Persistence) SubmissionByID(ctx context.Context, id string) (*models.Submission, error) {
	return p.get(ctx, keyPrefix+id)
}

// SaveSubmission upserts the record and bumps UpdatedAt.
func (p *Persistence) SaveSubmission(ctx context.Context, submission *models.Submission) error {
	submission.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(submission)
	if err != nil {
		return persistence.NewSubmissionError("Save", submission.ID, err)
	}

	if err := p.client.Set(ctx, keyPrefix+submission.ID, data, 0).Err(); err != nil {
		return persistence.NewSubmissionError("Save", submission.ID, err)
	}

	return nil
}

func (p *Persistence) get(ctx context.Context, key string) (*models.Submission, error) {
	id := key[len(keyPrefix):]

	data, err := p.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
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
