// Package sweeper periodically scans for submissions stuck mid-chain and
// republishes a retry command so an upstream outage can't strand them forever.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/genflowhq/genflow/pkg/eventbus"
	"github.com/genflowhq/genflow/pkg/events"
	"github.com/genflowhq/genflow/pkg/models"
	"github.com/genflowhq/genflow/pkg/persistence"
	"github.com/genflowhq/genflow/pkg/pipeline"
)

const defaultSchedule = "@every 5m"

// Sweeper republishes retry commands for stale pending submissions.
type Sweeper struct {
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	logger      *slog.Logger
	cron        *cron.Cron
	schedule    string
	// staleAfter is how long a submission may sit pending without an update
	// before the sweeper considers it stuck.
	staleAfter time.Duration
}

// NewSweeper creates a sweeper. schedule is a cron expression (or a
// descriptor like "@every 5m"); empty falls back to the default.
func NewSweeper(
	persistence persistence.Persistence,
	eventBus eventbus.EventBus,
	logger *slog.Logger,
	schedule string,
	staleAfter time.Duration,
) (*Sweeper, error) {
	if schedule == "" {
		schedule = defaultSchedule
	}

	if staleAfter <= 0 {
		staleAfter = 15 * time.Minute
	}

	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule '%s': %w", schedule, err)
	}

	return &Sweeper{
		persistence: persistence,
		eventBus:    eventBus,
		logger:      logger.With("module", "sweeper"),
		schedule:    schedule,
		staleAfter:  staleAfter,
	}, nil
}

// Start begins the sweep schedule.
func (s *Sweeper) Start(ctx context.Context) error {
	s.logger.Info("Starting stall sweeper", "schedule", s.schedule, "stale_after", s.staleAfter)

	s.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	if _, err := s.cron.AddFunc(s.schedule, func() {
		if err := s.Sweep(ctx); err != nil {
			s.logger.Error("Sweep failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("failed to register sweep job: %w", err)
	}

	s.cron.Start()

	return nil
}

// Stop halts the sweep schedule.
func (s *Sweeper) Stop() {
	if s.cron != nil {
		s.cron.Stop()
		s.logger.Info("Stopped stall sweeper")
	}
}

// Sweep scans all submissions once and republishes a retry command for each
// one that is still pending but hasn't been touched within the staleness
// window.
func (s *Sweeper) Sweep(ctx context.Context) error {
	submissions, err := s.persistence.Submissions(ctx)
	if err != nil {
		return fmt.Errorf("failed to list submissions: %w", err)
	}

	cutoff := time.Now().UTC().Add(-s.staleAfter)
	republished := 0

	for _, submission := range submissions {
		if !s.isStale(submission, cutoff) {
			continue
		}

		if err := s.republish(ctx, submission); err != nil {
			s.logger.Error("Failed to republish stale submission",
				"submission_id", submission.ID, "error", err)

			continue
		}

		republished++
	}

	if republished > 0 {
		s.logger.Info("Sweep republished stale submissions", "count", republished)
	}

	return nil
}

func (s *Sweeper) isStale(submission *models.Submission, cutoff time.Time) bool {
	return submission.Status == models.SubmissionStatusPending &&
		submission.HasPending() &&
		submission.UpdatedAt.Before(cutoff)
}

func (s *Sweeper) republish(ctx context.Context, submission *models.Submission) error {
	result := pipeline.ResetFailed(submission)
	if result.StartAt == "" {
		return nil
	}

	event := events.SubmissionRetry{
		BaseEvent: events.NewBaseEvent(events.SubmissionRetryEvent, submission.ID),
		StartAt:   result.StartAt,
	}

	s.logger.Info("Republishing retry for stale submission",
		"submission_id", submission.ID, "start_at", result.StartAt)

	return s.eventBus.Publish(ctx, submission.ID, event)
}
