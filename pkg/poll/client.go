// Package poll implements the eventually-consistent read client: it watches a
// submission record until no step is pending, backing off when the API rate
// limits it.
package poll

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/genflowhq/genflow/pkg/models"
)

// ErrRateLimited must be returned by fetchers when the read was rejected for
// rate limiting; it is the only error that triggers the cooldown state.
var ErrRateLimited = errors.New("rate limited")

// State is the observable phase of the poll loop.
//
//	Idle -> Polling -> Settled
//	          |  ^
//	          v  | (after the cooldown window, at the steady interval)
//	       Cooldown
//
// A hard attempt cap forces GaveUp so a stuck submission can never keep a
// poller alive forever.
type State string

const (
	StateIdle     State = "idle"
	StatePolling  State = "polling"
	StateCooldown State = "cooldown"
	StateSettled  State = "settled"
	StateGaveUp   State = "gave_up"
)

// Fetcher reads the current submission snapshot.
type Fetcher interface {
	FetchSubmission(ctx context.Context, id string) (*models.Submission, error)
}

// Config tunes the poll loop. Zero values fall back to defaults.
type Config struct {
	// Interval between polls while the chain is fresh.
	Interval time.Duration
	// SteadyInterval replaces Interval after the first cooldown: once the
	// server has pushed back, polling stays slower for the rest of the watch.
	SteadyInterval time.Duration
	// Cooldown is the fixed window to sit out after a rate-limit response.
	Cooldown time.Duration
	// MaxAttempts caps total fetches before the client gives up.
	MaxAttempts int
}

func (c *Config) withDefaults() Config {
	out := *c

	if out.Interval <= 0 {
		out.Interval = 3 * time.Second
	}

	if out.SteadyInterval <= 0 {
		out.SteadyInterval = 10 * time.Second
	}

	if out.Cooldown <= 0 {
		out.Cooldown = 30 * time.Second
	}

	if out.MaxAttempts <= 0 {
		out.MaxAttempts = 200
	}

	return out
}

// Update is one observation emitted to the caller. Submission is nil when the
// tick failed; State reports the loop phase after the tick.
type Update struct {
	State      State
	Submission *models.Submission
	Err        error
}

// Client observes submissions until they settle.
type Client struct {
	fetcher Fetcher
	config  Config
	logger  *slog.Logger
}

// NewClient creates a poll client.
func NewClient(fetcher Fetcher, config Config, logger *slog.Logger) *Client {
	return &Client{
		fetcher: fetcher,
		config:  config.withDefaults(),
		logger:  logger.With("module", "poll_client"),
	}
}

// Observe streams submission snapshots until the record settles (no step
// pending), the attempt cap is hit, or ctx is cancelled. The returned channel
// closes after a terminal update (Settled or GaveUp).
func (c *Client) Observe(ctx context.Context, submissionID string) <-chan Update {
	updates := make(chan Update, 1)

	go c.loop(ctx, submissionID, updates)

	return updates
}

func (c *Client) loop(ctx context.Context, submissionID string, updates chan<- Update) {
	defer close(updates)

	logger := c.logger.With("submission_id", submissionID)

	var (
		state    = StateIdle
		interval = c.config.Interval
		attempts int
	)

	for {
		if attempts >= c.config.MaxAttempts {
			logger.Warn("Poll attempt cap reached, giving up", "attempts", attempts)

			c.emit(ctx, updates, Update{State: StateGaveUp})

			return
		}

		attempts++

		submission, err := c.fetcher.FetchSubmission(ctx, submissionID)

		switch {
		case errors.Is(err, ErrRateLimited):
			// Sit out the fixed cooldown window, then poll at the slower
			// steady interval for the remainder of the watch.
			state = StateCooldown
			interval = c.config.SteadyInterval

			logger.Info("Rate limited, entering cooldown", "cooldown", c.config.Cooldown)

			c.emit(ctx, updates, Update{State: state, Err: err})

			if !sleep(ctx, c.config.Cooldown) {
				return
			}

			state = StatePolling

			continue

		case err != nil:
			// Transient read failures don't terminate the watch; the attempt
			// cap bounds the total work either way.
			logger.Warn("Poll fetch failed", "error", err)

			c.emit(ctx, updates, Update{State: state, Err: err})

		default:
			if !submission.HasPending() {
				logger.Info("Submission settled", "status", submission.Status)

				c.emit(ctx, updates, Update{State: StateSettled, Submission: submission})

				return
			}

			state = StatePolling

			c.emit(ctx, updates, Update{State: state, Submission: submission})
		}

		if !sleep(ctx, interval) {
			return
		}
	}
}

func (c *Client) emit(ctx context.Context, updates chan<- Update, update Update) {
	select {
	case updates <- update:
	case <-ctx.Done():
	}
}

// sleep waits for d, returning false when ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
