package main

import (
	"context"
	"errors"
	"os"
	"time"

	cli "github.com/urfave/cli/v3"

	"github.com/genflowhq/genflow/pkg/log"
	"github.com/genflowhq/genflow/pkg/poll"
)

func main() {
	logger := log.WithModule("watch")

	command := &cli.Command{
		Name:                  "genflow-watch",
		EnableShellCompletion: true,
		Usage:                 "Poll a submission until its chain settles",
		ArgsUsage:             "<submission-id>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "api-url",
				Usage:    "Base URL of the Genflow API",
				Required: true,
				Sources:  cli.EnvVars("GENFLOW_API_URL"),
			},
			&cli.DurationFlag{
				Name:    "interval",
				Usage:   "Poll interval while the chain is fresh",
				Value:   3 * time.Second,
				Sources: cli.EnvVars("POLL_INTERVAL"),
			},
			&cli.DurationFlag{
				Name:    "cooldown",
				Usage:   "Wait after a rate-limit response before polling again",
				Value:   30 * time.Second,
				Sources: cli.EnvVars("POLL_COOLDOWN"),
			},
			&cli.IntFlag{
				Name:    "max-attempts",
				Usage:   "Give up after this many polls",
				Value:   200,
				Sources: cli.EnvVars("POLL_MAX_ATTEMPTS"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			submissionID := command.Args().First()
			if submissionID == "" {
				return errors.New("submission id is required")
			}

			fetcher := NewHTTPFetcher(command.String("api-url"))

			client := poll.NewClient(fetcher, poll.Config{
				Interval:    command.Duration("interval"),
				Cooldown:    command.Duration("cooldown"),
				MaxAttempts: command.Int("max-attempts"),
			}, logger)

			for update := range client.Observe(ctx, submissionID) {
				switch update.State {
				case poll.StateSettled:
					logger.InfoContext(ctx, "Submission settled",
						"submission_id", submissionID,
						"status", update.Submission.Status,
					)

					return nil
				case poll.StateGaveUp:
					return errors.New("gave up waiting for submission " + submissionID)
				default:
					if update.Err != nil {
						logger.WarnContext(ctx, "Poll error", "state", update.State, "error", update.Err)

						continue
					}

					if update.Submission != nil {
						logger.InfoContext(ctx, "Chain still running",
							"submission_id", submissionID,
							"status", update.Submission.Status,
							"component_status", update.Submission.ComponentStatus,
						)
					}
				}
			}

			return ctx.Err()
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		logger.Error("Watch failed", "error", err)
		os.Exit(1)
	}
}
