package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/tricktime/tricktime/internal/app"
	"github.com/tricktime/tricktime/internal/shared"
	"github.com/tricktime/tricktime/jobs"
)

type welcomeEnqueuer interface {
	EnqueueWelcome(ctx context.Context, payload jobs.WelcomeEmailPayload, taskID string) (*asynq.TaskInfo, error)
	Close() error
}

type queueInspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
	Close() error
}

// JobsCLI wraps manual management helpers for queued jobs.
type JobsCLI struct {
	client    welcomeEnqueuer
	inspector queueInspector
}

// NewJobsCLI initialises the CLI helpers using the provided Redis address.
func NewJobsCLI(redisAddr string) *JobsCLI {
	opts := asynq.RedisClientOpt{Addr: redisAddr}
	return &JobsCLI{client: jobs.NewClient(opts), inspector: asynq.NewInspector(opts)}
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var err error
	if c.inspector != nil {
		err = errors.Join(err, c.inspector.Close())
	}
	if c.client != nil {
		err = errors.Join(err, c.client.Close())
	}
	return err
}

// ResendWelcome queues a welcome email outside of the webhook flow. No task id
// is attached so an operator can always force a resend.
func (c *JobsCLI) ResendWelcome(ctx context.Context, email, userID string) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	payload := jobs.WelcomeEmailPayload{Email: shared.NormalizeEmail(email), UserID: userID}
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	return c.client.EnqueueWelcome(ctx, payload, "")
}

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string
	Pending   int
	Active    int
	Scheduled int
	Retry     int
	Archived  int
}

// InspectQueue reports the queue metrics for the default queue.
func (c *JobsCLI) InspectQueue(ctx context.Context) (QueueStats, error) {
	if c == nil || c.inspector == nil {
		return QueueStats{}, errors.New("jobs cli: inspector not configured")
	}
	info, err := c.inspector.GetQueueInfo(jobs.QueueDefault)
	if err != nil {
		return QueueStats{}, err
	}
	stats := QueueStats{Queue: jobs.QueueDefault}
	if info != nil {
		stats.Pending = int(info.Pending)
		stats.Active = int(info.Active)
		stats.Scheduled = int(info.Scheduled)
		stats.Retry = int(info.Retry)
		stats.Archived = int(info.Archived)
	}
	return stats, nil
}

var newJobsCLI = NewJobsCLI

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect and trigger queued jobs",
}

var jobsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print default queue counters",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withJobsCLI(func(c *JobsCLI) error {
			stats, err := c.InspectQueue(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "queue=%s pending=%d active=%d scheduled=%d retry=%d archived=%d\n",
				stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry, stats.Archived)
			return nil
		})
	},
}

var jobsResendWelcomeCmd = &cobra.Command{
	Use:   "resend-welcome",
	Short: "Queue a welcome email for a purchaser",
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		userID, _ := cmd.Flags().GetString("user-id")
		return withJobsCLI(func(c *JobsCLI) error {
			info, err := c.ResendWelcome(cmd.Context(), email, userID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "queued %s\n", info.ID)
			return nil
		})
	},
}

func init() {
	jobsResendWelcomeCmd.Flags().String("email", "", "purchaser email address")
	jobsResendWelcomeCmd.Flags().String("user-id", "", "identity id to include in the email")
	_ = jobsResendWelcomeCmd.MarkFlagRequired("email")

	rootCmd.AddCommand(jobsCmd)
	jobsCmd.AddCommand(jobsStatsCmd, jobsResendWelcomeCmd)
}

func withJobsCLI(fn func(*JobsCLI) error) error {
	cfg, err := app.LoadToolingConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	c := newJobsCLI(cfg.RedisAddr)
	defer func() {
		_ = c.Close()
	}()
	return fn(c)
}
