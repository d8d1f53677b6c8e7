package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/holdco/jobs"
)

type queueClient interface {
	EnqueueCloseMonth(ctx context.Context, payload jobs.CloseMonthPayload) (*asynq.TaskInfo, error)
	EnqueuePostPeriod(ctx context.Context, payload jobs.PostPeriodPayload) (*asynq.TaskInfo, error)
	EnqueueExportPeriod(ctx context.Context, payload jobs.ExportPeriodPayload) (*asynq.TaskInfo, error)
	EnqueueIdempotencyCleanup(ctx context.Context, olderThan time.Duration) (*asynq.TaskInfo, error)
	Close() error
}

type queueInspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
	ListScheduledTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error)
	Close() error
}

// JobsCLI wraps manual management helpers for Asynq jobs.
type JobsCLI struct {
	client    queueClient
	inspector queueInspector
}

// NewJobsCLI initialises the CLI helpers using the provided Redis address.
func NewJobsCLI(redisAddr string) (*JobsCLI, error) {
	opts := asynq.RedisClientOpt{Addr: redisAddr}
	client, err := jobs.NewClient(opts)
	if err != nil {
		return nil, err
	}
	return &JobsCLI{client: client, inspector: asynq.NewInspector(opts)}, nil
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

// TriggerParams scopes a manual trigger.
type TriggerParams struct {
	GroupID   int64
	Period    string
	OlderThan time.Duration
}

// Trigger enqueues a supported job by name.
func (c *JobsCLI) Trigger(ctx context.Context, name string, params TriggerParams) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	switch name {
	case jobs.TaskPostPeriod:
		return c.client.EnqueuePostPeriod(ctx, jobs.PostPeriodPayload{GroupID: params.GroupID, Period: params.Period})
	case jobs.TaskExportPeriod:
		return c.client.EnqueueExportPeriod(ctx, jobs.ExportPeriodPayload{GroupID: params.GroupID, Period: params.Period})
	case jobs.TaskIdempotencyCleanup:
		return c.client.EnqueueIdempotencyCleanup(ctx, params.OlderThan)
	case jobs.TaskCloseMonth:
		return nil, fmt.Errorf("jobs cli: %s needs a payload, use `holdctl close enqueue`", name)
	default:
		return nil, fmt.Errorf("jobs cli: unsupported job %s", name)
	}
}

// EnqueueClose submits a month-close run.
func (c *JobsCLI) EnqueueClose(ctx context.Context, payload jobs.CloseMonthPayload) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	return c.client.EnqueueCloseMonth(ctx, payload)
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

// InspectQueues reports the metrics of every queue the worker serves. A
// queue that has never seen a task reports zeros.
func (c *JobsCLI) InspectQueues(ctx context.Context) ([]QueueStats, error) {
	if c == nil || c.inspector == nil {
		return nil, errors.New("jobs cli: inspector not configured")
	}
	var out []QueueStats
	for _, queue := range []string{jobs.QueueCritical, jobs.QueueDefault} {
		stats := QueueStats{Queue: queue}
		info, err := c.inspector.GetQueueInfo(queue)
		if err != nil && !errors.Is(err, asynq.ErrQueueNotFound) {
			return nil, err
		}
		if info != nil {
			stats.Pending = info.Pending
			stats.Active = info.Active
			stats.Scheduled = info.Scheduled
			stats.Retry = info.Retry
			stats.Archived = info.Archived
		}
		out = append(out, stats)
	}
	return out, nil
}

// ListScheduled returns scheduled task infos for observability.
func (c *JobsCLI) ListScheduled(ctx context.Context, queue string, size int) ([]*asynq.TaskInfo, error) {
	if c == nil || c.inspector == nil {
		return nil, errors.New("jobs cli: inspector not configured")
	}
	if size <= 0 {
		size = 10
	}
	return c.inspector.ListScheduledTasks(queue, asynq.PageSize(size), asynq.Page(1))
}

func renderQueueStats(w io.Writer, stats []QueueStats) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "QUEUE\tPENDING\tACTIVE\tSCHEDULED\tRETRY\tARCHIVED")
	for _, s := range stats {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\n", s.Queue, s.Pending, s.Active, s.Scheduled, s.Retry, s.Archived)
	}
	return tw.Flush()
}

// newJobsCLI is swapped in tests.
var newJobsCLI = func(redisAddr string) (*JobsCLI, error) {
	return NewJobsCLI(redisAddr)
}

func withJobsCLI(fn func(*JobsCLI) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	c, err := newJobsCLI(cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer func() {
		_ = c.Close()
	}()
	return fn(c)
}

func newJobsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Trigger and inspect background jobs",
	}

	trigger := &cobra.Command{
		Use:   "trigger <task>",
		Short: "Enqueue a job immediately",
		Example: `  holdctl jobs trigger ledger:post_period --group 9 --period 2025-01
  holdctl jobs trigger export:period --period 2025-01
  holdctl jobs trigger idempotency:cleanup --older-than 48h`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			group, _ := cmd.Flags().GetInt64("group")
			period, _ := cmd.Flags().GetString("period")
			olderThan, _ := cmd.Flags().GetDuration("older-than")
			return withJobsCLI(func(c *JobsCLI) error {
				info, err := c.Trigger(cmd.Context(), args[0], TriggerParams{GroupID: group, Period: period, OlderThan: olderThan})
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
				return err
			})
		},
	}
	trigger.Flags().Int64("group", 0, "Group id to scope the job to")
	trigger.Flags().String("period", "", "Period in YYYY-MM format")
	trigger.Flags().Duration("older-than", 0, "Idempotency key age to purge (default: worker TTL)")

	inspect := &cobra.Command{
		Use:   "inspect",
		Short: "Print queue depth and scheduled tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			scheduled, _ := cmd.Flags().GetInt("scheduled")
			return withJobsCLI(func(c *JobsCLI) error {
				stats, err := c.InspectQueues(cmd.Context())
				if err != nil {
					return err
				}
				if err := renderQueueStats(cmd.OutOrStdout(), stats); err != nil {
					return err
				}
				if scheduled <= 0 {
					return nil
				}
				tasks, err := c.ListScheduled(cmd.Context(), jobs.QueueDefault, scheduled)
				if err != nil {
					return err
				}
				for _, t := range tasks {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", t.ID, t.Type, t.NextProcessAt.Format(time.RFC3339))
				}
				return nil
			})
		},
	}
	inspect.Flags().Int("scheduled", 0, "Also list up to N scheduled tasks of the default queue")

	cmd.AddCommand(trigger, inspect)
	return cmd
}
