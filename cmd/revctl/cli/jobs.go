package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/revrec/jobs"
)

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string `json:"queue"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Scheduled int    `json:"scheduled"`
	Retry     int    `json:"retry"`
}

// ScheduledTask is one task waiting in the scheduled set.
type ScheduledTask struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	NextRunAt time.Time `json:"next_run_at"`
}

// JobsBackend is the queue surface revctl jobs drives.
type JobsBackend interface {
	Enqueue(ctx context.Context, kind, tenantID string) (string, error)
	Stats(ctx context.Context) (QueueStats, error)
	Scheduled(ctx context.Context, size int) ([]ScheduledTask, error)
	Close() error
}

// NewJobsBackend builds the backend for a Redis address. Tests replace it.
var NewJobsBackend = func(redisAddr string) (JobsBackend, error) {
	opts, err := jobs.RedisOpt(redisAddr)
	if err != nil {
		return nil, err
	}
	return &asynqBackend{client: jobs.NewClient(opts), inspector: asynq.NewInspector(opts)}, nil
}

const (
	jobBatch       = "batch"
	jobPostPending = "post-pending"
)

type asynqBackend struct {
	client    *jobs.Client
	inspector *asynq.Inspector
}

func (b *asynqBackend) Enqueue(ctx context.Context, kind, tenantID string) (string, error) {
	var (
		info *asynq.TaskInfo
		err  error
	)
	switch kind {
	case jobBatch:
		info, err = b.client.EnqueueRecognitionBatch(ctx, tenantID)
	case jobPostPending:
		info, err = b.client.EnqueuePostPending(ctx, tenantID)
	default:
		return "", fmt.Errorf("%w: unsupported job %q", errUsage, kind)
	}
	if err != nil {
		return "", err
	}
	return info.ID, nil
}

func (b *asynqBackend) Stats(ctx context.Context) (QueueStats, error) {
	info, err := b.inspector.GetQueueInfo(jobs.QueueDefault)
	if err != nil {
		return QueueStats{}, err
	}
	stats := QueueStats{Queue: jobs.QueueDefault}
	if info != nil {
		stats.Pending = info.Pending
		stats.Active = info.Active
		stats.Scheduled = info.Scheduled
		stats.Retry = info.Retry
	}
	return stats, nil
}

func (b *asynqBackend) Scheduled(ctx context.Context, size int) ([]ScheduledTask, error) {
	if size <= 0 {
		size = 10
	}
	infos, err := b.inspector.ListScheduledTasks(jobs.QueueDefault, asynq.PageSize(size), asynq.Page(1))
	if err != nil {
		return nil, err
	}
	out := make([]ScheduledTask, 0, len(infos))
	for _, info := range infos {
		out = append(out, ScheduledTask{ID: info.ID, Type: info.Type, NextRunAt: info.NextProcessAt})
	}
	return out, nil
}

func (b *asynqBackend) Close() error {
	return errors.Join(b.inspector.Close(), b.client.Close())
}

func newJobsCommand(opts *RootOptions, open Opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Enqueue and inspect background jobs",
	}
	cmd.AddCommand(newJobsEnqueueCommand(opts, open))
	cmd.AddCommand(newJobsStatsCommand(opts, open))
	return cmd
}

func newJobsEnqueueCommand(opts *RootOptions, open Opener) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:       "enqueue <batch|post-pending>",
		Short:     "Enqueue a recognition batch or a posting sweep",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{jobBatch, jobPostPending},
		RunE: func(cmd *cobra.Command, args []string) error {
			tenant := jobs.AllTenants
			if !all {
				var err error
				if tenant, err = requireTenant(opts); err != nil {
					return err
				}
			}
			return withJobsBackend(cmd, opts, open, func(ctx context.Context, backend JobsBackend) error {
				id, err := backend.Enqueue(ctx, args[0], tenant)
				if err != nil {
					return err
				}
				p := newPrinter(opts, cmd.OutOrStdout())
				if opts.Format == "json" {
					return p.json(map[string]string{"id": id, "job": args[0], "tenant": tenant})
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s for %s (task %s)\n", args[0], tenant, id)
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "target every tenant configured in BATCH_TENANTS")
	return cmd
}

func newJobsStatsCommand(opts *RootOptions, open Opener) *cobra.Command {
	var size int
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show queue depth and scheduled tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJobsBackend(cmd, opts, open, func(ctx context.Context, backend JobsBackend) error {
				stats, err := backend.Stats(ctx)
				if err != nil {
					return err
				}
				scheduled, err := backend.Scheduled(ctx, size)
				if err != nil {
					return err
				}
				p := newPrinter(opts, cmd.OutOrStdout())
				if opts.Format == "json" {
					return p.json(map[string]any{"queue": stats, "scheduled": scheduled})
				}
				rows := [][]string{{stats.Queue, strconv.Itoa(stats.Pending), strconv.Itoa(stats.Active),
					strconv.Itoa(stats.Scheduled), strconv.Itoa(stats.Retry)}}
				if err := p.table([]string{"QUEUE", "PENDING", "ACTIVE", "SCHEDULED", "RETRY"}, rows); err != nil {
					return err
				}
				for _, task := range scheduled {
					if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %s\n",
						task.NextRunAt.Format(time.RFC3339), task.Type, task.ID); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&size, "size", 10, "number of scheduled tasks to list")
	return cmd
}

func withJobsBackend(cmd *cobra.Command, opts *RootOptions, open Opener, fn func(context.Context, JobsBackend) error) error {
	return withRuntime(cmd, opts, open, func(ctx context.Context, rt *Runtime) error {
		if rt.RedisAddr == "" {
			return fmt.Errorf("%w: %w", errUsage, errNoRedis)
		}
		backend, err := NewJobsBackend(rt.RedisAddr)
		if err != nil {
			return err
		}
		defer backend.Close()
		return fn(ctx, backend)
	})
}
