package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ariefcatur/go-commerce-backend/internal/jobs"
	"github.com/ariefcatur/go-commerce-backend/internal/logging"
	"github.com/ariefcatur/go-commerce-backend/internal/queue"
	"github.com/ariefcatur/go-commerce-backend/internal/redisx"
)

var queueNames = []string{jobs.QueueEmail, jobs.QueueNotification, jobs.QueueOrder}

func queueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and retry background jobs",
	}
	cmd.AddCommand(queueStatsCmd(), queueFailedCmd(), queueRetryCmd())
	return cmd
}

func openQueue(name string) (*queue.Queue, *redis.Client, *logrus.Logger) {
	cfg, log := env()
	rdb := redisx.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	q := queue.New(rdb, name, queue.Config{Attempts: cfg.Queue.Attempts, Backoff: cfg.Queue.Backoff},
		logging.Component(log, "queue"))
	return q, rdb, log
}

func queueStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show job counts per queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "QUEUE\tWAIT\tDELAYED\tACTIVE\tFAILED")
			for _, name := range queueNames {
				q, rdb, _ := openQueue(name)
				c, err := q.Counts(cmd.Context())
				_ = rdb.Close()
				if err != nil {
					return fmt.Errorf("%s: %w", name, err)
				}
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\n", name, c["wait"], c["delayed"], c["active"], c["failed"])
			}
			return w.Flush()
		},
	}
}

func queueFailedCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:       "failed [queue]",
		Short:     "List jobs that exhausted their attempts",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: queueNames,
		RunE: func(cmd *cobra.Command, args []string) error {
			q, rdb, _ := openQueue(args[0])
			defer rdb.Close()
			failed, err := q.Failed(cmd.Context(), limit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tATTEMPTS\tCREATED\tREASON")
			for _, j := range failed {
				fmt.Fprintf(w, "%s\t%d/%d\t%s\t%s\n", j.ID, j.AttemptsMade, j.MaxAttempts, humanize.Time(j.CreatedAt), j.FailedReason)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "maximum jobs to list")
	return cmd
}

func queueRetryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retry [queue] [job-id...]",
		Short: "Move failed jobs back to the wait list",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, rdb, log := openQueue(args[0])
			defer rdb.Close()
			for _, id := range args[1:] {
				if err := q.Retry(cmd.Context(), id); err != nil {
					return fmt.Errorf("retry %s: %w", id, err)
				}
				log.WithFields(logrus.Fields{"queue": args[0], "job_id": id}).Info("job requeued")
			}
			return nil
		},
	}
}
