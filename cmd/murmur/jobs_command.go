package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"murmur/internal/jobs"
)

func kindByName(name string) (jobs.Kind, bool) {
	switch name {
	case jobs.AutoTitle.Name, "title":
		return jobs.AutoTitle, true
	case jobs.AutoDistill.Name, "distill":
		return jobs.AutoDistill, true
	default:
		return jobs.Kind{}, false
	}
}

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and retry background jobs",
	}
	jobsCmd.AddCommand(newJobsListCommand(ctx))
	jobsCmd.AddCommand(newJobsRetryCommand(ctx))
	return jobsCmd
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list <title|distill>",
		Short: "List jobs of one kind",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, ok := kindByName(args[0])
			if !ok {
				return fmt.Errorf("unknown job kind %q", args[0])
			}
			db, err := ctx.ensureDB()
			if err != nil {
				return err
			}
			repo := jobs.NewRepository(kind, db, ctx.logger())
			defer repo.Close()

			all, err := repo.FetchAll(cmd.Context())
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(all))
			for _, job := range all {
				nextRetry := ""
				if job.NextRetryAt != nil {
					nextRetry = job.NextRetryAt.Local().Format("15:04:05")
				}
				rows = append(rows, []string{
					job.MemoID,
					string(job.Status),
					strconv.Itoa(job.RetryCount),
					nextRetry,
					string(job.FailureReason),
					job.LastError,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Memo", "Status", "Retries", "Next Retry", "Reason", "Last Error"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight},
			))
			return nil
		},
	}
}

func newJobsRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <title|distill> [memo-id...]",
		Short: "Requeue failed jobs with a fresh retry budget",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, ok := kindByName(args[0])
			if !ok {
				return fmt.Errorf("unknown job kind %q", args[0])
			}
			db, err := ctx.ensureDB()
			if err != nil {
				return err
			}
			repo := jobs.NewRepository(kind, db, ctx.logger())
			defer repo.Close()

			revived, err := repo.RetryFailed(cmd.Context(), args[1:]...)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Requeued %d %s job(s)\n", revived, kind.Name)
			return nil
		},
	}
}
