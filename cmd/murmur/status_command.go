package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"murmur/internal/jobs"
	"murmur/internal/preflight"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show pipeline health and job counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			results := preflight.RunAll(cmd.Context(), cfg)
			rows := make([][]string, 0, len(results))
			for _, result := range results {
				status := "ok"
				if !result.Passed {
					status = "FAIL"
				}
				rows = append(rows, []string{result.Name, status, result.Detail})
			}
			fmt.Fprintln(out, renderTable([]string{"Check", "Status", "Detail"}, rows, nil))

			db, err := ctx.ensureDB()
			if err != nil {
				return err
			}
			jobRows := make([][]string, 0, 2)
			for _, kind := range []jobs.Kind{jobs.AutoTitle, jobs.AutoDistill} {
				repo := jobs.NewRepository(kind, db, ctx.logger())
				stats, err := repo.Stats(cmd.Context())
				repo.Close()
				if err != nil {
					return err
				}
				jobRows = append(jobRows, []string{
					kind.Name,
					strconv.Itoa(stats[jobs.StatusQueued]),
					strconv.Itoa(stats[jobs.StatusProcessing]),
					strconv.Itoa(stats[jobs.StatusCompleted]),
					strconv.Itoa(stats[jobs.StatusFailed]),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Job Kind", "Queued", "Processing", "Completed", "Failed"},
				jobRows,
				[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight},
			))
			return nil
		},
	}
}
