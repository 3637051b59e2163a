package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"murmur/internal/analysis"
	"murmur/internal/memo"
	"murmur/internal/transcription"
)

func newMemosCommand(ctx *commandContext) *cobra.Command {
	memosCmd := &cobra.Command{
		Use:   "memos",
		Short: "List memos with their enrichment state",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := ctx.ensureDB()
			if err != nil {
				return err
			}
			memos := memo.NewStore(db, ctx.logger())
			transcripts := transcription.NewStore(db, ctx.logger())
			defer transcripts.Close()
			cache := analysis.NewCache(db, ctx.logger())

			all, err := memos.List(cmd.Context())
			if err != nil {
				return err
			}
			ids := make([]string, 0, len(all))
			for _, m := range all {
				ids = append(ids, m.ID)
			}
			states := transcripts.GetStates(cmd.Context(), ids)

			rows := make([][]string, 0, len(all))
			for _, m := range all {
				state := states[m.ID]
				modes := make([]string, 0, 2)
				for mode := range cache.GetAll(cmd.Context(), m.ID) {
					modes = append(modes, string(mode))
				}
				rows = append(rows, []string{
					m.ID,
					m.DisplayTitle(),
					string(state.Status),
					strings.Join(modes, ","),
					m.CreatedAt.Local().Format("2006-01-02 15:04"),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Title", "Transcription", "Analyses", "Created"},
				rows,
				nil,
			))
			return nil
		},
	}
	return memosCmd
}
