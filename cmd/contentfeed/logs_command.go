package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"ContentFeed/internal/app"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var (
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "List recent ingestion runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 1 {
				return fmt.Errorf("--limit must be positive")
			}
			return ctx.withApp(cmd, func(a *app.Application) error {
				entries, err := a.Repository().ListLogs(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, entries)
				}
				if len(entries) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No ingestion runs recorded")
					return nil
				}

				rows := make([][]string, 0, len(entries))
				for _, e := range entries {
					rows = append(rows, []string{
						e.CreatedAt.Local().Format("2006-01-02 15:04:05"),
						string(e.Status),
						strconv.Itoa(e.ProcessedCount),
						strconv.Itoa(e.FilteredCount),
						strconv.Itoa(e.ErrorCount),
						strconv.FormatInt(e.DurationMs, 10) + "ms",
						e.Message,
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Time", "Status", "Processed", "Filtered", "Errors", "Duration", "Message"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print entries as JSON")
	return cmd
}
