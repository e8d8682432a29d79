package main

import (
	"fmt"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"ContentFeed/internal/app"
	"ContentFeed/internal/usecase"
)

func newIngestCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Run one ingestion pass over all active feeds",
		RunE: func(cmd *cobra.Command, args []string) error {
			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			cmd.SetContext(signalCtx)

			return ctx.withApp(cmd, func(a *app.Application) error {
				report, runErr := a.RunOnce(signalCtx)
				if report.RunID == "" {
					return runErr
				}
				if jsonOutput {
					if err := writeJSON(cmd, report); err != nil {
						return err
					}
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), renderReport(report))
				}
				return runErr
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the run report as JSON")
	return cmd
}

func renderReport(report usecase.Report) string {
	rows := [][]string{
		{"Run", report.RunID},
		{"Status", string(report.Status)},
		{"Processed", strconv.Itoa(report.Processed)},
		{"Filtered", strconv.Itoa(report.Filtered)},
		{"Errors", strconv.Itoa(len(report.Errors))},
		{"Duration", report.Duration.Round(time.Millisecond).String()},
	}
	out := renderTable([]string{"Field", "Value"}, rows, []columnAlignment{alignLeft, alignRight})
	if len(report.Errors) == 0 {
		return out
	}

	errRows := make([][]string, 0, len(report.Errors))
	for i, e := range report.Errors {
		errRows = append(errRows, []string{strconv.Itoa(i + 1), e})
	}
	return out + "\n" + renderTable([]string{"#", "Error"}, errRows, []columnAlignment{alignRight, alignLeft})
}
