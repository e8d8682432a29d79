package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"ContentFeed/internal/app"
)

func newRateLimitsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "ratelimits",
		Short: "Show the provider chain and request budgets",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(a *app.Application) error {
				statuses := a.Gateway().RateLimits()
				rows := make([][]string, 0, len(statuses))
				for _, st := range statuses {
					budget := "disabled"
					if st.MaxRequests > 0 {
						budget = fmt.Sprintf("%d/%d per %s", st.Remaining, st.MaxRequests, st.Window)
					}
					rows = append(rows, []string{
						st.Provider,
						yesNo(st.Configured),
						budget,
						strconv.FormatBool(st.Limited),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Provider", "Configured", "Budget", "Limited"},
					rows,
					nil,
				))
				return nil
			})
		},
	}
}
