package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"ContentFeed/internal/app"
)

func newFeedsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "feeds",
		Short: "List configured feeds and when they were last fetched",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(a *app.Application) error {
				list, err := a.Repository().ListFeeds(cmd.Context())
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(list))
				for _, f := range list {
					fetched := "never"
					if f.LastFetched != nil {
						fetched = f.LastFetched.Local().Format("2006-01-02 15:04")
					}
					rows = append(rows, []string{
						strconv.FormatInt(f.ID, 10),
						f.Name,
						f.Category,
						yesNo(f.Active),
						fetched,
						f.URL,
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Name", "Category", "Active", "Last fetched", "URL"},
					rows,
					[]columnAlignment{alignRight},
				))
				return nil
			})
		},
	}
}
