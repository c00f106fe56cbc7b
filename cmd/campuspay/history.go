package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"campuspay/pkg/insights"

	"github.com/spf13/cobra"
)

func historyCmd(opts *rootOptions) *cobra.Command {
	var (
		limit   int
		asJSON  bool
		summary bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List transactions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(func(a *app) error {
				ctx := cmd.Context()
				session, err := opts.signIn(ctx, a)
				if err != nil {
					return err
				}

				entries, mode, err := a.ledger.Fetch(ctx, session.Mode(), session.ID())
				session.Observe(mode)
				if err != nil {
					return err
				}
				shown := entries
				if limit > 0 {
					shown = insights.Recent(entries, limit)
				}

				out := cmd.OutOrStdout()
				if asJSON {
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(shown)
				}

				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "DATE\tTITLE\tLOCATION\tCATEGORY\tSTATUS\tAMOUNT")
				for _, e := range shown {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
						e.Timestamp.Local().Format("2006-01-02 15:04"),
						e.Title, e.Location, e.Category, e.Status, e.Amount.StringFixed(2))
				}
				if err := tw.Flush(); err != nil {
					return err
				}

				if summary {
					s := insights.Summarize(entries, time.Now(), 0)
					fmt.Fprintf(out, "\nSpent today: %s\n", s.SpentToday.StringFixed(2))
					for _, row := range s.Categories {
						fmt.Fprintf(out, "  %-9s %s\n", row.Category, row.Total.StringFixed(2))
					}
				}
				fmt.Fprintf(out, "\nBalance: %s (%s)\n", session.Snapshot().Balance.StringFixed(2), session.Mode())
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "show at most n transactions")
	cmd.Flags().BoolVarP(&asJSON, "json", "j", false, "output as JSON")
	cmd.Flags().BoolVar(&summary, "summary", false, "append spend per category")
	return cmd
}
