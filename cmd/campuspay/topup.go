package main

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func topupCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "topup [amount]",
		Short: "Add money to the account",
		Example: `  campuspay topup 500
  campuspay topup 12.50 --email ada@campus.edu --password secret`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := decimal.NewFromString(args[0])
			if err != nil {
				return fmt.Errorf("invalid amount %q: %w", args[0], err)
			}
			return opts.withApp(func(a *app) error {
				ctx := cmd.Context()
				session, err := opts.signIn(ctx, a)
				if err != nil {
					return err
				}
				acct, err := session.TopUp(ctx, amount)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Balance: %s\n", acct.Balance.StringFixed(2))
				return nil
			})
		},
	}
}
