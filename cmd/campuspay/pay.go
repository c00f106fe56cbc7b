package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"campuspay/pkg/ledger"
	"campuspay/pkg/payment"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func payCmd(opts *rootOptions) *cobra.Command {
	var (
		amount     string
		merchant   string
		location   string
		category   string
		credential string
		timeout    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "pay",
		Short: "Scan a simulated student card and pay",
		Long: `Scan a simulated student card, show the resolved merchant and amount,
then confirm with --credential.

Examples:
  campuspay pay --credential 1234
  campuspay pay --amount 4.50 --merchant "Print Shop" --category other --credential 1234`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var po payment.Options
			if amount != "" {
				d, err := decimal.NewFromString(amount)
				if err != nil {
					return fmt.Errorf("invalid --amount: %w", err)
				}
				po.Amount = d
			}
			po.Merchant = merchant
			po.Location = location
			if category != "" {
				c, err := ledger.ParseCategory(category)
				if err != nil {
					return err
				}
				po.Category = c
			}

			return opts.withApp(func(a *app) error {
				ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
				defer cancel()

				session, err := opts.signIn(ctx, a)
				if err != nil {
					return err
				}
				machine, err := a.newMachine(session)
				if err != nil {
					return err
				}
				defer machine.Close()

				out := cmd.OutOrStdout()
				if err := machine.StartScan(po); err != nil {
					return err
				}
				fmt.Fprintln(out, "Hold the card near the reader...")

				snap, err := waitForm(ctx, machine, func(progress int) {
					fmt.Fprintf(out, "  scanning %3d%%\n", progress)
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Card %s detected\n", snap.CardToken)
				fmt.Fprintf(out, "Pay %s to %s (%s)? balance %s\n",
					snap.Amount.StringFixed(2), snap.Merchant, snap.Location, snap.Balance.StringFixed(2))

				snap, err = machine.Confirm(ctx, credential)
				if err != nil {
					var recErr *payment.ReconciliationError
					if errors.As(err, &recErr) && recErr.Compensated {
						fmt.Fprintln(out, "Payment could not be recorded; your balance was restored.")
					}
					return err
				}
				fmt.Fprintf(out, "Payment complete. New balance %s\n", snap.Balance.StringFixed(2))
				if snap.Transaction != nil {
					fmt.Fprintf(out, "Transaction %s\n", snap.Transaction.ID)
				}
				if snap.Advisory != "" {
					fmt.Fprintf(out, "Note: %s\n", snap.Advisory)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&amount, "amount", "", "amount override")
	cmd.Flags().StringVar(&merchant, "merchant", "", "merchant override")
	cmd.Flags().StringVar(&location, "location", "", "location, used with --merchant")
	cmd.Flags().StringVar(&category, "category", "", "category (dining, books, shopping, payment, other), used with --merchant")
	cmd.Flags().StringVar(&credential, "credential", "", "confirmation PIN or password")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "give up after this long")
	cmd.MarkFlagRequired("credential")

	return cmd
}

// waitForm reports scan progress until the confirmation form is ready.
func waitForm(ctx context.Context, m *payment.Machine, progress func(int)) (payment.Snapshot, error) {
	last := -1
	for {
		waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		snap, err := m.WaitFor(waitCtx, payment.StateAwaitingConfirmation, payment.StateFailed)
		cancel()
		if err == nil {
			if snap.State == payment.StateFailed {
				return snap, snap.Err
			}
			return snap, nil
		}
		if ctx.Err() != nil {
			return snap, ctx.Err()
		}
		if snap.Progress != last {
			last = snap.Progress
			progress(last)
		}
	}
}
