package main

import (
	"fmt"
	"strings"

	"campuspay/pkg/chat"

	"github.com/spf13/cobra"
)

func chatCmd(opts *rootOptions) *cobra.Command {
	var clearFirst bool

	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Ask the support assistant",
		Example: `  campuspay chat "where can I use my card?"
  campuspay chat --clear`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !clearFirst && len(args) == 0 {
				return fmt.Errorf("a message is required unless --clear is set")
			}
			return opts.withApp(func(a *app) error {
				ctx := cmd.Context()
				session, err := opts.signIn(ctx, a)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()

				if clearFirst {
					mode, err := a.chat.Clear(ctx, session.Mode(), session.ID())
					session.Observe(mode)
					if err != nil {
						return err
					}
					fmt.Fprintln(out, "Chat history cleared.")
					if len(args) == 0 {
						return nil
					}
				}

				messages, mode, err := a.chat.Send(ctx, session.Mode(), session.ID(), session.Snapshot().Name, strings.Join(args, " "))
				session.Observe(mode)
				if err != nil {
					return err
				}
				for _, m := range messages {
					if m.Sender == chat.SenderBot {
						fmt.Fprintf(out, "PayBot: %s\n", m.Text)
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&clearFirst, "clear", false, "delete the conversation first")
	return cmd
}
