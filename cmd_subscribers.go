package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"subreddit-notifier/ident"
)

func newSubscribersCmd(debug *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "subscribers <submission>",
		Short: "List the users subscribed to a submission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(*debug)
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			a, err := newApp(ctx, logger)
			if err != nil {
				logger.Error("Startup failed", "error", err)
				return err
			}
			defer a.close()

			fullID, err := ident.ResolveAfter(a.site.Registry(), ident.KindSubmission, args[0])
			if err != nil {
				logger.Error("Invalid submission", "input", args[0], "error", err)
				return err
			}

			users, err := a.store.Subscribers(ctx, ident.ShortID(fullID))
			if err != nil {
				logger.Error("Subscriber lookup failed", "submission", fullID, "error", err)
				return err
			}
			for _, user := range users {
				fmt.Fprintln(cmd.OutOrStdout(), user)
			}
			return nil
		},
	}
}
