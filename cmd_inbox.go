package main

import (
	"time"

	"github.com/spf13/cobra"

	"subreddit-notifier/inbox"
)

func newInboxCmd(debug *bool) *cobra.Command {
	var (
		interval time.Duration
		confirm  bool
	)

	cmd := &cobra.Command{
		Use:   "inbox",
		Short: "Handle subscribe and unsubscribe messages sent to the bot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := newLogger(*debug)
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			a, err := newApp(ctx, logger)
			if err != nil {
				logger.Error("Startup failed", "error", err)
				return err
			}
			defer a.close()

			processor := inbox.New(a.redditClient(), a.store, a.site.Registry(), confirm, logger)

			logger.Info("Inbox loop started", "interval", interval.String())
			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			for {
				if err := processor.Run(ctx); err != nil {
					if ctx.Err() != nil {
						return nil
					}
					logger.Error("Inbox pass failed", "error", err)
					return err
				}

				select {
				case <-ctx.Done():
					logger.Info("Inbox loop stopped")
					return nil
				case <-ticker.C:
				}
			}
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", time.Minute, "delay between inbox passes")
	cmd.Flags().BoolVar(&confirm, "confirm", false, "send a confirmation message for each handled request")
	return cmd
}
