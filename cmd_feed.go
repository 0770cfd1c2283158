package main

import (
	"github.com/spf13/cobra"

	"subreddit-notifier/ident"
	"subreddit-notifier/notify"
)

func newFeedCmd(debug *bool) *cobra.Command {
	var (
		after  string
		reset  bool
		sticky bool
	)

	cmd := &cobra.Command{
		Use:   "feed <subreddit>",
		Short: "Watch new submissions and post the subscription comment under each",
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

			notifier, err := notify.New(a.redditClient(), a.site.Username, a.site.CommentTemplate, sticky, logger)
			if err != nil {
				logger.Error("Startup failed", "error", err)
				return err
			}

			err = runWalk(ctx, a, walkOptions{
				subreddit: args[0],
				path:      "new",
				kind:      ident.KindSubmission,
				after:     after,
				reset:     reset,
			}, notifier.Consume)
			if err != nil {
				logger.Error("Submission walk failed", "error", err)
			}
			return err
		},
	}

	cmd.Flags().StringVar(&after, "after", "", "start after this submission (full ID, short ID, or URL)")
	cmd.Flags().BoolVar(&reset, "reset-after", false, "discard the stored cursor and baseline on the newest submission")
	cmd.Flags().BoolVar(&sticky, "sticky", false, "distinguish and sticky the posted comment (needs moderator permissions)")
	cmd.MarkFlagsMutuallyExclusive("after", "reset-after")
	return cmd
}
