package main

import (
	"github.com/spf13/cobra"

	"subreddit-notifier/counter"
	"subreddit-notifier/ident"
)

func newCommentsCmd(debug *bool) *cobra.Command {
	var (
		after string
		reset bool
	)

	cmd := &cobra.Command{
		Use:   "comments <subreddit>",
		Short: "Watch the comment feed and tally comments per submission per day",
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

			c, err := counter.New(a.store, a.site.CommentsCutoff, a.site.CommentsBlacklist, logger)
			if err != nil {
				logger.Error("Startup failed", "error", err)
				return err
			}

			err = runWalk(ctx, a, walkOptions{
				subreddit: args[0],
				path:      "comments",
				kind:      ident.KindComment,
				after:     after,
				reset:     reset,
			}, c.Consume)
			if err != nil {
				logger.Error("Comment walk failed", "error", err)
			}
			return err
		},
	}

	cmd.Flags().StringVar(&after, "after", "", "start after this comment (full ID, short ID, or URL)")
	cmd.Flags().BoolVar(&reset, "reset-after", false, "discard the stored cursor and baseline on the newest comment")
	cmd.MarkFlagsMutuallyExclusive("after", "reset-after")
	return cmd
}
