// Command subreddit-notifier runs the subscription bot: watching a
// subreddit's submission and comment feeds and handling its inbox.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"subreddit-notifier/config"
	"subreddit-notifier/feed"
	"subreddit-notifier/ident"
	"subreddit-notifier/pkg/stream"
	"subreddit-notifier/poll"
	"subreddit-notifier/reddit"
	"subreddit-notifier/storage"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var debug bool

	cmd := &cobra.Command{
		Use:           "subreddit-notifier",
		Short:         "Reddit thread subscription bot",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	cmd.AddCommand(newFeedCmd(&debug), newCommentsCmd(&debug), newInboxCmd(&debug), newSubscribersCmd(&debug))
	return cmd
}

func newLogger(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// signalContext cancels on SIGINT or SIGTERM; cancellation is the normal
// shutdown path and exits zero.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// app bundles the per-command startup state.
type app struct {
	site   config.Site
	store  *storage.Store
	logger *slog.Logger
}

// newApp loads configuration, connects the store, and verifies its schema
// version. Any failure here is fatal; nothing is retried at startup.
func newApp(ctx context.Context, logger *slog.Logger) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	site, err := cfg.SelectedSite()
	if err != nil {
		return nil, err
	}

	store, err := storage.Open(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		if closeErr := store.Close(); closeErr != nil {
			logger.Warn("Failed to close store", "error", closeErr)
		}
		return nil, err
	}

	return &app{site: site, store: store, logger: logger}, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("Failed to close store", "error", err)
	}
}

func (a *app) redditClient() *reddit.Client {
	return reddit.New(reddit.Config{
		Logger: a.logger,
		Credentials: reddit.Credentials{
			ClientID:     a.site.ClientID,
			ClientSecret: a.site.ClientSecret,
			Username:     a.site.Username,
			Password:     a.site.Password,
			UserAgent:    a.site.UserAgent,
		},
	})
}

// walkOptions describes one stream walk: which feed, what kind of entry
// the --after override names, and how to resolve the starting cursor.
type walkOptions struct {
	subreddit string
	path      string
	kind      string
	after     string
	reset     bool
}

// runWalk wires a feed client and walker for one stream and runs it until
// cancellation or failure.
func runWalk(ctx context.Context, a *app, opts walkOptions, consumer stream.Consumer) error {
	var after string
	if opts.after != "" {
		resolved, err := ident.ResolveAfter(a.site.Registry(), opts.kind, opts.after)
		if err != nil {
			return fmt.Errorf("resolve --after: %w", err)
		}
		after = resolved
	}

	feedClient := feed.New(feed.Config{
		Logger:    a.logger,
		Subreddit: opts.subreddit,
		Path:      opts.path,
		UserAgent: a.site.UserAgent,
	})

	streamKey := storage.CursorKey(opts.subreddit, opts.path)
	walker := poll.New(streamKey, feedClient, a.store, consumer, a.logger)

	if err := walker.Resolve(ctx, poll.Options{After: after, Reset: opts.reset}); err != nil {
		return err
	}

	a.logger.Info("Stream walk started", "subreddit", opts.subreddit, "path", opts.path)
	return walker.Run(ctx)
}
