// Package poll walks a reverse-chronological feed stream and emits entries
// oldest-first, advancing a durable cursor after each emission.
package poll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"subreddit-notifier/pkg/stream"
)

// drainTimeout bounds the final cursor save on shutdown.
const drainTimeout = 5 * time.Second

// Fetcher interface for retrieving feed pages.
type Fetcher interface {
	FetchPage(ctx context.Context, before string) ([]stream.Entry, error)
	Newest(ctx context.Context) (stream.Entry, error)
}

// CursorStore interface for durable cursor persistence.
type CursorStore interface {
	LoadCursor(ctx context.Context, streamKey string) (string, bool, error)
	SaveCursor(ctx context.Context, streamKey, afterFullID string) error
}

// Options controls how the starting cursor is resolved.
type Options struct {
	// After is an already-resolved full ID override; it wins over any
	// persisted cursor.
	After string
	// Reset discards any persisted cursor and baselines on the newest
	// entry at startup.
	Reset bool
}

// Walker ingests one stream. It is single-threaded: no page is ever
// requested concurrently with another for the same stream, and it is the
// only writer of its cursor row.
type Walker struct {
	fetcher   Fetcher
	cursors   CursorStore
	consumer  stream.Consumer
	logger    *slog.Logger
	streamKey string
	after     string
	resolved  bool
}

// New creates a walker for one stream key.
func New(streamKey string, fetcher Fetcher, cursors CursorStore, consumer stream.Consumer, logger *slog.Logger) *Walker {
	return &Walker{
		fetcher:   fetcher,
		cursors:   cursors,
		consumer:  consumer,
		logger:    logger,
		streamKey: streamKey,
	}
}

// Resolve determines the starting cursor, exactly once per process
// lifetime. Priority: explicit override, reset-to-newest, persisted
// cursor, newest entry as baseline.
func (w *Walker) Resolve(ctx context.Context, opts Options) error {
	if w.resolved {
		return errors.New("cursor already resolved")
	}

	switch {
	case opts.After != "":
		w.after = opts.After
		w.logger.Info("Cursor resolved from explicit override", "stream", w.streamKey, "after", w.after)

	case opts.Reset:
		newest, err := w.fetcher.Newest(ctx)
		if err != nil {
			return fmt.Errorf("fetch newest for reset: %w", err)
		}
		w.after = newest.FullID
		w.logger.Info("Cursor reset to newest entry", "stream", w.streamKey, "after", w.after)

	default:
		persisted, ok, err := w.cursors.LoadCursor(ctx, w.streamKey)
		if err != nil {
			return fmt.Errorf("load cursor: %w", err)
		}
		if ok {
			w.after = persisted
			w.logger.Info("Cursor resumed from store", "stream", w.streamKey, "after", w.after)
			break
		}

		newest, err := w.fetcher.Newest(ctx)
		if err != nil {
			return fmt.Errorf("fetch newest for baseline: %w", err)
		}
		w.after = newest.FullID
		w.logger.Info("Cursor baselined on newest entry", "stream", w.streamKey, "after", w.after)
	}

	w.resolved = true
	return nil
}

// Run is the steady-state loop: fetch everything before the cursor,
// reverse the page so downstream effects happen in chronological order,
// and per entry invoke the consumer then advance and persist the cursor.
// Persistence is per-item, so a crash redelivers at most the entry that
// was in flight. Run returns nil on cancellation after draining, or the
// first consumer/store error otherwise.
func (w *Walker) Run(ctx context.Context) error {
	if !w.resolved {
		return errors.New("cursor not resolved")
	}

	for {
		if ctx.Err() != nil {
			return w.drain()
		}

		page, err := w.fetcher.FetchPage(ctx, w.after)
		if err != nil {
			if ctx.Err() != nil {
				return w.drain()
			}
			return fmt.Errorf("fetch page: %w", err)
		}

		// The source orders newest-first; walk the page backwards to
		// emit oldest-first.
		for i := len(page) - 1; i >= 0; i-- {
			entry := page[i]

			if err := w.consumer(ctx, entry); err != nil {
				if ctx.Err() != nil {
					return w.drain()
				}
				// The cursor stays before this entry; a restart
				// re-attempts it (at-least-once delivery).
				return fmt.Errorf("consume %s: %w", entry.FullID, err)
			}

			w.after = entry.FullID
			if err := w.cursors.SaveCursor(ctx, w.streamKey, entry.FullID); err != nil {
				if ctx.Err() != nil {
					return w.drain()
				}
				return fmt.Errorf("save cursor %s: %w", entry.FullID, err)
			}
		}
	}
}

// drain persists the in-memory cursor one last time before shutdown. The
// save is best-effort: a failure here means the next startup baselines on
// the newest entry instead, which is accepted over delaying shutdown.
func (w *Walker) drain() error {
	if w.after == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	if err := w.cursors.SaveCursor(ctx, w.streamKey, w.after); err != nil {
		w.logger.Warn("Cursor save on shutdown failed", "stream", w.streamKey, "after", w.after, "error", err)
		return nil
	}

	w.logger.Info("Cursor drained on shutdown", "stream", w.streamKey, "after", w.after)
	return nil
}
