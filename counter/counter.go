// Package counter tallies comments per submission per digest day.
package counter

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"subreddit-notifier/ident"
	"subreddit-notifier/pkg/stream"
)

// cutoffLayout parses a time-of-day with a mandatory UTC offset, e.g.
// "06:00:00+00:00". An offset-less value is rejected so bucketing stays
// unambiguous across deploys.
const cutoffLayout = "15:04:05Z07:00"

// CountStore interface for persisting per-day tallies.
type CountStore interface {
	CountComment(ctx context.Context, submissionID string, bucket time.Time) error
}

// Counter is the consumer for the subreddit comment stream.
type Counter struct {
	store     CountStore
	logger    *slog.Logger
	blacklist map[string]struct{}
	cutoff    time.Time
}

// New creates a counter. The cutoff is the daily digest boundary;
// blacklist names are matched case-insensitively against comment authors.
func New(store CountStore, cutoff string, blacklist []string, logger *slog.Logger) (*Counter, error) {
	parsed, err := ParseCutoff(cutoff)
	if err != nil {
		return nil, err
	}

	names := make(map[string]struct{}, len(blacklist))
	for _, name := range blacklist {
		names[strings.ToLower(strings.TrimSpace(name))] = struct{}{}
	}

	return &Counter{
		store:     store,
		logger:    logger,
		blacklist: names,
		cutoff:    parsed,
	}, nil
}

// ParseCutoff parses a "HH:MM:SS±HH:MM" cutoff time.
func ParseCutoff(value string) (time.Time, error) {
	parsed, err := time.Parse(cutoffLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse comments cutoff %q (need time with offset): %w", value, err)
	}
	return parsed, nil
}

// Consume counts one comment against its submission's digest day.
func (c *Counter) Consume(ctx context.Context, entry stream.Entry) error {
	author := strings.ToLower(strings.TrimPrefix(entry.AuthorName, "/u/"))
	if _, skip := c.blacklist[author]; skip {
		c.logger.Debug("Skipping blacklisted author", "author", entry.AuthorName, "comment", entry.FullID)
		return nil
	}

	submissionID, err := ident.SubmissionIDFromPermalink(entry.Permalink)
	if err != nil {
		return fmt.Errorf("resolve submission for %s: %w", entry.FullID, err)
	}

	bucket := BucketDate(entry.PublishedAt, c.cutoff)
	if err := c.store.CountComment(ctx, submissionID, bucket); err != nil {
		return fmt.Errorf("count comment %s: %w", entry.FullID, err)
	}

	c.logger.Debug("Comment counted", "comment", entry.FullID, "submission", submissionID, "bucket", bucket.Format(time.DateOnly))
	return nil
}

// BucketDate returns the digest day a comment belongs to. Comments
// published before the cutoff time-of-day count towards the previous
// day, so a digest sent at the cutoff covers one full day of activity.
// The returned date is midnight UTC.
func BucketDate(published, cutoff time.Time) time.Time {
	local := published.In(cutoff.Location())
	year, month, day := local.Date()

	boundary := time.Date(year, month, day, cutoff.Hour(), cutoff.Minute(), cutoff.Second(), 0, cutoff.Location())
	bucket := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if local.Before(boundary) {
		bucket = bucket.AddDate(0, 0, -1)
	}
	return bucket
}
