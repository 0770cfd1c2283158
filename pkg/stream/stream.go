// Package stream contains the core domain types for subreddit feed ingestion.
package stream

import (
	"context"
	"time"
)

// Entry is a single item decoded from the subreddit Atom feed. Entries are
// immutable once decoded; PublishedAt always carries an explicit offset.
type Entry struct {
	PublishedAt time.Time         // RFC3339 timestamp from the feed, normalized to UTC
	Category    map[string]string // Flair attribute bag (term, label), may be empty
	FullID      string            // Kind-prefixed canonical ID, e.g. "t3_abc123"
	ShortID     string            // Bare base36 suffix of FullID
	AuthorName  string            // Author display name, e.g. "/u/someone"
	AuthorURI   string            // Author profile URL
	BodyHTML    string            // Raw entry content
	Permalink   string            // Canonical URL of the submission or comment
	Title       string            // Entry title
}

// Consumer receives entries oldest-first from a walker. A non-nil error
// stops the walk with the cursor still pointing at the previous entry.
type Consumer func(ctx context.Context, entry Entry) error
