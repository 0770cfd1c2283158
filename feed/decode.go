package feed

import (
	"errors"
	"fmt"
	"io"

	"github.com/mmcdole/gofeed/atom"

	"subreddit-notifier/ident"
	"subreddit-notifier/pkg/stream"
)

// MalformedFeedError indicates a payload that is not a well-formed Atom
// document. Feed-source interruptions surface this transiently, so callers
// treat it like an empty page rather than a fatal error.
type MalformedFeedError struct {
	Cause error
}

func (e *MalformedFeedError) Error() string {
	return fmt.Sprintf("malformed feed: %v", e.Cause)
}

func (e *MalformedFeedError) Unwrap() error { return e.Cause }

// IsMalformedFeed checks if an error is a MalformedFeedError.
func IsMalformedFeed(err error) bool {
	var malformed *MalformedFeedError
	return errors.As(err, &malformed)
}

// DecodeAtom parses an Atom document into entries, preserving the
// document's newest-first order. Partial parses are not attempted: a
// document that is not well-formed XML fails as a whole. Entries with
// missing optional fields (category, author URI) are kept with zero
// values, never dropped.
func DecodeAtom(r io.Reader) ([]stream.Entry, error) {
	parsed, err := (&atom.Parser{}).Parse(r)
	if err != nil {
		return nil, &MalformedFeedError{Cause: err}
	}

	entries := make([]stream.Entry, 0, len(parsed.Entries))
	for _, item := range parsed.Entries {
		entry := stream.Entry{
			FullID:  item.ID,
			ShortID: ident.ShortID(item.ID),
			Title:   item.Title,
		}

		if len(item.Authors) > 0 && item.Authors[0] != nil {
			entry.AuthorName = item.Authors[0].Name
			entry.AuthorURI = item.Authors[0].URI
		}

		if len(item.Categories) > 0 && item.Categories[0] != nil {
			cat := item.Categories[0]
			entry.Category = map[string]string{}
			if cat.Term != "" {
				entry.Category["term"] = cat.Term
			}
			if cat.Label != "" {
				entry.Category["label"] = cat.Label
			}
		}

		if item.Content != nil {
			entry.BodyHTML = item.Content.Value
		}

		for _, link := range item.Links {
			if link == nil {
				continue
			}
			if link.Rel == "" || link.Rel == "alternate" {
				entry.Permalink = link.Href
				break
			}
		}

		switch {
		case item.UpdatedParsed != nil:
			entry.PublishedAt = item.UpdatedParsed.UTC()
		case item.PublishedParsed != nil:
			entry.PublishedAt = item.PublishedParsed.UTC()
		}

		entries = append(entries, entry)
	}

	return entries, nil
}
