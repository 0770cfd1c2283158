// Package ident canonicalizes Reddit item identifiers. A full ID is a
// kind-prefixed base36 string ("t3_abc123"); a short ID is its bare suffix.
package ident

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Kind names understood by the registry.
const (
	KindSubmission = "submission"
	KindComment    = "comment"
)

// Reddit IDs are base36 int64s, so 13 digits is the ceiling.
var shortIDRegex = regexp.MustCompile(`^[0-9a-z]{1,13}$`)

// Registry maps a kind name to its full-ID prefix.
type Registry map[string]string

// DefaultRegistry returns the standard Reddit kind prefixes.
func DefaultRegistry() Registry {
	return Registry{
		KindSubmission: "t3",
		KindComment:    "t1",
	}
}

// InvalidIdentifierError indicates a caller-supplied starting point that
// cannot be resolved to a canonical full ID. Fatal at startup.
type InvalidIdentifierError struct {
	Kind  string
	Input string
}

func (e *InvalidIdentifierError) Error() string {
	return fmt.Sprintf("invalid %s identifier: %q", e.Kind, e.Input)
}

// IsInvalidIdentifier checks if an error is an InvalidIdentifierError.
func IsInvalidIdentifier(err error) bool {
	var invalid *InvalidIdentifierError
	return errors.As(err, &invalid)
}

// ShortID strips the kind prefix from a full ID. The split is on the last
// underscore so a prefix containing underscores cannot leak into the result.
func ShortID(fullID string) string {
	parts := strings.Split(fullID, "_")
	return parts[len(parts)-1]
}

// FullID prepends a kind prefix to a bare short ID.
func FullID(prefix, shortID string) string {
	return prefix + "_" + shortID
}

// ResolveAfter turns a caller-supplied starting point into a canonical full
// ID for the given kind. Accepted shapes, in order: a full ID carrying the
// kind's registered prefix, a bare base36 short ID, or a source URL.
// The prefix lookup is per-kind; passing the wrong kind is a caller error
// that cannot be detected here.
func ResolveAfter(reg Registry, kind, input string) (string, error) {
	prefix, ok := reg[kind]
	if !ok {
		return "", &InvalidIdentifierError{Kind: kind, Input: input}
	}

	if rest, found := strings.CutPrefix(input, prefix+"_"); found && shortIDRegex.MatchString(rest) {
		return input, nil
	}

	if shortIDRegex.MatchString(input) {
		return FullID(prefix, input), nil
	}

	shortID, err := shortIDFromURL(kind, input)
	if err != nil {
		return "", err
	}
	return FullID(prefix, shortID), nil
}

// shortIDFromURL extracts a short ID from a Reddit permalink. Submission
// URLs look like /r/<sub>/comments/<id>/<slug>/, comment URLs carry a
// second ID after the slug.
func shortIDFromURL(kind, rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return "", &InvalidIdentifierError{Kind: kind, Input: rawURL}
	}

	segments := splitPath(parsed.Path)
	commentsIdx := -1
	for i, seg := range segments {
		if seg == "comments" {
			commentsIdx = i
			break
		}
	}
	if commentsIdx < 0 || commentsIdx+1 >= len(segments) {
		return "", &InvalidIdentifierError{Kind: kind, Input: rawURL}
	}

	var shortID string
	switch kind {
	case KindSubmission:
		shortID = segments[commentsIdx+1]
	case KindComment:
		// comments/<submission>/<slug>/<comment>
		if commentsIdx+3 >= len(segments) {
			return "", &InvalidIdentifierError{Kind: kind, Input: rawURL}
		}
		shortID = segments[commentsIdx+3]
	default:
		return "", &InvalidIdentifierError{Kind: kind, Input: rawURL}
	}

	if !shortIDRegex.MatchString(shortID) {
		return "", &InvalidIdentifierError{Kind: kind, Input: rawURL}
	}
	return shortID, nil
}

// SubmissionIDFromPermalink extracts the submission short ID from any
// permalink under a submission, including comment permalinks.
func SubmissionIDFromPermalink(rawURL string) (string, error) {
	return shortIDFromURL(KindSubmission, rawURL)
}

func splitPath(path string) []string {
	var segments []string
	for _, seg := range strings.Split(path, "/") {
		if seg != "" {
			segments = append(segments, seg)
		}
	}
	return segments
}
