// Package notify posts the bot's subscribe/unsubscribe reply under new
// submissions.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"text/template"

	"subreddit-notifier/pkg/stream"
)

// DefaultTemplate is used when the site config does not override the
// reply body.
const DefaultTemplate = `Get a daily digest of this thread's comments: [Subscribe]({{.SubscribeURL}})

Already subscribed? [Unsubscribe]({{.UnsubscribeURL}})`

// Publisher interface for posting replies.
type Publisher interface {
	Reply(ctx context.Context, parentFullID, body string) (string, error)
	DistinguishSticky(ctx context.Context, commentFullID string) error
}

// Notifier is the consumer for the new-submissions stream.
type Notifier struct {
	publisher   Publisher
	logger      *slog.Logger
	tmpl        *template.Template
	botUsername string
	sticky      bool
}

type templateData struct {
	Title          string
	Permalink      string
	SubscribeURL   string
	UnsubscribeURL string
}

// New creates a notifier. An empty templateText selects DefaultTemplate;
// sticky requires moderator permissions on the subreddit.
func New(publisher Publisher, botUsername, templateText string, sticky bool, logger *slog.Logger) (*Notifier, error) {
	if templateText == "" {
		templateText = DefaultTemplate
	}
	tmpl, err := template.New("reply").Parse(templateText)
	if err != nil {
		return nil, fmt.Errorf("parse reply template: %w", err)
	}
	return &Notifier{
		publisher:   publisher,
		logger:      logger,
		tmpl:        tmpl,
		botUsername: botUsername,
		sticky:      sticky,
	}, nil
}

// Consume posts the reply under one submission. A publisher failure
// propagates so the walker does not advance past the submission.
func (n *Notifier) Consume(ctx context.Context, entry stream.Entry) error {
	body, err := n.renderReply(entry)
	if err != nil {
		return fmt.Errorf("render reply for %s: %w", entry.FullID, err)
	}

	commentID, err := n.publisher.Reply(ctx, entry.FullID, body)
	if err != nil {
		return fmt.Errorf("post reply to %s: %w", entry.FullID, err)
	}

	if n.sticky {
		if err := n.publisher.DistinguishSticky(ctx, commentID); err != nil {
			return fmt.Errorf("sticky reply %s: %w", commentID, err)
		}
	}

	n.logger.Info("Submission reply posted", "submission", entry.FullID, "comment", commentID, "title", entry.Title)
	return nil
}

func (n *Notifier) renderReply(entry stream.Entry) (string, error) {
	var buf bytes.Buffer
	err := n.tmpl.Execute(&buf, templateData{
		Title:          entry.Title,
		Permalink:      entry.Permalink,
		SubscribeURL:   n.actionURL("Subscribe", entry.FullID),
		UnsubscribeURL: n.actionURL("Unsubscribe", entry.FullID),
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

// actionURL builds a pre-filled private-message compose link; the inbox
// processor parses the resulting messages back into subscription changes.
func (n *Notifier) actionURL(action, submissionFullID string) string {
	query := url.Values{}
	query.Set("to", "/u/"+n.botUsername)
	query.Set("subject", action)
	query.Set("message", submissionFullID)
	return "https://www.reddit.com/message/compose/?" + query.Encode()
}
