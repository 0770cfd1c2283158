// Package inbox turns private messages to the bot into subscription
// changes.
package inbox

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"

	"subreddit-notifier/ident"
	"subreddit-notifier/reddit"
)

// markReadBatchSize keeps the acknowledgement form small enough for the
// API.
const markReadBatchSize = 25

var subjectRegex = regexp.MustCompile(`(?i)^\s*(un)?subscribe\s*$`)

// Mailbox interface over the bot's message inbox.
type Mailbox interface {
	Inbox(ctx context.Context) ([]reddit.Message, error)
	MarkRead(ctx context.Context, fullIDs []string) error
	ComposeMessage(ctx context.Context, to, subject, body string) error
}

// SubscriptionStore interface for applying membership changes.
type SubscriptionStore interface {
	Subscribe(ctx context.Context, submissionID, userName string) error
	Unsubscribe(ctx context.Context, submissionID, userName string) error
}

// Processor drains the unread inbox once per Run call.
type Processor struct {
	mailbox  Mailbox
	store    SubscriptionStore
	logger   *slog.Logger
	registry ident.Registry
	confirm  bool
}

// New creates a processor. With confirm set, each handled request gets a
// reply message back to its sender.
func New(mailbox Mailbox, store SubscriptionStore, registry ident.Registry, confirm bool, logger *slog.Logger) *Processor {
	return &Processor{
		mailbox:  mailbox,
		store:    store,
		logger:   logger,
		registry: registry,
		confirm:  confirm,
	}
}

// Run fetches the unread inbox, applies every subscribe and unsubscribe
// request, and marks everything read. Comment replies and messages the
// grammar does not match are acknowledged without any state change. A
// malformed submission reference in an otherwise valid request is logged
// and skipped rather than blocking the rest of the inbox.
func (p *Processor) Run(ctx context.Context) error {
	messages, err := p.mailbox.Inbox(ctx)
	if err != nil {
		return fmt.Errorf("fetch inbox: %w", err)
	}
	if len(messages) == 0 {
		p.logger.Debug("Inbox empty")
		return nil
	}

	handled := make([]string, 0, len(messages))
	for _, msg := range messages {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.handle(ctx, msg); err != nil {
			return err
		}
		handled = append(handled, msg.FullID)
	}

	for start := 0; start < len(handled); start += markReadBatchSize {
		end := min(start+markReadBatchSize, len(handled))
		if err := p.mailbox.MarkRead(ctx, handled[start:end]); err != nil {
			return fmt.Errorf("mark inbox read: %w", err)
		}
	}

	p.logger.Info("Inbox processed", "messages", len(handled))
	return nil
}

func (p *Processor) handle(ctx context.Context, msg reddit.Message) error {
	if msg.WasComment {
		p.logger.Debug("Ignoring comment reply", "message", msg.FullID, "author", msg.Author)
		return nil
	}

	match := subjectRegex.FindStringSubmatch(msg.Subject)
	if match == nil {
		p.logger.Debug("Ignoring message with unrecognized subject", "message", msg.FullID, "subject", msg.Subject)
		return nil
	}
	unsubscribe := match[1] != ""

	fullID, err := ident.ResolveAfter(p.registry, ident.KindSubmission, msg.Body)
	if err != nil {
		p.logger.Warn("Ignoring request with unresolvable submission",
			"message", msg.FullID,
			"author", msg.Author,
			"body", msg.Body,
			"error", err)
		return nil
	}
	submissionID := ident.ShortID(fullID)

	if unsubscribe {
		err = p.store.Unsubscribe(ctx, submissionID, msg.Author)
	} else {
		err = p.store.Subscribe(ctx, submissionID, msg.Author)
	}
	if err != nil {
		return fmt.Errorf("apply %s for %s: %w", msg.Subject, msg.Author, err)
	}

	action := "subscribed"
	if unsubscribe {
		action = "unsubscribed"
	}
	p.logger.Info("Subscription updated", "action", action, "user", msg.Author, "submission", submissionID)

	if p.confirm {
		body := fmt.Sprintf("You are now %s. Submission: %s", action, fullID)
		if err := p.mailbox.ComposeMessage(ctx, msg.Author, "Confirmation", body); err != nil {
			// Confirmation is best effort; the subscription change is
			// already durable.
			p.logger.Warn("Failed to send confirmation", "user", msg.Author, "error", err)
		}
	}
	return nil
}
