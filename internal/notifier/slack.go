package notifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/slack-go/slack"

	"github.com/arcmetric/contactctl/internal/model"
)

// Ensure SlackNotifier implements model.Notifier.
var _ model.Notifier = (*SlackNotifier)(nil)

// SlackNotifier posts enrichment outcomes to a Slack channel via Incoming Webhooks.
type SlackNotifier struct {
	webhookURL string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewSlackNotifier returns a notifier that posts each outcome to Slack via webhook.
func NewSlackNotifier(webhookURL string, httpClient *http.Client, logger *slog.Logger) *SlackNotifier {
	return &SlackNotifier{
		webhookURL: webhookURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Notify sends the outcome as one Block Kit message. A 429 is retried once
// after the advertised Retry-After.
func (s *SlackNotifier) Notify(ctx context.Context, o model.Outcome) error {
	msg := &slack.WebhookMessage{
		Text:   fallbackText(o),
		Blocks: &slack.Blocks{BlockSet: buildBlocks(o)},
	}

	err := slack.PostWebhookCustomHTTPContext(ctx, s.webhookURL, s.httpClient, msg)
	var rl *slack.RateLimitedError
	if !errors.As(err, &rl) {
		if err != nil {
			return fmt.Errorf("post to slack: %w", err)
		}
		s.logger.Info("slack message sent", "contact", o.ContactID, "outcome", o.State)
		return nil
	}

	retryAfter := rl.RetryAfter
	if retryAfter <= 0 {
		retryAfter = time.Second
	}
	s.logger.Warn("slack rate limited, retrying", "retry_after", retryAfter)
	select {
	case <-ctx.Done():
		return fmt.Errorf("slack retry cancelled: %w", ctx.Err())
	case <-time.After(retryAfter):
	}

	if err := slack.PostWebhookCustomHTTPContext(ctx, s.webhookURL, s.httpClient, msg); err != nil {
		return fmt.Errorf("post to slack (retry): %w", err)
	}
	s.logger.Info("slack message sent", "contact", o.ContactID, "outcome", o.State, "retried", true)
	return nil
}

// SendTestMessage sends a sample outcome to verify the integration works.
func SendTestMessage(ctx context.Context, n model.Notifier) error {
	score := "85"
	return n.Notify(ctx, model.Outcome{
		ContactID: "test-001",
		State:     "completed",
		Attempts:  3,
		Elapsed:   6 * time.Second,
		Contact: &model.Contact{
			ID:          "test-001",
			Name:        "Integration Check",
			Email:       "check@example.com",
			Company:     "contactctl",
			Title:       "Test Notification",
			LinkedInURL: "https://www.linkedin.com/",
			Status:      model.StatusCompleted,
			ApexScore:   score,
		},
	})
}

var outcomeIcons = map[string]string{
	"completed":      "✅",
	"failed":         "❌",
	"timed_out":      "⏱️",
	"trigger_failed": "🚫",
}

func humanize(state string) string {
	s := strings.ReplaceAll(state, "_", " ")
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func fallbackText(o model.Outcome) string {
	return "Enrichment " + humanize(o.State) + ": " + o.ContactID
}

func plain(text string) *slack.TextBlockObject {
	return slack.NewTextBlockObject(slack.PlainTextType, text, true, false)
}

func mrkdwn(text string) *slack.TextBlockObject {
	return slack.NewTextBlockObject(slack.MarkdownType, text, false, false)
}

func buildBlocks(o model.Outcome) []slack.Block {
	name := o.ContactID
	company := "Unknown"
	if c := o.Contact; c != nil {
		if c.Name != "" {
			name = c.Name
		}
		if c.Company != "" {
			company = c.Company
		}
	}

	icon, ok := outcomeIcons[o.State]
	if !ok {
		icon = "ℹ️"
	}

	blocks := []slack.Block{
		slack.NewHeaderBlock(plain(icon + " Enrichment " + humanize(o.State) + ": " + name)),
		slack.NewSectionBlock(nil, []*slack.TextBlockObject{
			mrkdwn("*Contact:*\n" + o.ContactID),
			mrkdwn("*Company:*\n" + company),
		}, nil),
		slack.NewSectionBlock(nil, []*slack.TextBlockObject{
			mrkdwn("*Attempts:*\n" + strconv.Itoa(o.Attempts)),
			mrkdwn("*Elapsed:*\n" + o.Elapsed.Round(time.Millisecond).String()),
		}, nil),
	}

	if o.Contact != nil && o.Contact.ApexScore != "" {
		blocks = append(blocks, slack.NewSectionBlock(mrkdwn("*Apex score:* "+o.Contact.ApexScore), nil, nil))
	}

	if o.Err != nil {
		blocks = append(blocks, slack.NewSectionBlock(mrkdwn("*Error:* `"+o.Err.Error()+"`"), nil, nil))
	}

	if o.Contact != nil && o.Contact.LinkedInURL != "" {
		btn := slack.NewButtonBlockElement("open_profile", o.ContactID, plain("Open Profile"))
		btn.URL = o.Contact.LinkedInURL
		btn.Style = slack.StylePrimary
		blocks = append(blocks, slack.NewActionBlock("", btn))
	}

	return append(blocks, slack.NewDividerBlock())
}
