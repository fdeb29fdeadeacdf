package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/windoliver/ThreatWeaver/pkg/duration"
	"github.com/windoliver/ThreatWeaver/pkg/jsonutil"
)

// Compile-time interface check.
var _ Hook = (*SlackHook)(nil)

// SlackHook sends approval events to a Slack incoming webhook so a
// reviewer sees pending requests where they already work.
type SlackHook struct {
	webhookURL string
	client     *http.Client
	opts       SlackOptions
}

// SlackOptions configures the Slack hook behavior.
type SlackOptions struct {
	// Channel override (uses webhook default if empty).
	Channel string

	// Username for the bot (default: "ThreatWeaver").
	Username string

	// IconEmoji for the bot avatar (default: ":shield:").
	IconEmoji string

	// Client overrides the HTTP client.
	Client *http.Client
}

// NewSlackHook creates a Slack hook posting to webhookURL.
func NewSlackHook(webhookURL string, opts SlackOptions) *SlackHook {
	if opts.Username == "" {
		opts.Username = "ThreatWeaver"
	}
	if opts.IconEmoji == "" {
		opts.IconEmoji = ":shield:"
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: duration.WebhookTimeout}
	}
	return &SlackHook{webhookURL: webhookURL, client: opts.Client, opts: opts}
}

// EventTypes returns nil: every approval event is worth a message.
func (s *SlackHook) EventTypes() []EventType { return nil }

// OnEvent posts a formatted message for one event.
func (s *SlackHook) OnEvent(ctx context.Context, ev Event) error {
	payload := map[string]any{
		"username":   s.opts.Username,
		"icon_emoji": s.opts.IconEmoji,
		"text":       formatMessage(ev),
	}
	if s.opts.Channel != "" {
		payload["channel"] = s.opts.Channel
	}
	body, err := jsonutil.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: slack post: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if resp.StatusCode >= 300 {
		return fmt.Errorf("notify: slack returned %d", resp.StatusCode)
	}
	return nil
}

func formatMessage(ev Event) string {
	var b strings.Builder
	switch ev.Type {
	case EventRequestCreated:
		fmt.Fprintf(&b, ":rotating_light: *Approval needed* — %s\n", ev.Title)
		fmt.Fprintf(&b, "Risk: *%s* · Run: `%s` · Request: `%s`\n", ev.RiskLevel, ev.RunID, ev.RequestID)
		if !ev.ExpiresAt.IsZero() {
			fmt.Fprintf(&b, "Expires: %s", ev.ExpiresAt.UTC().Format("2006-01-02 15:04 UTC"))
		}
	case EventRequestDecided:
		emoji := ":white_check_mark:"
		if ev.Decision != "approved" {
			emoji = ":no_entry:"
		}
		fmt.Fprintf(&b, "%s *%s* — %s", emoji, ev.Decision, ev.Title)
		if ev.Reason != "" {
			fmt.Fprintf(&b, "\nReason: %s", ev.Reason)
		}
	case EventRequestExpired:
		fmt.Fprintf(&b, ":hourglass: *Expired without a decision* — %s (`%s`)", ev.Title, ev.RequestID)
	default:
		fmt.Fprintf(&b, "%s — %s", ev.Type, ev.Title)
	}
	return b.String()
}
