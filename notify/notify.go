// Package notify delivers out-of-band event notifications. Delivery is best
// effort: a failed notification is logged and dropped, never retried, and
// never blocks the redemption path.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Mode selects the delivery channel.
type Mode string

const (
	ModeWebhook Mode = "webhook"
	ModeChannel Mode = "channel"
	ModeDM      Mode = "dm"
	ModeNone    Mode = "none"
)

// ParseMode normalizes a configured mode string; unknown values fall back to
// none so a typo silences notifications instead of crashing startup.
func ParseMode(s string) Mode {
	switch Mode(s) {
	case ModeWebhook, ModeChannel, ModeDM, ModeNone:
		return Mode(s)
	case "":
		return ModeNone
	default:
		slog.Warn("unknown notify mode, disabling notifications", slog.String("mode", s), slog.String("component", "notify"))
		return ModeNone
	}
}

// Sender is the chat-side delivery primitive, satisfied by *chat.Watcher.
type Sender interface {
	Say(channel, message string)
	Whisper(user, message string)
}

const webhookTimeout = 5 * time.Second

// Notifier routes event notifications per the configured mode.
type Notifier struct {
	Mode       Mode
	WebhookURL string
	// Channel receives in-channel notifications for ModeChannel.
	Channel string
	// DMUser receives whispers for ModeDM.
	DMUser string
	// PingUser, when set, is prepended as a mention to every notification.
	PingUser string

	Sender     Sender
	HTTPClient *http.Client
}

// Send delivers one notification. kind tags the event for logs and the
// webhook payload; message is the human-readable body.
func (n *Notifier) Send(ctx context.Context, kind, message string) {
	if n == nil || n.Mode == ModeNone {
		return
	}
	if n.PingUser != "" {
		message = "@" + n.PingUser + " " + message
	}
	logger := slog.With(slog.String("component", "notify"), slog.String("kind", kind), slog.String("mode", string(n.Mode)))
	switch n.Mode {
	case ModeWebhook:
		if err := n.postWebhook(ctx, kind, message); err != nil {
			logger.Warn("webhook notification failed", slog.Any("err", err))
			return
		}
	case ModeChannel:
		if n.Sender == nil || n.Channel == "" {
			logger.Warn("channel notification not configured")
			return
		}
		n.Sender.Say(n.Channel, message)
	case ModeDM:
		if n.Sender == nil || n.DMUser == "" {
			logger.Warn("dm notification not configured")
			return
		}
		n.Sender.Whisper(n.DMUser, message)
	}
	logger.Info("notification sent")
}

type webhookPayload struct {
	Kind    string `json:"kind"`
	Content string `json:"content"`
	SentAt  string `json:"sent_at"`
}

func (n *Notifier) postWebhook(ctx context.Context, kind, message string) error {
	body, err := json.Marshal(webhookPayload{Kind: kind, Content: message, SentAt: time.Now().UTC().Format(time.RFC3339)})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, webhookTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	client := n.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %s", resp.Status)
	}
	return nil
}
