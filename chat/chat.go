// Package chat is the IRC transport: it connects to the chat network, joins
// the watched channels, and forwards every inbound message to the scraper
// pipeline. It can also speak, which the notifier uses for in-channel and
// whisper delivery.
package chat

import (
	"context"
	"log/slog"
	"strings"
	"time"

	twitch "github.com/gempir/go-twitch-irc/v3"

	"github.com/onnwee/invite-sniper/scraper"
)

// Handler consumes inbound chat messages. Satisfied by *scraper.Sniper.
type Handler interface {
	HandleMessage(ctx context.Context, msg scraper.Message)
}

// Watcher owns the IRC client lifecycle.
type Watcher struct {
	Username string
	OAuth    string
	Channels []string
	Handler  Handler

	client *twitch.Client
}

// Start connects and blocks until ctx is canceled or the connection fails.
// Message arrival is stamped before any processing so time-to-redeem covers
// the whole pipeline.
func (w *Watcher) Start(ctx context.Context) error {
	if w.Username == "" || w.OAuth == "" {
		slog.Info("chat creds not set; skipping chat watcher", slog.String("component", "chat"))
		return nil
	}
	if len(w.Channels) == 0 {
		slog.Warn("no channels to watch", slog.String("component", "chat"))
		return nil
	}
	w.client = twitch.NewClient(w.Username, w.OAuth)

	w.client.OnPrivateMessage(func(msg twitch.PrivateMessage) {
		arrival := time.Now()
		w.Handler.HandleMessage(ctx, scraper.Message{
			Text:    msg.Message,
			Arrival: arrival,
			Channel: msg.Channel,
			Author:  strings.ToLower(msg.User.Name),
		})
	})
	w.client.OnConnect(func() {
		slog.Info("chat connected", slog.Any("channels", w.Channels), slog.String("component", "chat"))
	})

	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		w.client.Disconnect()
		close(done)
	}()

	for _, ch := range w.Channels {
		w.client.Join(ch)
	}
	if err := w.client.Connect(); err != nil {
		select {
		case <-ctx.Done():
			// Disconnect on shutdown surfaces as a connect error; not a failure.
		default:
			slog.Error("chat connect error", slog.Any("err", err), slog.String("component", "chat"))
			return err
		}
	}
	<-done
	return nil
}

// Say sends a message to a channel. No-op before Start connects.
func (w *Watcher) Say(channel, message string) {
	if w.client == nil {
		return
	}
	w.client.Say(channel, message)
}

// Whisper sends a direct message to a user. No-op before Start connects.
func (w *Watcher) Whisper(user, message string) {
	if w.client == nil {
		return
	}
	w.client.Whisper(user, message)
}
