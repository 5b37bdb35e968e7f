package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

type fakeSender struct {
	channel, said     string
	dmUser, whispered string
}

func (f *fakeSender) Say(channel, message string)  { f.channel, f.said = channel, message }
func (f *fakeSender) Whisper(user, message string) { f.dmUser, f.whispered = user, message }

func TestParseMode(t *testing.T) {
	cases := map[string]Mode{
		"webhook": ModeWebhook,
		"channel": ModeChannel,
		"dm":      ModeDM,
		"none":    ModeNone,
		"":        ModeNone,
		"slack":   ModeNone,
	}
	for in, want := range cases {
		if got := ParseMode(in); got != want {
			t.Errorf("ParseMode(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestWebhookDelivery(t *testing.T) {
	var got webhookPayload
	var contentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &got)
	}))
	defer srv.Close()

	n := &Notifier{Mode: ModeWebhook, WebhookURL: srv.URL, PingUser: "operator"}
	n.Send(context.Background(), "redeem_success", "Invite redeemed!")

	if contentType != "application/json" {
		t.Errorf("content type = %q", contentType)
	}
	if got.Kind != "redeem_success" {
		t.Errorf("kind = %q", got.Kind)
	}
	if got.Content != "@operator Invite redeemed!" {
		t.Errorf("content = %q, want ping mention prefix", got.Content)
	}
}

func TestChannelDelivery(t *testing.T) {
	s := &fakeSender{}
	n := &Notifier{Mode: ModeChannel, Channel: "drops", Sender: s}
	n.Send(context.Background(), "token_issue", "credential expired")
	if s.channel != "drops" || s.said != "credential expired" {
		t.Errorf("said %q to %q", s.said, s.channel)
	}
}

func TestDMDelivery(t *testing.T) {
	s := &fakeSender{}
	n := &Notifier{Mode: ModeDM, DMUser: "operator", Sender: s}
	n.Send(context.Background(), "session_end", "done")
	if s.dmUser != "operator" || s.whispered != "done" {
		t.Errorf("whispered %q to %q", s.whispered, s.dmUser)
	}
}

func TestNoneModeSendsNothing(t *testing.T) {
	s := &fakeSender{}
	n := &Notifier{Mode: ModeNone, Channel: "drops", DMUser: "operator", Sender: s}
	n.Send(context.Background(), "redeem_success", "hi")
	if s.said != "" || s.whispered != "" {
		t.Error("none mode must not deliver")
	}
}

func TestWebhookErrorStatusReported(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := &Notifier{Mode: ModeWebhook, WebhookURL: srv.URL}
	if err := n.postWebhook(context.Background(), "redeem_success", "hi"); err == nil {
		t.Error("non-2xx webhook response should surface as an error")
	}
	// Send must still swallow it.
	n.Send(context.Background(), "redeem_success", "hi")
}

func TestWebhookFailureIsSwallowed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	n := &Notifier{Mode: ModeWebhook, WebhookURL: srv.URL}
	// Must not panic or block.
	n.Send(context.Background(), "redeem_success", "hi")
}
