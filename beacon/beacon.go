// Package beacon emits anonymous usage pings to a hit-counter service. Pings
// carry no payload beyond the event name in the URL path. The whole package
// is inert when the operator opts out.
package beacon

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"
)

const (
	// DefaultHeartbeat spaces the periodic active pings.
	DefaultHeartbeat = 30 * time.Minute
	pingTimeout      = 5 * time.Second
)

// Event names the countable moments.
type Event string

const (
	EventInstall Event = "install"
	EventActive  Event = "active"
	EventRedeem  Event = "redeem"
)

// Beacon fires counter pings. The zero value with OptOut true is a no-op.
type Beacon struct {
	// BaseURL is the counter endpoint; the event name is appended as a path
	// segment. Empty disables pings.
	BaseURL string
	OptOut  bool
	// MarkerPath records that the install ping already fired so reinstalls
	// of the same checkout count once. Empty skips the marker.
	MarkerPath string
	Heartbeat  time.Duration
	HTTPClient *http.Client

	installOnce sync.Once
}

// Ping fires one counter hit. Failures are logged at debug and dropped.
func (b *Beacon) Ping(ctx context.Context, ev Event) {
	if b == nil || b.OptOut || b.BaseURL == "" {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.BaseURL+"/"+string(ev), nil)
	if err != nil {
		return
	}
	client := b.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		slog.Debug("beacon ping failed", slog.String("event", string(ev)), slog.Any("err", err), slog.String("component", "beacon"))
		return
	}
	resp.Body.Close()
}

// PingInstall fires the install ping at most once per checkout, tracked via
// the marker file.
func (b *Beacon) PingInstall(ctx context.Context) {
	if b == nil || b.OptOut || b.BaseURL == "" {
		return
	}
	b.installOnce.Do(func() {
		if b.MarkerPath != "" {
			if _, err := os.Stat(b.MarkerPath); err == nil {
				return
			}
		}
		b.Ping(ctx, EventInstall)
		if b.MarkerPath != "" {
			if err := os.WriteFile(b.MarkerPath, []byte(time.Now().UTC().Format(time.RFC3339)+"\n"), 0o644); err != nil {
				slog.Debug("beacon marker write failed", slog.Any("err", err), slog.String("component", "beacon"))
			}
		}
	})
}

// Start runs the heartbeat loop: one active ping immediately, then one per
// interval until ctx is canceled.
func (b *Beacon) Start(ctx context.Context) {
	if b == nil || b.OptOut || b.BaseURL == "" {
		return
	}
	interval := b.Heartbeat
	if interval <= 0 {
		interval = DefaultHeartbeat
	}
	b.Ping(ctx, EventActive)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.Ping(ctx, EventActive)
		}
	}
}
