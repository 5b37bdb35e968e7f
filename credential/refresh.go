package credential

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/onnwee/invite-sniper/telemetry"
)

const (
	// DefaultRefreshInterval keeps well inside the short-lived token expiry.
	DefaultRefreshInterval = 15 * time.Second
	// DefaultRefreshTimeout bounds a single session-touch call.
	DefaultRefreshTimeout = 5 * time.Second
)

// SessionTouchURL derives the session-touch endpoint from the session id
// embedded in the credential.
func SessionTouchURL(base, sessionID string) string {
	return fmt.Sprintf("%s/v1/client/sessions/%s/touch", strings.TrimRight(base, "/"), url.PathEscape(sessionID))
}

// Refresher periodically touches the session so the stored bearer token is
// replaced before it expires. Refresh calls are mutually exclusive via the
// store's busy flag: a trigger while one is in flight is a silent no-op,
// never queued.
type Refresher struct {
	Store      *Store
	TouchURL   string
	Cookie     string // secondary session cookie credential
	HTTPClient *http.Client
	Interval   time.Duration
	Timeout    time.Duration
}

// Start launches the refresh loop. An immediate refresh runs before the
// first tick so a nearly expired startup token is replaced right away.
// Failures are non-fatal and self-heal on the next tick.
func (r *Refresher) Start(ctx context.Context) {
	interval := r.Interval
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	go func() {
		slog.Info("credential refresher started", slog.Duration("interval", interval), slog.String("component", "credential"))
		if err := r.RefreshOnce(ctx); err != nil {
			slog.Warn("initial credential refresh failed", slog.Any("err", err), slog.String("component", "credential"))
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				slog.Info("credential refresher stopped", slog.String("component", "credential"))
				return
			case <-ticker.C:
				if err := r.RefreshOnce(ctx); err != nil {
					slog.Warn("credential refresh failed", slog.Any("err", err), slog.String("component", "credential"))
				}
			}
		}
	}()
}

// RefreshOnce performs a single session-touch call and swaps in the freshly
// issued token. Returns nil without acting when a refresh is already in
// flight.
func (r *Refresher) RefreshOnce(ctx context.Context) error {
	if !r.Store.refreshInFlight.CompareAndSwap(false, true) {
		return nil
	}
	defer r.Store.refreshInFlight.Store(false)

	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultRefreshTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	form := url.Values{}
	form.Set("active_organization_id", "")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.TouchURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if r.Cookie != "" {
		req.Header.Set("Cookie", r.Cookie)
	}

	hc := r.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		if telemetry.TokenRefreshFails != nil {
			telemetry.TokenRefreshFails.Inc()
		}
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if telemetry.TokenRefreshFails != nil {
			telemetry.TokenRefreshFails.Inc()
		}
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("session touch failed: %s: %s", resp.Status, string(b))
	}

	// The new token lives at a nested path in the touch response.
	var touch struct {
		Response struct {
			LastActiveToken struct {
				JWT string `json:"jwt"`
			} `json:"last_active_token"`
		} `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&touch); err != nil {
		if telemetry.TokenRefreshFails != nil {
			telemetry.TokenRefreshFails.Inc()
		}
		return fmt.Errorf("decode session touch response: %w", err)
	}
	jwt := touch.Response.LastActiveToken.JWT
	if jwt == "" {
		if telemetry.TokenRefreshFails != nil {
			telemetry.TokenRefreshFails.Inc()
		}
		return fmt.Errorf("session touch returned no token")
	}

	r.Store.SetToken(jwt)
	r.Store.SetValidity(ValidityValid)
	if telemetry.TokenRefreshes != nil {
		telemetry.TokenRefreshes.Inc()
	}
	slog.Debug("credential refreshed", slog.String("component", "credential"))
	return nil
}
