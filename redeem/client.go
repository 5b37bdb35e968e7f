package redeem

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/onnwee/invite-sniper/extract"
	"github.com/onnwee/invite-sniper/telemetry"
)

const (
	// DefaultTimeout bounds a real redemption attempt.
	DefaultTimeout = 10 * time.Second
	// DefaultProbeTimeout bounds a synthetic health probe.
	DefaultProbeTimeout = 5 * time.Second

	maxBodyBytes = 1 << 20
)

// TokenProvider supplies the current bearer credential. The credential store
// is the single writer; the client only ever reads.
type TokenProvider interface {
	Token() string
}

// Client issues redemption calls against the activation endpoint and
// classifies each response.
type Client struct {
	Endpoint     string
	Creds        TokenProvider
	HTTPClient   *http.Client
	Timeout      time.Duration
	ProbeTimeout time.Duration

	// Origin/Referer sent with browser-mimicking headers.
	Origin  string
	Referer string
}

// Attempt issues one redemption call for code. arrival is the message arrival
// time used for the informational time-to-redeem measurement; pass the zero
// time when unknown (retries keep the original arrival time).
func (c *Client) Attempt(ctx context.Context, code string, arrival time.Time) Outcome {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	out := c.post(ctx, code, timeout)
	if !arrival.IsZero() {
		out.Elapsed = time.Since(arrival)
	}
	if telemetry.TimeToRedeem != nil && out.Elapsed > 0 {
		telemetry.TimeToRedeem.Observe(out.Elapsed.Seconds())
	}
	logger := telemetry.LoggerWithCorr(ctx).With(
		slog.String("component", "redeem"),
		slog.String("code", code),
		slog.String("outcome", out.Kind.String()),
	)
	if out.Elapsed > 0 {
		logger = logger.With(slog.Duration("time_to_redeem", out.Elapsed))
	}
	switch out.Kind {
	case KindSuccess:
		logger.Info("code redeemed", slog.String("payload", string(out.Body)))
	case KindUnexpected:
		// Full payload logged for operator diagnosis; never retried.
		logger.Error("unexpected redemption response", slog.Int("status", out.Status), slog.String("payload", string(out.Body)))
	case KindNetworkError:
		logger.Warn("redemption request failed", slog.Any("err", out.Err))
	default:
		logger.Info("redemption attempt classified", slog.Int("status", out.Status))
	}
	return out
}

// Probe issues a redemption call with a freshly generated fake code. A 404 is
// the healthy answer: the credential was accepted and the nonexistent code
// correctly rejected.
func (c *Client) Probe(ctx context.Context) Outcome {
	timeout := c.ProbeTimeout
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	return c.post(ctx, FakeCode(), timeout)
}

func (c *Client) post(ctx context.Context, code string, timeout time.Duration) Outcome {
	body, err := json.Marshal(map[string]string{"inviteCode": code})
	if err != nil {
		return Outcome{Kind: KindNetworkError, Err: err}
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return Outcome{Kind: KindNetworkError, Err: err}
	}
	c.setHeaders(req)

	hc := c.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		// Timeouts and connection failures are transient by definition.
		return Outcome{Kind: KindNetworkError, Err: err}
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	payload, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	return classify(resp.StatusCode, payload, parseRetryAfter(resp.Header.Get("Retry-After")))
}

// setHeaders applies the bearer credential and standard browser-mimicking
// headers expected by the activation endpoint.
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Language", "en,en-US;q=0.9")
	req.Header.Set("Authorization", "Bearer "+c.Creds.Token())
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("DNT", "1")
	req.Header.Set("Pragma", "no-cache")
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/140.0.0.0 Safari/537.36")
	if c.Origin != "" {
		req.Header.Set("Origin", c.Origin)
	}
	if c.Referer != "" {
		req.Header.Set("Referer", c.Referer)
	}
}

// parseRetryAfter interprets a Retry-After header given in seconds. HTTP-date
// form is ignored; the endpoint is not known to use it.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

const fakeCodeCharset = "abcdefghijklmnopqrstuvwxyz0123456789"

// FakeCode generates a random syntactically plausible code for health probes.
func FakeCode() string {
	b := make([]byte, extract.CodeLength)
	for i := range b {
		//nolint:gosec // G404: probe codes are not security material
		b[i] = fakeCodeCharset[rand.Intn(len(fakeCodeCharset))]
	}
	return string(b)
}
