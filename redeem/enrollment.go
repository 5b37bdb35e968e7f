package redeem

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// EnrollmentClient checks whether the caller's own enrollment has already
// succeeded. Consulted once at startup and again when a redemption attempt
// reports a cohort mismatch: if we are already in, the race is over.
type EnrollmentClient struct {
	Endpoint   string
	Creds      TokenProvider
	HTTPClient *http.Client
	Timeout    time.Duration
}

// Enrolled returns whether the account behind the credential is enrolled.
func (e *EnrollmentClient) Enrolled(ctx context.Context) (bool, error) {
	timeout := e.Timeout
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.Endpoint, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.Creds.Token())
	hc := e.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return false, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		return false, fmt.Errorf("enrollment status request failed: %s: %s", resp.Status, string(b))
	}
	var status struct {
		Enrolled bool   `json:"enrolled"`
		Status   string `json:"status"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&status); err != nil {
		return false, fmt.Errorf("decode enrollment status: %w", err)
	}
	if status.Enrolled {
		return true, nil
	}
	switch strings.ToLower(status.Status) {
	case "enrolled", "active", "accepted":
		return true, nil
	}
	return false, nil
}
