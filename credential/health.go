package credential

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/onnwee/invite-sniper/redeem"
	"github.com/onnwee/invite-sniper/telemetry"
)

// DefaultHealthInterval is the base period between synthetic probes.
const DefaultHealthInterval = time.Minute

// Prober issues a synthetic redemption call with a fake code.
type Prober interface {
	Probe(ctx context.Context) redeem.Outcome
}

// HealthChecker periodically probes the redemption endpoint with a fake code
// to catch clear authentication failure early. The probe fails open: only
// 401/403 flips the credential to invalid; a 404 is the healthy answer (the
// fake code was correctly rejected); any other status is treated as probably
// still valid.
type HealthChecker struct {
	Store  *Store
	Prober Prober
	// OnAuthFailure fires when a probe reports the credential rejected.
	OnAuthFailure func(ctx context.Context)
	Interval      time.Duration
	// Jitter is the maximum random delay added to each tick so many
	// independent timers never synchronize into bursts against the
	// low-rate endpoint. Defaults to half the interval.
	Jitter time.Duration
}

// Start launches the health check loop, probing immediately before the
// first tick.
func (h *HealthChecker) Start(ctx context.Context) {
	interval := h.Interval
	if interval <= 0 {
		interval = DefaultHealthInterval
	}
	jitter := h.Jitter
	if jitter <= 0 {
		jitter = interval / 2
	}
	go func() {
		slog.Info("credential health checks started", slog.Duration("interval", interval), slog.Duration("max_jitter", jitter), slog.String("component", "credential"))
		h.CheckOnce(ctx)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				slog.Info("credential health checks stopped", slog.String("component", "credential"))
				return
			case <-ticker.C:
			}
			//nolint:gosec // G404: math/rand is sufficient for scheduling jitter, not used for security
			delay := time.Duration(rand.Int63n(int64(jitter)))
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			h.CheckOnce(ctx)
		}
	}()
}

// CheckOnce issues one probe and interprets the outcome.
func (h *HealthChecker) CheckOnce(ctx context.Context) {
	if telemetry.HealthChecks != nil {
		telemetry.HealthChecks.Inc()
	}
	out := h.Prober.Probe(ctx)
	defer h.Store.MarkHealthCheck()
	switch out.Kind {
	case redeem.KindInvalidCode:
		slog.Debug("credential health check passed", slog.String("component", "credential"))
		h.Store.SetValidity(ValidityValid)
	case redeem.KindAuthError:
		slog.Error("credential health check failed", slog.Int("status", out.Status), slog.String("component", "credential"))
		h.Store.SetValidity(ValidityInvalid)
		if h.OnAuthFailure != nil {
			h.OnAuthFailure(ctx)
		}
	case redeem.KindNetworkError:
		// No signal either way; leave the last known state alone.
		slog.Warn("credential health check network error", slog.Any("err", out.Err), slog.String("component", "credential"))
	default:
		slog.Debug("credential health check ambiguous; assuming valid", slog.Int("status", out.Status), slog.String("component", "credential"))
		h.Store.SetValidity(ValidityValid)
	}
}
