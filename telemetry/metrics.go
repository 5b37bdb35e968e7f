// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	MessagesSeen      prometheus.Counter
	CodesProcessed    prometheus.Counter
	RedeemSuccesses   prometheus.Counter
	AlreadyRedeemed   prometheus.Counter
	InvalidCodes      prometheus.Counter
	AuthErrors        prometheus.Counter
	RateLimited       prometheus.Counter
	NetworkErrors     prometheus.Counter
	UnexpectedErrors  prometheus.Counter
	RetriesExhausted  prometheus.Counter
	TokenRefreshes    prometheus.Counter
	TokenRefreshFails prometheus.Counter
	HealthChecks      prometheus.Counter

	// Histograms (seconds)
	TimeToRedeem prometheus.Observer

	// Gauges
	RetryQueueDepthGauge prometheus.Gauge
	TokenValidGauge      prometheus.Gauge // 1=valid,0=invalid
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		MessagesSeen = promauto.NewCounter(prometheus.CounterOpts{Name: "sniper_messages_seen_total", Help: "Chat messages received from watched channels"})
		CodesProcessed = promauto.NewCounter(prometheus.CounterOpts{Name: "sniper_codes_processed_total", Help: "Candidate codes attempted (deduplicated)"})
		RedeemSuccesses = promauto.NewCounter(prometheus.CounterOpts{Name: "sniper_redeem_success_total", Help: "Successful redemptions"})
		AlreadyRedeemed = promauto.NewCounter(prometheus.CounterOpts{Name: "sniper_redeem_already_redeemed_total", Help: "Codes that were already redeemed by someone else"})
		InvalidCodes = promauto.NewCounter(prometheus.CounterOpts{Name: "sniper_redeem_invalid_total", Help: "Codes rejected as invalid or nonexistent"})
		AuthErrors = promauto.NewCounter(prometheus.CounterOpts{Name: "sniper_redeem_auth_errors_total", Help: "Redemption attempts failing with 401/403"})
		RateLimited = promauto.NewCounter(prometheus.CounterOpts{Name: "sniper_redeem_rate_limited_total", Help: "Redemption attempts rejected with 429"})
		NetworkErrors = promauto.NewCounter(prometheus.CounterOpts{Name: "sniper_redeem_network_errors_total", Help: "Redemption attempts failing with timeouts or connection errors"})
		UnexpectedErrors = promauto.NewCounter(prometheus.CounterOpts{Name: "sniper_redeem_unexpected_total", Help: "Redemption attempts failing with an unrecognized status"})
		RetriesExhausted = promauto.NewCounter(prometheus.CounterOpts{Name: "sniper_retries_exhausted_total", Help: "Codes dropped after exhausting retries"})
		TokenRefreshes = promauto.NewCounter(prometheus.CounterOpts{Name: "sniper_token_refreshes_total", Help: "Successful credential refreshes"})
		TokenRefreshFails = promauto.NewCounter(prometheus.CounterOpts{Name: "sniper_token_refresh_failures_total", Help: "Failed credential refresh attempts"})
		HealthChecks = promauto.NewCounter(prometheus.CounterOpts{Name: "sniper_health_checks_total", Help: "Credential health probes issued"})
		TimeToRedeem = promauto.NewHistogram(prometheus.HistogramOpts{Name: "sniper_time_to_redeem_seconds", Help: "Elapsed time from message arrival to redemption request send", Buckets: prometheus.DefBuckets})
		RetryQueueDepthGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "sniper_retry_queue_depth", Help: "Current number of codes waiting for retry"})
		TokenValidGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "sniper_token_valid", Help: "Credential validity per last signal: valid=1 invalid=0"})
	})
}

// SetRetryQueueDepth records the current retry queue depth.
func SetRetryQueueDepth(n int) {
	if RetryQueueDepthGauge != nil {
		RetryQueueDepthGauge.Set(float64(n))
	}
}

// SetTokenValid sets the credential validity gauge.
func SetTokenValid(valid bool) {
	if TokenValidGauge != nil {
		if valid {
			TokenValidGauge.Set(1)
		} else {
			TokenValidGauge.Set(0)
		}
	}
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
