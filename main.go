// Command invite-sniper watches chat for obfuscated invite codes and races to
// redeem them. It:
//   - Loads configuration and initializes structured logging.
//   - Decodes the bearer credential and starts the session keep-alive and
//     health-check loops.
//   - Starts the chat watcher feeding the extraction and redemption pipeline.
//   - Exposes a minimal HTTP server with /healthz, /status, and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM, and automatic after a winning
// redemption or when our own enrollment turns out to already be complete.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/onnwee/invite-sniper/beacon"
	"github.com/onnwee/invite-sniper/chat"
	"github.com/onnwee/invite-sniper/config"
	"github.com/onnwee/invite-sniper/credential"
	"github.com/onnwee/invite-sniper/notify"
	"github.com/onnwee/invite-sniper/redeem"
	"github.com/onnwee/invite-sniper/scraper"
	"github.com/onnwee/invite-sniper/server"
	"github.com/onnwee/invite-sniper/telemetry"
)

// notifyFlushDelay gives the success notification time to leave the process
// before the winning shutdown.
const notifyFlushDelay = 2 * time.Second

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))

	// Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.ValidateRedeemReady(); err != nil {
		slog.Error("not ready to redeem", slog.Any("err", err))
		os.Exit(1)
	}

	// Metrics / telemetry init
	telemetry.Init()

	// Initialize OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdownTracing, err := telemetry.InitTracing("invite-sniper", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdownTracing()

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Credential store and session keep-alive
	store := credential.NewStore(cfg.BearerToken)
	sessionID, err := credential.SessionID(cfg.BearerToken)
	if err != nil {
		// ValidateRedeemReady already decoded it; this cannot happen.
		slog.Error("credential decode failed", slog.Any("err", err))
		os.Exit(1)
	}
	slog.Info("credential decoded", slog.String("session_id", sessionID))

	if cfg.SessionBaseURL != "" {
		refresher := &credential.Refresher{
			Store:    store,
			TouchURL: credential.SessionTouchURL(cfg.SessionBaseURL, sessionID),
			Cookie:   cfg.SessionCookie,
			Interval: cfg.RefreshInterval,
		}
		refresher.Start(ctx)
	} else {
		slog.Warn("SESSION_BASE_URL not set; credential will expire without refresh")
	}

	// Redemption client and collaborators
	client := &redeem.Client{
		Endpoint: cfg.RedeemEndpoint,
		Creds:    store,
		Origin:   cfg.RedeemOrigin,
		Referer:  cfg.RedeemReferer,
	}
	var enrollment scraper.EnrollmentChecker
	if cfg.EnrollmentEndpoint != "" {
		enrollment = &redeem.EnrollmentClient{Endpoint: cfg.EnrollmentEndpoint, Creds: store}
	}

	beacons := &beacon.Beacon{
		BaseURL:    cfg.BeaconURL,
		OptOut:     cfg.BeaconOptOut,
		MarkerPath: cfg.BeaconMarker,
	}
	beacons.PingInstall(ctx)
	go beacons.Start(ctx)

	watcher := &chat.Watcher{
		Username: cfg.ChatUsername,
		OAuth:    cfg.ChatOAuth,
		Channels: cfg.Channels,
	}
	notifier := &notify.Notifier{
		Mode:       notify.ParseMode(cfg.NotifyMode),
		WebhookURL: cfg.NotifyWebhookURL,
		Channel:    cfg.NotifyChannel,
		DMUser:     cfg.NotifyDMUser,
		PingUser:   cfg.NotifyPingUser,
		Sender:     watcher,
	}

	endSession := func() {
		go func() {
			time.Sleep(notifyFlushDelay)
			stop()
		}()
	}
	sniper := scraper.New(scraper.Options{
		Redeemer:          client,
		Store:             store,
		Notifier:          notifier,
		Enrollment:        enrollment,
		SelfUser:          strings.ToLower(cfg.ChatUsername),
		Channels:          cfg.Channels,
		AttemptsPerSecond: cfg.AttemptsPerSecond,
		RetryBaseDelay:    cfg.RetryBaseDelay,
		MaxRetries:        cfg.MaxRetries,
		ExitOnEnrolled:    cfg.ExitOnEnrolled,
		OnSuccess: func(code string) {
			beacons.Ping(ctx, beacon.EventRedeem)
			endSession()
		},
		OnSessionEnd: endSession,
	})
	watcher.Handler = sniper

	// Credential health loop, probing the redemption endpoint with fake codes.
	health := &credential.HealthChecker{
		Store:    store,
		Prober:   client,
		Interval: cfg.HealthInterval,
		OnAuthFailure: func(hctx context.Context) {
			notifier.Send(hctx, "token_issue", "Credential health probe got an auth error; the bearer token is likely expired.")
		},
	}
	health.Start(ctx)

	// If our enrollment already succeeded there is nothing to snipe for.
	if enrollment != nil && cfg.ExitOnEnrolled {
		startupCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		enrolled, err := enrollment.Enrolled(startupCtx)
		cancel()
		if err != nil {
			slog.Warn("startup enrollment check failed", slog.Any("err", err))
		} else if enrolled {
			slog.Info("enrollment already complete; nothing to watch for")
			return
		}
	}

	go func() {
		if err := watcher.Start(ctx); err != nil {
			slog.Error("chat watcher exited with error", slog.Any("err", err))
		}
	}()

	// HTTP server (health/status/metrics)
	go func() {
		if err := server.Start(ctx, sniper, cfg.HTTPAddr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	// Block until shutdown signal or a winning redemption
	<-ctx.Done()
	slog.Info("shutting down")
}
