// Package config loads environment variables and provides a typed Config used across the service.
// It applies sensible defaults so the binary can run locally with minimal setup.
// Required redemption credentials are checked by ValidateRedeemReady.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/onnwee/invite-sniper/credential"
)

type Config struct {
	// Redemption
	BearerToken        string
	RedeemEndpoint     string
	EnrollmentEndpoint string
	RedeemOrigin       string
	RedeemReferer      string
	AttemptsPerSecond  float64

	// Session keep-alive
	SessionBaseURL  string
	SessionCookie   string
	RefreshInterval time.Duration

	// Health probing
	HealthInterval time.Duration

	// Retry policy
	RetryBaseDelay time.Duration
	MaxRetries     int

	// Chat
	ChatUsername string
	ChatOAuth    string
	Channels     []string

	// Notifications
	NotifyMode       string
	NotifyWebhookURL string
	NotifyChannel    string
	NotifyDMUser     string
	NotifyPingUser   string

	// Behavior
	ExitOnEnrolled bool

	// Beacons
	BeaconURL    string
	BeaconOptOut bool
	BeaconMarker string

	// HTTP surface
	HTTPAddr string
}

// Load reads environment variables and applies defaults. It doesn't fail on
// missing credentials; use ValidateRedeemReady() before starting the pipeline.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.BearerToken = os.Getenv("BEARER_TOKEN")
	cfg.RedeemEndpoint = os.Getenv("REDEEM_ENDPOINT")
	cfg.EnrollmentEndpoint = os.Getenv("ENROLLMENT_ENDPOINT")
	cfg.RedeemOrigin = os.Getenv("REDEEM_ORIGIN")
	cfg.RedeemReferer = os.Getenv("REDEEM_REFERER")

	cfg.AttemptsPerSecond = 1
	if v := os.Getenv("ATTEMPTS_PER_SECOND"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			return nil, fmt.Errorf("invalid ATTEMPTS_PER_SECOND %q", v)
		}
		cfg.AttemptsPerSecond = f
	}

	cfg.SessionBaseURL = os.Getenv("SESSION_BASE_URL")
	cfg.SessionCookie = os.Getenv("SESSION_COOKIE")

	var err error
	if cfg.RefreshInterval, err = envDuration("REFRESH_INTERVAL", 15*time.Second); err != nil {
		return nil, err
	}
	if cfg.HealthInterval, err = envDuration("HEALTH_INTERVAL", time.Minute); err != nil {
		return nil, err
	}
	if cfg.RetryBaseDelay, err = envDuration("RETRY_BASE_DELAY", 5*time.Second); err != nil {
		return nil, err
	}

	cfg.MaxRetries = 3
	if v := os.Getenv("MAX_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid MAX_RETRIES %q", v)
		}
		cfg.MaxRetries = n
	}

	cfg.ChatUsername = os.Getenv("TWITCH_BOT_USERNAME")
	cfg.ChatOAuth = os.Getenv("TWITCH_OAUTH_TOKEN")
	for _, ch := range strings.Split(os.Getenv("TWITCH_CHANNELS"), ",") {
		ch = strings.ToLower(strings.TrimSpace(ch))
		if ch != "" {
			cfg.Channels = append(cfg.Channels, ch)
		}
	}

	cfg.NotifyMode = os.Getenv("NOTIFY_MODE")
	cfg.NotifyWebhookURL = os.Getenv("NOTIFY_WEBHOOK_URL")
	cfg.NotifyChannel = os.Getenv("NOTIFY_CHANNEL")
	cfg.NotifyDMUser = os.Getenv("NOTIFY_DM_USER")
	cfg.NotifyPingUser = os.Getenv("NOTIFY_PING_USER")

	cfg.ExitOnEnrolled = envBool("EXIT_ON_ENROLLED", true)

	cfg.BeaconURL = os.Getenv("BEACON_URL")
	cfg.BeaconOptOut = envBool("BEACON_OPTOUT", false)
	cfg.BeaconMarker = os.Getenv("BEACON_MARKER")
	if cfg.BeaconMarker == "" {
		cfg.BeaconMarker = ".beacon-install"
	}

	cfg.HTTPAddr = os.Getenv("HTTP_ADDR")
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}

	return cfg, nil
}

// ValidateRedeemReady checks the fields the redemption pipeline cannot run
// without. Called once at startup; any failure here refuses to start.
func (c *Config) ValidateRedeemReady() error {
	if c.BearerToken == "" {
		return fmt.Errorf("missing BEARER_TOKEN")
	}
	if _, err := credential.SessionID(c.BearerToken); err != nil {
		return fmt.Errorf("BEARER_TOKEN is not a decodable session token: %w", err)
	}
	if c.RedeemEndpoint == "" {
		return fmt.Errorf("missing REDEEM_ENDPOINT")
	}
	if len(c.Channels) == 0 {
		return fmt.Errorf("missing TWITCH_CHANNELS: need at least one channel to watch")
	}
	return nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}

func envBool(key string, def bool) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}
