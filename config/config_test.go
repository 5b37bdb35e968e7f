package config

import (
	"encoding/base64"
	"testing"
	"time"
)

func sessionToken(t *testing.T) string {
	t.Helper()
	enc := base64.RawURLEncoding
	header := enc.EncodeToString([]byte(`{"alg":"RS256","typ":"JWT"}`))
	claims := enc.EncodeToString([]byte(`{"sid":"sess_abc123","exp":1999999999}`))
	return header + "." + claims + ".sig"
}

func validEnv(t *testing.T) {
	t.Helper()
	t.Setenv("BEARER_TOKEN", sessionToken(t))
	t.Setenv("REDEEM_ENDPOINT", "https://api.example.com/invites/redeem")
	t.Setenv("TWITCH_CHANNELS", "drops")
}

func TestLoadDefaults(t *testing.T) {
	validEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RefreshInterval != 15*time.Second {
		t.Errorf("RefreshInterval = %v", cfg.RefreshInterval)
	}
	if cfg.HealthInterval != time.Minute {
		t.Errorf("HealthInterval = %v", cfg.HealthInterval)
	}
	if cfg.RetryBaseDelay != 5*time.Second {
		t.Errorf("RetryBaseDelay = %v", cfg.RetryBaseDelay)
	}
	if cfg.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d", cfg.MaxRetries)
	}
	if !cfg.ExitOnEnrolled {
		t.Error("ExitOnEnrolled should default on")
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.AttemptsPerSecond != 1 {
		t.Errorf("AttemptsPerSecond = %v", cfg.AttemptsPerSecond)
	}
}

func TestChannelListParsing(t *testing.T) {
	validEnv(t)
	t.Setenv("TWITCH_CHANNELS", " Drops , general,,ANNOUNCEMENTS ")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []string{"drops", "general", "announcements"}
	if len(cfg.Channels) != len(want) {
		t.Fatalf("Channels = %v, want %v", cfg.Channels, want)
	}
	for i := range want {
		if cfg.Channels[i] != want[i] {
			t.Errorf("Channels[%d] = %q, want %q", i, cfg.Channels[i], want[i])
		}
	}
}

func TestDurationOverrides(t *testing.T) {
	validEnv(t)
	t.Setenv("REFRESH_INTERVAL", "30s")
	t.Setenv("RETRY_BASE_DELAY", "250ms")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RefreshInterval != 30*time.Second {
		t.Errorf("RefreshInterval = %v", cfg.RefreshInterval)
	}
	if cfg.RetryBaseDelay != 250*time.Millisecond {
		t.Errorf("RetryBaseDelay = %v", cfg.RetryBaseDelay)
	}
}

func TestInvalidDurationRejected(t *testing.T) {
	validEnv(t)
	t.Setenv("REFRESH_INTERVAL", "soon")
	if _, err := Load(); err == nil {
		t.Error("Load should reject unparsable duration")
	}
}

func TestExitOnEnrolledOptOut(t *testing.T) {
	validEnv(t)
	t.Setenv("EXIT_ON_ENROLLED", "false")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ExitOnEnrolled {
		t.Error("ExitOnEnrolled should be off")
	}
}

func TestValidateRedeemReady(t *testing.T) {
	validEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.ValidateRedeemReady(); err != nil {
		t.Errorf("ValidateRedeemReady: %v", err)
	}

	missing := *cfg
	missing.BearerToken = ""
	if err := missing.ValidateRedeemReady(); err == nil {
		t.Error("missing bearer token should refuse to start")
	}

	garbage := *cfg
	garbage.BearerToken = "not-a-jwt"
	if err := garbage.ValidateRedeemReady(); err == nil {
		t.Error("undecodable bearer token should refuse to start")
	}

	noChannels := *cfg
	noChannels.Channels = nil
	if err := noChannels.ValidateRedeemReady(); err == nil {
		t.Error("empty channel list should refuse to start")
	}

	noEndpoint := *cfg
	noEndpoint.RedeemEndpoint = ""
	if err := noEndpoint.ValidateRedeemReady(); err == nil {
		t.Error("missing redeem endpoint should refuse to start")
	}
}
