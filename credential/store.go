// Package credential owns the bearer token used for redemption calls and the
// two background activities that keep it alive: a periodic session-touch
// refresh and a jittered synthetic health probe. The store is the single
// shared mutable value in the process; the refresher is its only writer.
package credential

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/onnwee/invite-sniper/telemetry"
)

// Validity is the last known credential signal.
type Validity int

const (
	// ValidityUnknown means no health signal has been observed yet.
	ValidityUnknown Validity = iota
	// ValidityValid means the last signal accepted the credential.
	ValidityValid
	// ValidityInvalid means the last signal rejected the credential.
	ValidityInvalid
)

// String returns a human-readable name for the validity state.
func (v Validity) String() string {
	switch v {
	case ValidityValid:
		return "valid"
	case ValidityInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// State is a read-only snapshot for logging and the status endpoint.
type State struct {
	Validity        Validity  `json:"validity"`
	LastRefresh     time.Time `json:"last_refresh"`
	LastHealthCheck time.Time `json:"last_health_check"`
	RefreshInFlight bool      `json:"refresh_in_flight"`
}

// Store guards the current bearer token. Readers (redemption client, health
// probe) take the read lock; the refresher is the sole writer.
type Store struct {
	mu              sync.RWMutex
	token           string
	validity        Validity
	lastRefresh     time.Time
	lastHealthCheck time.Time

	refreshInFlight atomic.Bool
}

// NewStore returns a store seeded with the externally acquired token.
func NewStore(token string) *Store {
	return &Store{token: token}
}

// Token returns the current bearer token.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// SetToken replaces the stored token. Only the refresher calls this.
func (s *Store) SetToken(token string) {
	s.mu.Lock()
	s.token = token
	s.lastRefresh = time.Now()
	s.mu.Unlock()
}

// SetValidity records the latest credential signal.
func (s *Store) SetValidity(v Validity) {
	s.mu.Lock()
	s.validity = v
	s.mu.Unlock()
	telemetry.SetTokenValid(v == ValidityValid)
}

// Validity returns the last known credential signal.
func (s *Store) Validity() Validity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.validity
}

// MarkHealthCheck records when the last probe completed.
func (s *Store) MarkHealthCheck() {
	s.mu.Lock()
	s.lastHealthCheck = time.Now()
	s.mu.Unlock()
}

// State returns a snapshot of credential lifecycle state.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return State{
		Validity:        s.validity,
		LastRefresh:     s.lastRefresh,
		LastHealthCheck: s.lastHealthCheck,
		RefreshInFlight: s.refreshInFlight.Load(),
	}
}

// SessionID decodes the middle segment of the multi-part bearer token and
// extracts the session id claim. Without it the session-touch refresh cannot
// be derived, so a failure here is fatal at startup.
func SessionID(token string) (string, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return "", fmt.Errorf("credential is not a three-part token (got %d parts)", len(parts))
	}
	payload, err := decodeSegment(parts[1])
	if err != nil {
		return "", fmt.Errorf("decode credential claims: %w", err)
	}
	var claims struct {
		SID string `json:"sid"`
	}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return "", fmt.Errorf("parse credential claims: %w", err)
	}
	if claims.SID == "" {
		return "", errors.New("credential claims carry no session id")
	}
	return claims.SID, nil
}

func decodeSegment(seg string) ([]byte, error) {
	if b, err := base64.RawURLEncoding.DecodeString(seg); err == nil {
		return b, nil
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(seg, "="))
}
