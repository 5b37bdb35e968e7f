// Package testutil provides httptest mock servers for the redemption and
// session APIs, shared across package tests.
package testutil

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

// MockRedemptionServer mocks the invite redemption API.
type MockRedemptionServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc
	// Attempts counts redemption POSTs across all handlers.
	Attempts atomic.Int64
}

// NewMockRedemptionServer creates a mock redemption API server. Register
// per-path handlers via Handlers or the Mock* helpers; unknown paths 404.
func NewMockRedemptionServer(t *testing.T) *MockRedemptionServer {
	t.Helper()
	m := &MockRedemptionServer{
		Handlers: make(map[string]http.HandlerFunc),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			m.Attempts.Add(1)
		}
		if handler, ok := m.Handlers[r.URL.Path]; ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// MockRedeemResponse serves a fixed status and JSON message for /redeem.
func (m *MockRedemptionServer) MockRedeemResponse(status int, message string) {
	m.Handlers["/redeem"] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": message})
	}
}

// MockEnrollmentResponse serves a fixed enrollment status for /enrollment.
func (m *MockRedemptionServer) MockEnrollmentResponse(enrolled bool, status string) {
	m.Handlers["/enrollment"] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"enrolled": enrolled, "status": status})
	}
}

// MockSessionServer mocks the session-touch API that refreshes the bearer
// token.
type MockSessionServer struct {
	*httptest.Server
	Touches atomic.Int64
}

// NewMockSessionServer creates a session API mock whose touch endpoint always
// returns jwt as the refreshed token.
func NewMockSessionServer(t *testing.T, jwt string) *MockSessionServer {
	t.Helper()
	m := &MockSessionServer{}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.Touches.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"response": map[string]any{
				"last_active_token": map[string]string{"jwt": jwt},
			},
		})
	}))
	t.Cleanup(m.Close)
	return m
}

// SessionToken builds a structurally valid unsigned JWT whose claims carry
// the given session id.
func SessionToken(t *testing.T, sessionID string) string {
	t.Helper()
	enc := base64.RawURLEncoding
	header := enc.EncodeToString([]byte(`{"alg":"RS256","typ":"JWT"}`))
	claims := enc.EncodeToString([]byte(`{"sid":"` + sessionID + `","exp":1999999999}`))
	return header + "." + claims + ".sig"
}
