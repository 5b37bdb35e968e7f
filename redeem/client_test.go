package redeem

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type staticToken string

func (s staticToken) Token() string { return string(s) }

func newTestClient(endpoint string) *Client {
	return &Client{Endpoint: endpoint, Creds: staticToken("test-token")}
}

func TestAttemptClassification(t *testing.T) {
	cases := []struct {
		name      string
		status    int
		body      string
		wantKind  Kind
		retryable bool
	}{
		{"success", 200, `{"ok":true}`, KindSuccess, false},
		{"created", 201, `{}`, KindSuccess, false},
		{"already redeemed", 400, `{"error":"This invite code has already been redeemed"}`, KindAlreadyRedeemed, false},
		{"cohort mismatch", 400, `{"error":"invite requires prior enrollment"}`, KindCohortMismatch, false},
		{"other 400", 400, `{"error":"malformed request"}`, KindUnexpected, false},
		{"unauthorized", 401, `{}`, KindAuthError, true},
		{"forbidden", 403, `{}`, KindAuthError, true},
		{"not found", 404, `{}`, KindInvalidCode, false},
		{"rate limited", 429, `{}`, KindRateLimited, true},
		{"server error", 500, `{"error":"boom"}`, KindUnexpected, false},
		{"teapot", 418, `{}`, KindUnexpected, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
					t.Errorf("Authorization = %q, want Bearer test-token", got)
				}
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			out := newTestClient(srv.URL).Attempt(context.Background(), "a1b2c3d4e5f6", time.Now())
			if out.Kind != tc.wantKind {
				t.Errorf("Kind = %v, want %v", out.Kind, tc.wantKind)
			}
			if out.Retryable() != tc.retryable {
				t.Errorf("Retryable = %v, want %v", out.Retryable(), tc.retryable)
			}
			if out.Status != tc.status {
				t.Errorf("Status = %d, want %d", out.Status, tc.status)
			}
		})
	}
}

func TestAttemptRetryAfterHint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	out := newTestClient(srv.URL).Attempt(context.Background(), "a1b2c3d4e5f6", time.Time{})
	if out.Kind != KindRateLimited {
		t.Fatalf("Kind = %v, want KindRateLimited", out.Kind)
	}
	if out.RetryAfter != 7*time.Second {
		t.Errorf("RetryAfter = %v, want 7s", out.RetryAfter)
	}
}

func TestAttemptNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	out := newTestClient(srv.URL).Attempt(context.Background(), "a1b2c3d4e5f6", time.Time{})
	if out.Kind != KindNetworkError {
		t.Errorf("Kind = %v, want KindNetworkError", out.Kind)
	}
	if !out.Retryable() {
		t.Error("network errors must be retryable")
	}
	if out.Err == nil {
		t.Error("expected transport error detail")
	}
}

func TestAttemptTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	c.Timeout = 20 * time.Millisecond
	out := c.Attempt(context.Background(), "a1b2c3d4e5f6", time.Time{})
	if out.Kind != KindNetworkError {
		t.Errorf("Kind = %v, want KindNetworkError for timeout", out.Kind)
	}
}

func TestProbeSendsFakeCode(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, 256)
		n, _ := r.Body.Read(buf)
		gotBody = string(buf[:n])
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	out := newTestClient(srv.URL).Probe(context.Background())
	if out.Kind != KindInvalidCode {
		t.Errorf("Kind = %v, want KindInvalidCode (healthy probe)", out.Kind)
	}
	if gotBody == "" {
		t.Fatal("probe sent no body")
	}
	if len(gotBody) < 12 {
		t.Errorf("probe body suspiciously short: %q", gotBody)
	}
}

func TestFakeCodeShape(t *testing.T) {
	seen := map[string]struct{}{}
	for i := 0; i < 50; i++ {
		code := FakeCode()
		if len(code) != 12 {
			t.Fatalf("FakeCode length = %d, want 12", len(code))
		}
		for _, r := range code {
			if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
				t.Fatalf("FakeCode contains %q", r)
			}
		}
		seen[code] = struct{}{}
	}
	if len(seen) < 2 {
		t.Error("FakeCode does not look random")
	}
}

func TestOutcomeKindStrings(t *testing.T) {
	kinds := map[Kind]string{
		KindSuccess:         "success",
		KindAlreadyRedeemed: "already_redeemed",
		KindInvalidCode:     "invalid_code",
		KindCohortMismatch:  "cohort_mismatch",
		KindAuthError:       "auth_error",
		KindRateLimited:     "rate_limited",
		KindNetworkError:    "network_error",
		KindUnexpected:      "unexpected",
	}
	for k, want := range kinds {
		if k.String() != want {
			t.Errorf("Kind(%d).String() = %q, want %q", k, k.String(), want)
		}
	}
}
