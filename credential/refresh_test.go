package credential

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func touchResponse(jwt string) string {
	return `{"response":{"last_active_token":{"jwt":"` + jwt + `"}}}`
}

func TestRefreshOnceSwapsToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
			t.Errorf("content-type = %q", ct)
		}
		if cookie := r.Header.Get("Cookie"); cookie != "__client=abc" {
			t.Errorf("cookie = %q, want __client=abc", cookie)
		}
		_, _ = w.Write([]byte(touchResponse("fresh-token")))
	}))
	defer srv.Close()

	store := NewStore("stale-token")
	r := &Refresher{Store: store, TouchURL: srv.URL, Cookie: "__client=abc"}
	if err := r.RefreshOnce(context.Background()); err != nil {
		t.Fatalf("RefreshOnce: %v", err)
	}
	if got := store.Token(); got != "fresh-token" {
		t.Errorf("Token = %q, want fresh-token", got)
	}
	if store.Validity() != ValidityValid {
		t.Error("successful refresh should mark credential valid")
	}
}

func TestRefreshOnceMutualExclusion(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		<-release
		_, _ = w.Write([]byte(touchResponse("fresh-token")))
	}))
	defer srv.Close()

	store := NewStore("stale")
	r := &Refresher{Store: store, TouchURL: srv.URL, Timeout: 2 * time.Second}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = r.RefreshOnce(context.Background())
	}()
	// Wait until the first refresh holds the busy flag.
	deadline := time.Now().Add(time.Second)
	for calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	// Second trigger while one is in flight must be a silent no-op.
	if err := r.RefreshOnce(context.Background()); err != nil {
		t.Errorf("overlapping refresh should no-op, got %v", err)
	}
	close(release)
	wg.Wait()

	if n := calls.Load(); n != 1 {
		t.Errorf("outbound refresh calls = %d, want 1", n)
	}
}

func TestRefreshOnceHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	store := NewStore("stale")
	r := &Refresher{Store: store, TouchURL: srv.URL}
	if err := r.RefreshOnce(context.Background()); err == nil {
		t.Fatal("expected error for 401 touch response")
	}
	if got := store.Token(); got != "stale" {
		t.Errorf("token should be unchanged on failure, got %q", got)
	}
}

func TestRefreshOnceEmptyJWT(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"response":{}}`))
	}))
	defer srv.Close()

	store := NewStore("stale")
	r := &Refresher{Store: store, TouchURL: srv.URL}
	if err := r.RefreshOnce(context.Background()); err == nil {
		t.Fatal("expected error when touch returns no token")
	}
}

func TestRefresherLoopCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(touchResponse("fresh")))
	}))
	defer srv.Close()

	store := NewStore("stale")
	r := &Refresher{Store: store, TouchURL: srv.URL, Interval: 10 * time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())
	r.Start(ctx)
	time.Sleep(50 * time.Millisecond)
	cancel()
	time.Sleep(20 * time.Millisecond)
	// If we get here without hanging, cancellation works; the initial
	// immediate refresh must also have happened.
	if got := store.Token(); got != "fresh" {
		t.Errorf("Token = %q, want fresh after loop ran", got)
	}
}

func TestSessionTouchURL(t *testing.T) {
	got := SessionTouchURL("https://clerk.example.com/", "sess_123")
	want := "https://clerk.example.com/v1/client/sessions/sess_123/touch"
	if got != want {
		t.Errorf("SessionTouchURL = %q, want %q", got, want)
	}
}
