package beacon

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
)

func countingServer(t *testing.T) (*httptest.Server, func() map[string]int) {
	t.Helper()
	var mu sync.Mutex
	hits := map[string]int{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits[r.URL.Path]++
		mu.Unlock()
	}))
	t.Cleanup(srv.Close)
	return srv, func() map[string]int {
		mu.Lock()
		defer mu.Unlock()
		out := make(map[string]int, len(hits))
		for k, v := range hits {
			out[k] = v
		}
		return out
	}
}

func TestPingHitsEventPath(t *testing.T) {
	srv, hits := countingServer(t)
	b := &Beacon{BaseURL: srv.URL}
	b.Ping(context.Background(), EventRedeem)
	if got := hits()["/redeem"]; got != 1 {
		t.Errorf("redeem hits = %d, want 1", got)
	}
}

func TestOptOutSilencesEverything(t *testing.T) {
	srv, hits := countingServer(t)
	b := &Beacon{BaseURL: srv.URL, OptOut: true}
	b.Ping(context.Background(), EventRedeem)
	b.PingInstall(context.Background())
	if len(hits()) != 0 {
		t.Errorf("opted-out beacon pinged anyway: %v", hits())
	}
}

func TestInstallPingOncePerMarker(t *testing.T) {
	srv, hits := countingServer(t)
	marker := filepath.Join(t.TempDir(), ".install-marker")
	b := &Beacon{BaseURL: srv.URL, MarkerPath: marker}
	b.PingInstall(context.Background())
	b.PingInstall(context.Background())
	if got := hits()["/install"]; got != 1 {
		t.Errorf("install hits = %d, want 1", got)
	}

	// A fresh Beacon with the same marker must see the marker and skip.
	b2 := &Beacon{BaseURL: srv.URL, MarkerPath: marker}
	b2.PingInstall(context.Background())
	if got := hits()["/install"]; got != 1 {
		t.Errorf("install hits after marker = %d, want 1", got)
	}
}

func TestPingFailureIsSwallowed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()
	b := &Beacon{BaseURL: srv.URL}
	b.Ping(context.Background(), EventActive) // must not panic
}
