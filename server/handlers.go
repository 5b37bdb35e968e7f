package server

import (
	"encoding/json"
	"net/http"

	"github.com/onnwee/invite-sniper/scraper"
)

// Handlers holds the dependencies of the HTTP surface.
type Handlers struct {
	Sniper *scraper.Sniper
}

// HandleHealthz responds to liveness probe requests. The process is alive as
// long as it can answer; credential health is reported on /status instead so
// an expired token never makes the orchestrator restart-loop us.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleStatus serves the counter snapshot plus credential state as JSON.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	// Always 200: an invalid credential is degraded, not dead, and the
	// body carries the detail.
	snap := h.Sniper.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(snap)
}
