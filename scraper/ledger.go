package scraper

import "sync"

// Ledger is the process-lifetime set of codes already handed to the
// redemption client. Growth is monotonic and unbounded; eviction is
// deliberately absent given the operational lifetime of the process.
type Ledger struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{seen: make(map[string]struct{})}
}

// MarkIfNew records code and reports whether it was previously unseen. The
// check and the mark are one atomic step so a code is claimed exactly once.
func (l *Ledger) MarkIfNew(code string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.seen[code]; ok {
		return false
	}
	l.seen[code] = struct{}{}
	return true
}

// Size returns the number of codes recorded.
func (l *Ledger) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.seen)
}
