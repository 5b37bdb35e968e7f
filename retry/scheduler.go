// Package retry implements a bounded-retry, exponentially backed-off queue
// for redemption attempts whose outcomes were transient. A single drain
// worker owns the queue; enqueues from fresh attempts and re-enqueues from
// the drain itself interleave under one mutex.
package retry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/onnwee/invite-sniper/telemetry"
)

const (
	// DefaultBaseDelay is the first retry delay before exponential growth.
	DefaultBaseDelay = 5 * time.Second
	// DefaultMaxRetries bounds retries per code beyond the initial attempt.
	DefaultMaxRetries = 3
	// DefaultCapExponent caps the backoff exponent so the maximum wait is
	// bounded (base * 2^cap).
	DefaultCapExponent = 4
)

// Result is what the scheduler needs to know about a re-attempt: whether the
// outcome is still transient, and any server-supplied delay hint for the
// next retry.
type Result struct {
	Retryable bool
	DelayHint time.Duration
}

// AttemptFunc re-attempts a code. arrival is the original message arrival
// time (zero when unknown); it is forwarded untouched for observability.
type AttemptFunc func(ctx context.Context, code string, arrival time.Time) Result

// Entry is one queued retry. Owned exclusively by the scheduler.
type Entry struct {
	Code       string
	RetryCount int
	EnqueuedAt time.Time
	Arrival    time.Time
	delayHint  time.Duration
}

// Scheduler queues retryable codes and drains them with exponential backoff.
// Exactly one drain loop is active at a time, guarded by the draining flag.
type Scheduler struct {
	Attempt     AttemptFunc
	BaseDelay   time.Duration
	MaxRetries  int
	CapExponent int
	// OnExhausted fires when a still-retryable code runs out of retries.
	OnExhausted func(code string)

	mu       sync.Mutex
	queue    []Entry
	queued   map[string]struct{}
	draining bool
}

// Enqueue adds a code for retry. Idempotent per code: a code already queued
// is not duplicated. Starts the drain worker unless one is running.
func (s *Scheduler) Enqueue(ctx context.Context, code string, retryCount int, arrival time.Time, delayHint time.Duration) {
	s.mu.Lock()
	s.addLocked(code, retryCount, arrival, delayHint)
	start := !s.draining && len(s.queue) > 0
	if start {
		s.draining = true
	}
	s.mu.Unlock()
	if start {
		go s.drain(ctx)
	}
}

// Depth returns the current number of queued entries.
func (s *Scheduler) Depth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (s *Scheduler) addLocked(code string, retryCount int, arrival time.Time, delayHint time.Duration) {
	if s.queued == nil {
		s.queued = make(map[string]struct{})
	}
	if _, ok := s.queued[code]; ok {
		return
	}
	s.queued[code] = struct{}{}
	s.queue = append(s.queue, Entry{
		Code:       code,
		RetryCount: retryCount,
		EnqueuedAt: time.Now(),
		Arrival:    arrival,
		delayHint:  delayHint,
	})
	telemetry.SetRetryQueueDepth(len(s.queue))
	slog.Info("code queued for retry", slog.String("code", code), slog.Int("retry_count", retryCount), slog.Int("queue_depth", len(s.queue)), slog.String("component", "retry"))
}

func (s *Scheduler) maxRetries() int {
	if s.MaxRetries > 0 {
		return s.MaxRetries
	}
	return DefaultMaxRetries
}

// delayFor computes the wait before a retry: the server hint when present,
// otherwise baseDelay * 2^min(retryCount-1, capExponent).
func (s *Scheduler) delayFor(retryCount int, hint time.Duration) time.Duration {
	if hint > 0 {
		return hint
	}
	base := s.BaseDelay
	if base <= 0 {
		base = DefaultBaseDelay
	}
	capExp := s.CapExponent
	if capExp <= 0 {
		capExp = DefaultCapExponent
	}
	exp := retryCount - 1
	if exp < 0 {
		exp = 0
	}
	if exp > capExp {
		exp = capExp
	}
	return base * (1 << exp)
}

// drain processes the queue until empty, waiting out each entry's backoff
// before re-attempting. Runs as the single logical retry worker.
func (s *Scheduler) drain(ctx context.Context) {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.draining = false
			s.mu.Unlock()
			slog.Debug("retry queue drained", slog.String("component", "retry"))
			return
		}
		head := s.queue[0]
		s.mu.Unlock()

		delay := s.delayFor(head.RetryCount, head.delayHint)
		select {
		case <-ctx.Done():
			s.mu.Lock()
			s.draining = false
			s.mu.Unlock()
			return
		case <-time.After(delay):
		}

		s.mu.Lock()
		// Pop the head; it may differ from the peeked entry only if the
		// queue was reordered, which never happens (append-only).
		head = s.queue[0]
		s.queue = s.queue[1:]
		delete(s.queued, head.Code)
		telemetry.SetRetryQueueDepth(len(s.queue))
		s.mu.Unlock()

		slog.Info("retrying code", slog.String("code", head.Code), slog.Int("retry_count", head.RetryCount), slog.Int("max_retries", s.maxRetries()), slog.String("component", "retry"))
		res := s.Attempt(ctx, head.Code, head.Arrival)
		if !res.Retryable {
			continue
		}
		if head.RetryCount < s.maxRetries() {
			s.mu.Lock()
			s.addLocked(head.Code, head.RetryCount+1, head.Arrival, res.DelayHint)
			s.mu.Unlock()
			continue
		}
		// Still failing transiently at the bound: explicit give-up.
		slog.Error("max retries exceeded; dropping code", slog.String("code", head.Code), slog.Int("retry_count", head.RetryCount), slog.String("component", "retry"))
		if telemetry.RetriesExhausted != nil {
			telemetry.RetriesExhausted.Inc()
		}
		if s.OnExhausted != nil {
			s.OnExhausted(head.Code)
		}
	}
}
