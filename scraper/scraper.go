// Package scraper wires the pipeline together: chat message events flow
// through normalization and extraction, then each fresh candidate is raced
// against the activation endpoint, with transient failures handed to the
// retry scheduler. The scraper also owns the outcome counters surfaced by
// the status endpoint.
package scraper

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/onnwee/invite-sniper/credential"
	"github.com/onnwee/invite-sniper/extract"
	"github.com/onnwee/invite-sniper/redeem"
	"github.com/onnwee/invite-sniper/retry"
	"github.com/onnwee/invite-sniper/telemetry"
)

// Message is one inbound chat event from the transport collaborator.
type Message struct {
	Text    string
	Arrival time.Time
	Channel string
	Author  string
}

// Redeemer abstracts the redemption client (for tests/mocks).
type Redeemer interface {
	Attempt(ctx context.Context, code string, arrival time.Time) redeem.Outcome
}

// EnrollmentChecker reports whether our own enrollment already succeeded.
type EnrollmentChecker interface {
	Enrolled(ctx context.Context) (bool, error)
}

// Notifier delivers fire-and-forget out-of-band notifications.
type Notifier interface {
	Send(ctx context.Context, kind, message string)
}

// Options configures a Sniper.
type Options struct {
	Redeemer   Redeemer
	Store      *credential.Store
	Notifier   Notifier
	Enrollment EnrollmentChecker

	// SelfUser is our own chat identity; own messages are ignored.
	SelfUser string
	// Channels is the allow-list of channel identifiers. Empty means all.
	Channels []string

	// AttemptsPerSecond paces redemption calls within a message burst.
	// Zero selects one attempt per second.
	AttemptsPerSecond float64

	// Retry knobs; zero values select the retry package defaults.
	RetryBaseDelay time.Duration
	MaxRetries     int
	RetryCapExp    int

	// ExitOnEnrolled ends the session when a cohort-mismatch outcome
	// reveals our own enrollment already succeeded.
	ExitOnEnrolled bool

	// OnSuccess fires once after a winning redemption; the caller is
	// expected to shut the process down after flushing notifications.
	OnSuccess func(code string)
	// OnSessionEnd fires when the session should end for reasons other
	// than success (already enrolled).
	OnSessionEnd func()
}

// Sniper is the orchestrator. One instance per process.
type Sniper struct {
	opts     Options
	channels map[string]struct{}
	ledger   *Ledger
	retries  *retry.Scheduler
	pace     *rate.Limiter
	start    time.Time

	won atomic.Bool

	messagesSeen   atomic.Uint64
	processed      atomic.Uint64
	skipped        atomic.Uint64
	successes      atomic.Uint64
	alreadyRed     atomic.Uint64
	invalid        atomic.Uint64
	cohortMismatch atomic.Uint64
	authErrors     atomic.Uint64
	rateLimited    atomic.Uint64
	networkErrors  atomic.Uint64
	unexpected     atomic.Uint64
	exhausted      atomic.Uint64
}

// New builds a Sniper and its retry scheduler.
func New(opts Options) *Sniper {
	telemetry.Init()
	perSec := opts.AttemptsPerSecond
	if perSec <= 0 {
		perSec = 1
	}
	s := &Sniper{
		opts:   opts,
		ledger: NewLedger(),
		pace:   rate.NewLimiter(rate.Limit(perSec), 1),
		start:  time.Now(),
	}
	if len(opts.Channels) > 0 {
		s.channels = make(map[string]struct{}, len(opts.Channels))
		for _, ch := range opts.Channels {
			s.channels[ch] = struct{}{}
		}
	}
	s.retries = &retry.Scheduler{
		Attempt:     s.retryAttempt,
		BaseDelay:   opts.RetryBaseDelay,
		MaxRetries:  opts.MaxRetries,
		CapExponent: opts.RetryCapExp,
		OnExhausted: s.onExhausted,
	}
	return s
}

// HandleMessage runs the full pipeline for one inbound chat event. Codes
// within the message are attempted sequentially in extraction order; a slow
// retry drain never blocks this path.
func (s *Sniper) HandleMessage(ctx context.Context, msg Message) {
	s.messagesSeen.Add(1)
	telemetry.MessagesSeen.Inc()
	if s.opts.SelfUser != "" && msg.Author == s.opts.SelfUser {
		return
	}
	if s.channels != nil {
		if _, ok := s.channels[msg.Channel]; !ok {
			return
		}
	}

	ctx = telemetry.WithCorrelation(ctx, uuid.New().String())
	logger := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "scraper"), slog.String("channel", msg.Channel))

	codes := extract.Candidates(msg.Text)
	if len(codes) == 0 {
		logger.Debug("no invite codes detected")
		return
	}
	logger.Info("candidate codes found", slog.Int("count", len(codes)), slog.Any("codes", codes))

	for _, code := range codes {
		if !s.ledger.MarkIfNew(code) {
			s.skipped.Add(1)
			logger.Info("code already processed, skipping", slog.String("code", code))
			continue
		}
		s.processed.Add(1)
		telemetry.CodesProcessed.Inc()
		// Pacing between attempts; the first call in a burst is free.
		if err := s.pace.Wait(ctx); err != nil {
			return
		}
		res := s.attempt(ctx, code, msg.Arrival)
		if res.Retryable {
			s.retries.Enqueue(ctx, code, 1, msg.Arrival, res.DelayHint)
		}
	}
}

// retryAttempt is the scheduler's re-attempt hook.
func (s *Sniper) retryAttempt(ctx context.Context, code string, arrival time.Time) retry.Result {
	return s.attempt(ctx, code, arrival)
}

// attempt issues one redemption call and routes the classified outcome:
// counters, credential state, notifications, and the session-ending hooks.
func (s *Sniper) attempt(ctx context.Context, code string, arrival time.Time) retry.Result {
	ctx, span := telemetry.StartSpan(ctx, "scraper", "redeem.attempt", telemetry.CodeAttr(code))
	out := s.opts.Redeemer.Attempt(ctx, code, arrival)
	span.SetAttributes(telemetry.OutcomeAttr(out.Kind.String()))
	telemetry.SetSpanHTTPStatus(span, out.Status)
	span.End()

	switch out.Kind {
	case redeem.KindSuccess:
		s.successes.Add(1)
		telemetry.RedeemSuccesses.Inc()
		if s.opts.Store != nil {
			s.opts.Store.SetValidity(credential.ValidityValid)
		}
		s.notify(ctx, "redeem_success", successMessage(code, out.Elapsed))
		// Only the first win triggers shutdown.
		if s.won.CompareAndSwap(false, true) && s.opts.OnSuccess != nil {
			s.opts.OnSuccess(code)
		}
	case redeem.KindAlreadyRedeemed:
		s.alreadyRed.Add(1)
		telemetry.AlreadyRedeemed.Inc()
	case redeem.KindInvalidCode:
		s.invalid.Add(1)
		telemetry.InvalidCodes.Inc()
	case redeem.KindCohortMismatch:
		s.cohortMismatch.Add(1)
		telemetry.UnexpectedErrors.Inc()
		s.checkOwnEnrollment(ctx)
	case redeem.KindAuthError:
		s.authErrors.Add(1)
		telemetry.AuthErrors.Inc()
		if s.opts.Store != nil {
			s.opts.Store.SetValidity(credential.ValidityInvalid)
		}
		s.notify(ctx, "token_issue", tokenIssueMessage())
	case redeem.KindRateLimited:
		s.rateLimited.Add(1)
		telemetry.RateLimited.Inc()
	case redeem.KindNetworkError:
		s.networkErrors.Add(1)
		telemetry.NetworkErrors.Inc()
	default:
		s.unexpected.Add(1)
		telemetry.UnexpectedErrors.Inc()
	}
	return retry.Result{Retryable: out.Retryable(), DelayHint: out.RetryAfter}
}

// checkOwnEnrollment runs when a code turned out to be cohort-gated: if our
// own enrollment already succeeded there is nothing left to race for.
func (s *Sniper) checkOwnEnrollment(ctx context.Context) {
	if s.opts.Enrollment == nil {
		return
	}
	enrolled, err := s.opts.Enrollment.Enrolled(ctx)
	if err != nil {
		slog.Warn("enrollment status check failed", slog.Any("err", err), slog.String("component", "scraper"))
		return
	}
	if enrolled && s.opts.ExitOnEnrolled {
		slog.Info("own enrollment already succeeded; ending session", slog.String("component", "scraper"))
		s.notify(ctx, "session_end", "Enrollment already completed for this account; stopping the watch.")
		if s.opts.OnSessionEnd != nil {
			s.opts.OnSessionEnd()
		}
	}
}

func (s *Sniper) onExhausted(code string) {
	s.exhausted.Add(1)
	s.notify(context.Background(), "retries_exhausted", "Gave up on code "+code+" after exhausting retries.")
}

func (s *Sniper) notify(ctx context.Context, kind, message string) {
	if s.opts.Notifier == nil {
		return
	}
	s.opts.Notifier.Send(ctx, kind, message)
}

// RetryQueueDepth exposes the scheduler depth for the status surface.
func (s *Sniper) RetryQueueDepth() int { return s.retries.Depth() }

// Snapshot is the read-only counter view served by /status.
type Snapshot struct {
	StartedAt       time.Time        `json:"started_at"`
	MessagesSeen    uint64           `json:"messages_seen"`
	Processed       uint64           `json:"processed"`
	Skipped         uint64           `json:"skipped"`
	Successes       uint64           `json:"successes"`
	AlreadyRedeemed uint64           `json:"already_redeemed"`
	Invalid         uint64           `json:"invalid"`
	CohortMismatch  uint64           `json:"cohort_mismatch"`
	AuthErrors      uint64           `json:"auth_errors"`
	RateLimited     uint64           `json:"rate_limited"`
	NetworkErrors   uint64           `json:"network_errors"`
	Unexpected      uint64           `json:"unexpected"`
	Exhausted       uint64           `json:"exhausted"`
	CodesInMemory   int              `json:"codes_in_memory"`
	RetryQueueDepth int              `json:"retry_queue_depth"`
	Credential      credential.State `json:"credential"`
}

// Snapshot returns the current counters and credential state.
func (s *Sniper) Snapshot() Snapshot {
	snap := Snapshot{
		StartedAt:       s.start,
		MessagesSeen:    s.messagesSeen.Load(),
		Processed:       s.processed.Load(),
		Skipped:         s.skipped.Load(),
		Successes:       s.successes.Load(),
		AlreadyRedeemed: s.alreadyRed.Load(),
		Invalid:         s.invalid.Load(),
		CohortMismatch:  s.cohortMismatch.Load(),
		AuthErrors:      s.authErrors.Load(),
		RateLimited:     s.rateLimited.Load(),
		NetworkErrors:   s.networkErrors.Load(),
		Unexpected:      s.unexpected.Load(),
		Exhausted:       s.exhausted.Load(),
		CodesInMemory:   s.ledger.Size(),
		RetryQueueDepth: s.retries.Depth(),
	}
	if s.opts.Store != nil {
		snap.Credential = s.opts.Store.State()
	}
	return snap
}

func successMessage(code string, elapsed time.Duration) string {
	msg := "Invite redeemed successfully! Code: `" + code + "`"
	if elapsed > 0 {
		msg += " (scraped in " + elapsed.Round(time.Millisecond).String() + ")"
	}
	return msg
}

func tokenIssueMessage() string {
	return "The activation credential appears to be expired or invalid. " +
		"Redemption attempts will keep retrying but may fail until the credential is replaced: " +
		"log in again, capture a fresh bearer token, update the environment, and restart."
}
