// Package redeem implements the HTTP client that attempts to consume invite
// codes and the classification of every attempt into a closed outcome
// taxonomy. Classification is a single ordered function over status and body
// so the retry policy can be audited in one place.
package redeem

import (
	"strings"
	"time"
)

// Kind enumerates the possible results of one redemption attempt.
type Kind int

const (
	// KindSuccess means the code was consumed. The race is won.
	KindSuccess Kind = iota
	// KindAlreadyRedeemed means someone else got there first. Terminal.
	KindAlreadyRedeemed
	// KindInvalidCode means the code does not exist (404). Terminal.
	KindInvalidCode
	// KindCohortMismatch means the code is reserved for a different user
	// cohort (e.g. requires prior enrollment). Terminal.
	KindCohortMismatch
	// KindAuthError means the credential was rejected (401/403). Retryable;
	// the refresher may heal the credential between attempts.
	KindAuthError
	// KindRateLimited means the endpoint returned 429. Retryable, honoring
	// any server-supplied Retry-After hint.
	KindRateLimited
	// KindNetworkError means the request never produced a response
	// (timeout, connection failure). Retryable.
	KindNetworkError
	// KindUnexpected means an unrecognized status. Terminal: unknown server
	// behavior is not assumed safe to retry.
	KindUnexpected
)

// String returns a human-readable name for the outcome kind.
func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindAlreadyRedeemed:
		return "already_redeemed"
	case KindInvalidCode:
		return "invalid_code"
	case KindCohortMismatch:
		return "cohort_mismatch"
	case KindAuthError:
		return "auth_error"
	case KindRateLimited:
		return "rate_limited"
	case KindNetworkError:
		return "network_error"
	case KindUnexpected:
		return "unexpected"
	default:
		return "unexpected"
	}
}

// Outcome is the classified result of one redemption attempt.
type Outcome struct {
	Kind   Kind
	Status int    // HTTP status code, 0 when no response was received
	Body   []byte // raw response payload (success data or error detail)
	// RetryAfter carries a server-supplied backoff hint for rate-limited
	// outcomes; zero when absent.
	RetryAfter time.Duration
	// Elapsed is the informational time from message arrival to request
	// send; it never affects control flow.
	Elapsed time.Duration
	// Err holds transport-level detail for network errors.
	Err error
}

// Retryable reports whether the outcome may be transient and worth
// reattempting under backoff.
func (o Outcome) Retryable() bool {
	switch o.Kind {
	case KindAuthError, KindRateLimited, KindNetworkError:
		return true
	}
	return false
}

// classify maps an HTTP response to an Outcome. Cases are ordered by
// priority; anything unrecognized fails closed as KindUnexpected.
func classify(status int, body []byte, retryAfter time.Duration) Outcome {
	o := Outcome{Status: status, Body: body}
	lower := strings.ToLower(string(body))
	switch {
	case status >= 200 && status < 300:
		o.Kind = KindSuccess
	case status == 400 && strings.Contains(lower, "already been redeemed"):
		o.Kind = KindAlreadyRedeemed
	case status == 400 && (strings.Contains(lower, "enroll") ||
		strings.Contains(lower, "waitlist") ||
		strings.Contains(lower, "cohort")):
		o.Kind = KindCohortMismatch
	case status == 401 || status == 403:
		o.Kind = KindAuthError
	case status == 404:
		o.Kind = KindInvalidCode
	case status == 429:
		o.Kind = KindRateLimited
		o.RetryAfter = retryAfter
	default:
		o.Kind = KindUnexpected
	}
	return o
}
