// Package retry centralizes the retry decision the pipeline applies to
// classified errors, instead of scattering ad hoc retry loops per call
// site.
package retry

import (
	"time"

	"github.com/photosmith/photosmith/internal/common"
)

// Outcome is what the caller should do with a failed attempt.
type Outcome int

const (
	// OutcomeRetry returns the item to the queue with a backoff delay.
	OutcomeRetry Outcome = iota
	// OutcomeFail marks the item terminally failed.
	OutcomeFail
)

// Policy decides retry vs terminal failure from the error kind and the
// attempts already spent. Storage errors get their own budget, distinct
// from the API budget, counted against the same attempts counter.
type Policy struct {
	MaxAttempts        int // budget for transient API errors
	StorageMaxAttempts int // budget for storage errors
	BackoffBase        time.Duration
	BackoffMax         time.Duration
}

// DefaultPolicy mirrors the queue defaults.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:        3,
		StorageMaxAttempts: 5,
		BackoffBase:        30 * time.Second,
		BackoffMax:         15 * time.Minute,
	}
}

// Decide returns the outcome for err after the given number of
// attempts (the failed attempt included). maxAttempts is the item's
// own budget; zero or negative falls back to the policy default.
// Storage failures say nothing about the photo or the provider, so
// they keep at least the policy's storage budget.
func (p Policy) Decide(err error, attempts, maxAttempts int) Outcome {
	if !common.IsRetryable(err) {
		return OutcomeFail
	}
	budget := maxAttempts
	if budget <= 0 {
		budget = p.MaxAttempts
	}
	if common.KindOf(err) == common.KindStorage && p.StorageMaxAttempts > budget {
		budget = p.StorageMaxAttempts
	}
	if attempts >= budget {
		return OutcomeFail
	}
	return OutcomeRetry
}

// Backoff returns the delay before the next attempt: base doubled per
// completed attempt, capped at BackoffMax. Deliberately jitter-free so
// scheduling stays deterministic under test.
func (p Policy) Backoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	d := p.BackoffBase
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= p.BackoffMax {
			return p.BackoffMax
		}
	}
	if d > p.BackoffMax {
		return p.BackoffMax
	}
	return d
}
