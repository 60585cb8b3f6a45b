// File: internal/retry/retry.go
// A small retry combinator over cenkalti/backoff. Callers describe the
// schedule as a Policy value and pass the operation explicitly; there is no
// hidden global schedule and no self-rescheduling operation.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy is a pure description of a retry schedule.
type Policy struct {
	// MaxAttempts bounds total attempts (first try included). Zero or
	// negative means retry until the context ends.
	MaxAttempts int
	// InitialDelay is the wait before the first retry.
	InitialDelay time.Duration
	// MaxDelay caps the exponential growth.
	MaxDelay time.Duration
	// Multiplier grows the delay between attempts.
	Multiplier float64
}

// DefaultPolicy suits short UI-bound operations like reply insertion.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  3,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2.0,
	}
}

// Permanent marks an error as non-retryable; Do stops immediately and
// returns it.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do runs op under the policy until it succeeds, returns a permanent error,
// exhausts the attempts, or the context ends.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	if p.InitialDelay > 0 {
		b.InitialInterval = p.InitialDelay
	}
	if p.MaxDelay > 0 {
		b.MaxInterval = p.MaxDelay
	}
	if p.Multiplier > 0 {
		b.Multiplier = p.Multiplier
	}
	b.MaxElapsedTime = 0 // attempts and context bound the loop, not wall time

	var schedule backoff.BackOff = b
	if p.MaxAttempts > 0 {
		schedule = backoff.WithMaxRetries(b, uint64(p.MaxAttempts-1))
	}

	return backoff.Retry(func() error { return op(ctx) }, backoff.WithContext(schedule, ctx))
}
