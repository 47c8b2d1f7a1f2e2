// Package retry provides the single backoff policy shared by every call site
// that talks to flaky remote services.
package retry

import (
	"context"
	"math/rand"
	"time"
)

// Policy describes a bounded exponential backoff with jitter. The zero value
// is not usable; construct with the fields set.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	JitterBound time.Duration
	// Retryable decides whether an error is worth another attempt. A nil
	// predicate treats every error as retryable.
	Retryable func(error) bool
}

// Delay returns the backoff for a zero-based attempt index: base doubled per
// attempt, capped at MaxDelay. Jitter is added separately by callers.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := p.BaseDelay
	for i := 0; i < attempt; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Jitter returns a random delay in [0, JitterBound), spreading out retries
// from workers that failed at the same instant.
func (p Policy) Jitter() time.Duration {
	if p.JitterBound <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(p.JitterBound)))
}

// Do runs fn up to MaxAttempts times, sleeping Delay(attempt)+Jitter between
// attempts. It stops early when fn succeeds, the error is not retryable, or
// the context is done.
func (p Policy) Do(ctx context.Context, fn func(context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if err = ctx.Err(); err != nil {
			return err
		}
		if err = fn(ctx); err == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}
		if attempt == attempts-1 {
			break
		}
		if werr := sleep(ctx, p.Delay(attempt)+p.Jitter()); werr != nil {
			return werr
		}
	}
	return err
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
