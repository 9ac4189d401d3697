// Package retry implements the shared attempt/backoff policy used by the
// query executor, the entity fetcher and the page editor.
package retry

import (
	"context"
	"time"

	"github.com/teranos/listsync/config"
	"github.com/teranos/listsync/errors"
)

// Policy bounds a retry loop: a hard attempt cap and a backoff curve
// between attempts. Attempts are strictly sequential; the loop never
// overlaps two attempts of the same call.
type Policy struct {
	MaxAttempts    int
	Exponential    bool
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// FromConfig builds a Policy from the shared retry configuration.
func FromConfig(cfg config.RetryConfig) Policy {
	return Policy{
		MaxAttempts:    cfg.MaxAttempts,
		Exponential:    cfg.Backoff == "exponential",
		InitialBackoff: time.Duration(cfg.InitialBackoffMs) * time.Millisecond,
		MaxBackoff:     time.Duration(cfg.MaxBackoffMs) * time.Millisecond,
	}
}

// Delay returns the backoff before the given 1-based attempt number.
// Attempt 1 has no delay.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	delay := p.InitialBackoff
	if p.Exponential {
		for i := 2; i < attempt; i++ {
			delay *= 2
			if delay >= p.MaxBackoff {
				break
			}
		}
	}
	if delay > p.MaxBackoff {
		delay = p.MaxBackoff
	}
	return delay
}

// Do runs fn up to MaxAttempts times, sleeping the policy delay between
// attempts. Only retryable failures (errors.IsRetryable) are attempted
// again; anything else is returned immediately. The context aborts the
// loop between attempts.
func (p Policy) Do(ctx context.Context, fn func(attempt int) error) error {
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if delay := p.Delay(attempt); delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return errors.WrapContext(ctx, "waiting to retry")
			}
		}

		lastErr = fn(attempt)
		if lastErr == nil {
			return nil
		}
		if !errors.IsRetryable(lastErr) {
			return lastErr
		}
	}
	return errors.Wrapf(lastErr, "giving up after %d attempts", p.MaxAttempts)
}
