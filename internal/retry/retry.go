// Package retry runs fallible operations under a bounded retry policy.
//
// It is meant for transient object-store failures (throttling, eventual
// consistency lag). Permanent failures should not be retried: callers decide
// what they wrap in a Policy.
package retry

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Default values for DefaultPolicy.
const (
	DefaultMaxAttempts = 3
	DefaultDelay       = 5 * time.Second
)

// Backoff returns how long to wait after the given failed attempt (1-based).
type Backoff func(attempt int) time.Duration

// Fixed returns a Backoff that always waits d.
func Fixed(d time.Duration) Backoff {
	return func(int) time.Duration { return d }
}

// Policy bounds how many times an operation is attempted and how long to wait
// between attempts.
type Policy struct {
	MaxAttempts int
	Backoff     Backoff

	// Sleep waits between attempts. Defaults to a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error

	// Retryable, when set, stops the loop on the first error it rejects.
	Retryable func(error) bool
}

// DefaultPolicy makes 3 attempts, 5 seconds apart.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: DefaultMaxAttempts, Backoff: Fixed(DefaultDelay)}
}

// Do runs op until it succeeds or MaxAttempts attempts have failed. On success
// it returns the number of retries consumed (0 when the first attempt
// succeeded). On exhaustion, or on an error Retryable rejects, it returns the
// last error from op.
//
// The wait between attempts is cut short only if ctx is cancelled, in which
// case the context error is returned.
func (p Policy) Do(ctx context.Context, desc string, op func(ctx context.Context) error) (int, error) {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := p.Backoff
	if backoff == nil {
		backoff = Fixed(DefaultDelay)
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		log.Debug().Str("op", desc).Int("attempt", attempt).Msg("Executing")
		lastErr = op(ctx)
		if lastErr == nil {
			return attempt - 1, nil
		}
		if p.Retryable != nil && !p.Retryable(lastErr) {
			log.Error().Err(lastErr).Str("op", desc).Int("attempt", attempt).Msg("Permanent failure, not retrying")
			return attempt - 1, lastErr
		}
		if attempt == attempts {
			break
		}
		wait := backoff(attempt)
		log.Warn().Err(lastErr).
			Str("op", desc).
			Int("attempt", attempt).
			Int("maxAttempts", attempts).
			Dur("wait", wait).
			Msg("Operation failed, retrying")
		if err := sleep(ctx, wait); err != nil {
			return attempt, err
		}
	}

	log.Error().Err(lastErr).Str("op", desc).Int("maxAttempts", attempts).Msg("Max retries exceeded")
	return attempts - 1, lastErr
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
