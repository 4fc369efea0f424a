package relay

import (
	"context"
	"time"

	"github.com/studymate/tutor-relay/internal/provider"
)

// RetryConfig bounds in-turn retries against the provider.
//
// Only rate-limited failures retry within a turn, honoring the
// provider-supplied delay. Transient failures go straight to the
// fallback path and may be retried on the next user turn; auth
// failures never retry.
type RetryConfig struct {
	// MaxAttempts is the total number of calls per turn, including
	// the first.
	MaxAttempts int
	// MaxDelay caps the wait between rate-limited attempts so a hostile
	// Retry-After header cannot stall a turn indefinitely.
	MaxDelay time.Duration
}

// DefaultRetryConfig returns the defaults used in serve mode.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		MaxDelay:    5 * time.Second,
	}
}

// callWithRetry runs fn, retrying only when the provider reports a
// rate limit. Any other failure is returned to the caller untouched.
func (o *Orchestrator) callWithRetry(ctx context.Context, fn func() (*provider.ChatResponse, error)) (*provider.ChatResponse, error) {
	attempts := o.retry.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		resp, err := fn()
		if err == nil {
			return resp, nil
		}
		lastErr = err

		ue, ok := provider.IsUnavailable(err)
		if !ok || ue.Kind != provider.KindRateLimited {
			return nil, err
		}
		if attempt == attempts {
			break
		}

		delay := ue.RetryAfter
		if delay <= 0 || delay > o.retry.MaxDelay {
			delay = o.retry.MaxDelay
		}
		o.logger.Debug("rate limited, retrying",
			"attempt", attempt,
			"delay", delay)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, lastErr
}
