package internal

import (
	"context"
	"math/rand/v2"
	"time"
)

// BackoffFunc returns the time to wait before the retry-th retry (starting at 0).
type BackoffFunc func(retry int) (sleep time.Duration)

// NewBackoffPolicy doubles minDelay with every retry and adds up to 20% jitter.
// The result never exceeds maxDelay.
func NewBackoffPolicy(minDelay, maxDelay time.Duration) BackoffFunc {
	if minDelay <= 0 {
		minDelay = time.Millisecond
	}
	if maxDelay < minDelay {
		maxDelay = minDelay
	}

	return func(retry int) (sleep time.Duration) {
		wait := minDelay << max(0, min(30, retry))
		if wait <= 0 || wait > maxDelay {
			// overflow or cap
			wait = maxDelay
		}
		jitter := rand.N(max(1, wait/5))
		wait += jitter
		if wait > maxDelay {
			wait = maxDelay
		}
		return wait
	}
}

// Sleep waits for d or until ctx is done, in which case the context error is returned.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
