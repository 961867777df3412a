// Package retry provides an explicit retry policy composable around any
// fallible operation.
package retry

import (
	"context"
	"time"
)

// Policy describes how an operation is retried. The wait before retrying
// attempt n is Backoff * 2^(n-1), so the schedule doubles from the base
// factor.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// Backoff is the base backoff factor.
	Backoff time.Duration
	// Retryable decides whether an error is worth retrying. A nil
	// predicate retries every error.
	Retryable func(error) bool
	// Sleep is injectable for tests; nil uses a context-aware sleep.
	Sleep func(context.Context, time.Duration)
}

// Do runs op, retrying per the policy. It returns nil on the first success,
// the last error once attempts are exhausted or the error is not retryable,
// or the context error if the context is cancelled between attempts.
func (p Policy) Do(ctx context.Context, op func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var err error
	for attempt := 1; ; attempt++ {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}

		err = op()
		if err == nil {
			return nil
		}
		if attempt >= attempts {
			return err
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}

		sleep(ctx, p.Backoff<<(attempt-1))
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
