package chain

import (
	"context"
	"fmt"
	"time"
)

// RetryPolicy is the single retry policy for ledger reads performed right
// after an observed event. Reads at the queried commitment level may not yet
// reflect the transaction that produced the event; a fixed small delay
// repeated a few times masks that lag while keeping tail latency bounded at
// MaxAttempts * Delay. No exponential backoff: finality windows are short.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration

	// OnRetry, when set, is invoked once per retry (not the first attempt).
	OnRetry func()
}

// DefaultRetryPolicy covers the usual read-after-write window.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, Delay: 100 * time.Millisecond}
}

// Do runs fn until it succeeds or MaxAttempts is exhausted, sleeping Delay
// between attempts. The last error is returned. Context cancellation aborts
// the wait immediately.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			if p.OnRetry != nil {
				p.OnRetry()
			}
			select {
			case <-time.After(p.Delay):
			case <-ctx.Done():
				return fmt.Errorf("retry aborted after %d attempts: %w", i, ctx.Err())
			}
		}

		if lastErr = fn(ctx); lastErr == nil {
			return nil
		}
	}

	return fmt.Errorf("after %d attempts: %w", attempts, lastErr)
}

// ReadWithRetry wraps a single ledger read in the policy and returns its
// value. This is the sanctioned way handlers read chain state after reacting
// to an event.
func ReadWithRetry[T any](ctx context.Context, p RetryPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := p.Do(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
