package bybit

import (
	"context"
	"math/rand"
	"time"
)

// RetryPolicy defines how a gateway call is retried. It is composed
// around each call at the call site together with a classification
// predicate, so retry behavior stays visible and testable.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration

	// OnRetry, when set, is invoked before each backoff sleep.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// IsTransientFunc decides whether an error is worth another attempt.
type IsTransientFunc func(error) bool

// Do executes fn under the policy. Non-transient errors propagate
// immediately; transient ones are retried with jittered exponential
// backoff until the attempt budget is spent. Sleeps honor ctx.
func (p RetryPolicy) Do(ctx context.Context, isTransient IsTransientFunc, fn func() error) error {
	var err error
	backoff := p.InitialDelay

	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}

		if !isTransient(err) {
			return err
		}

		if attempt == p.MaxAttempts-1 {
			break
		}

		// Jittered backoff: backoff + random(0, 50% of backoff).
		delay := backoff
		if backoff > 1 {
			delay += time.Duration(rand.Int63n(int64(backoff / 2)))
		}

		if p.OnRetry != nil {
			p.OnRetry(attempt+1, err, delay)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
			backoff = min(backoff*2, p.MaxDelay)
		}
	}

	return err
}
