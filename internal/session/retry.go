package session

import (
	"context"
	"time"
)

// RetryPolicy configures retry behavior.
type RetryPolicy struct {
	MaxAttempts int                                           // total attempts including initial try
	Delay       time.Duration                                 // fixed delay between retries (used if DelayFunc nil)
	ShouldRetry func(Outcome) bool                            // predicate; if nil, DefaultShouldRetry
	DelayFunc   func(attempt int, last Outcome) time.Duration // dynamic backoff; attempt is 1-based
}

// DefaultShouldRetry retries transport failures but never cancelled,
// suppressed, or successfully answered sessions.
func DefaultShouldRetry(o Outcome) bool {
	switch o.Kind() {
	case KindConnectFailed, KindSendFailed, KindReceiveFailed, KindResponseTimeout:
		return true
	default:
		return false
	}
}

type retryExecutor struct {
	inner  Executor
	policy RetryPolicy
}

// WithRetry re-invokes exec for the same payload until it succeeds, the
// policy gives up, or ctx ends. The returned outcome is the last attempt's,
// with Attempts set to the number of tries.
func WithRetry(exec Executor, policy RetryPolicy) Executor {
	if policy.MaxAttempts <= 1 {
		return exec
	}
	if policy.ShouldRetry == nil {
		policy.ShouldRetry = DefaultShouldRetry
	}
	return &retryExecutor{inner: exec, policy: policy}
}

func (r *retryExecutor) Run(ctx context.Context, payload string) Outcome {
	var last Outcome
	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		last = r.inner.Run(ctx, payload)
		last.Attempts = attempt
		if last.OK() || attempt == r.policy.MaxAttempts || !r.policy.ShouldRetry(last) {
			return last
		}

		delay := r.policy.Delay
		if r.policy.DelayFunc != nil {
			delay = r.policy.DelayFunc(attempt, last)
		}
		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return last
			}
		}
		if ctx.Err() != nil {
			return last
		}
	}
	return last
}
