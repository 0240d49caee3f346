package dapclient

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/aidb-dev/aidb/internal/aidberr"
	"golang.org/x/time/rate"
)

// RetryPolicy governs how SendRequest re-attempts a request after a
// transport-level failure. DAP-level success=false is never retried —
// only TransportClosed and ConnectFailed are; no adapter-busy error class
// is recognized, so a busy adapter's error response is not retried.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Multiplier   float64
	Jitter       float64 // fraction of the computed delay, e.g. 0.2 = ±20%
}

// NoRetry never re-attempts: the common case for state-mutating requests
// the caller would rather fail fast on than duplicate.
var NoRetry = RetryPolicy{MaxAttempts: 1}

// DefaultRetryPolicy waits 100ms, then 200ms (each ±20%) between three attempts,
// suitable for the brief window after a freshly spawned adapter's socket
// accepts connections but has not yet completed its own startup.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts:  3,
	InitialDelay: 100 * time.Millisecond,
	Multiplier:   2.0,
	Jitter:       0.2,
}

// isRetryable reports whether an error belongs to the retryable class:
// transport failures (TransportClosed, ConnectFailed). A DAP response with
// success=false surfaces as *aidberr.AdapterError and is never retried.
func isRetryable(err error) bool {
	var transportClosed *aidberr.TransportClosed
	var connectFailed *aidberr.ConnectFailed
	return errors.As(err, &transportClosed) || errors.As(err, &connectFailed)
}

// runWithRetry executes attempt up to policy.MaxAttempts times, pacing
// retries with an exponential backoff limiter (golang.org/x/time/rate)
// plus jitter, stopping early on a non-retryable error or context
// cancellation.
func runWithRetry[T any](ctx context.Context, policy RetryPolicy, attempt func() (T, error)) (T, error) {
	maxAttempts := policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	delay := policy.InitialDelay
	var zero T
	var lastErr error

	for i := 0; i < maxAttempts; i++ {
		result, err := attempt()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if i == maxAttempts-1 || !isRetryable(err) {
			return zero, err
		}

		wait := jittered(delay, policy.Jitter)
		lim := rate.NewLimiter(rate.Every(wait), 1)
		// Consume the single allowed token immediately so the next
		// Wait blocks for approximately `wait` before the retry.
		lim.Allow()
		if err := lim.Wait(ctx); err != nil {
			return zero, err
		}

		if policy.Multiplier > 0 {
			delay = time.Duration(float64(delay) * policy.Multiplier)
		}
	}
	return zero, lastErr
}

func jittered(d time.Duration, jitter float64) time.Duration {
	if jitter <= 0 || d <= 0 {
		return d
	}
	spread := float64(d) * jitter
	offset := (rand.Float64()*2 - 1) * spread
	result := float64(d) + offset
	if result < 0 {
		return 0
	}
	return time.Duration(result)
}
