package remote

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RetryPolicy is the one backoff policy used by submission, polling and
// upload alike: exponential delay (×2 per attempt) from BaseDelay, capped at
// MaxDelay, at most MaxAttempts tries, retrying only when Retryable says so.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Retryable   func(error) bool
}

// DefaultRetryPolicy mirrors the executor client's historical settings:
// 3 retries, 1s base, ×2 backoff, 30s cap.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 4,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		Retryable:   IsTransient,
	}
}

// Delay returns the backoff delay before the given retry (attempt is
// zero-based: the delay after the first failure is Delay(0) == BaseDelay).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Do runs fn until it succeeds, fails non-retryably, exhausts the attempt
// budget, or ctx is done.
func (p RetryPolicy) Do(ctx context.Context, op string, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if p.Retryable == nil || !p.Retryable(lastErr) {
			return lastErr
		}
		if attempt == p.MaxAttempts-1 {
			break
		}
		delay := p.Delay(attempt)
		zap.L().Debug("retrying remote call",
			zap.String("op", op),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(lastErr))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}
