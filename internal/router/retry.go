package router

import "time"

// BackoffPolicy controls automatic retries of failed tasks. Delays double on
// each attempt, capped at MaxDelay.
type BackoffPolicy struct {
	// MaxRetries is the number of automatic retries before the task stays in
	// the error state awaiting an explicit requeue.
	MaxRetries int
	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration
	// MaxDelay caps the exponential backoff.
	MaxDelay time.Duration
}

// DefaultBackoffPolicy matches the built-in configuration defaults.
func DefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		MaxDelay:   30 * time.Second,
	}
}

// ShouldRetry reports whether a task with the given retry count gets another
// automatic attempt.
func (p BackoffPolicy) ShouldRetry(retryCount int) bool {
	return retryCount < p.MaxRetries
}

// Delay returns the backoff delay before the given attempt (1-indexed).
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}
