package embedding

import (
	"context"
	"errors"
	"time"
)

// TransientError marks a provider failure worth retrying (rate limit,
// timeout, connection error). Permanent failures are returned unwrapped.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err is (or wraps) a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// RetryPolicy retries an operation with exponential backoff. The zero value
// is not usable; use DefaultRetryPolicy or fill in all fields.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
	// Retryable decides whether an error is worth another attempt.
	Retryable func(error) bool
}

// DefaultRetryPolicy matches the embedding provider defaults: up to 5
// attempts, 200ms base delay doubling each attempt, capped at 5s, retrying
// only transient provider errors.
func DefaultRetryPolicy(maxAttempts int) RetryPolicy {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return RetryPolicy{
		MaxAttempts: maxAttempts,
		BaseDelay:   200 * time.Millisecond,
		Multiplier:  2,
		MaxDelay:    5 * time.Second,
		Retryable:   IsTransient,
	}
}

// Do runs op, retrying per the policy. It returns the last error when
// attempts are exhausted, and stops early when ctx is cancelled or the error
// is not retryable.
func (p RetryPolicy) Do(ctx context.Context, op func() error) error {
	delay := p.BaseDelay
	var err error
	for attempt := 1; ; attempt++ {
		err = op()
		if err == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}
		if attempt >= p.MaxAttempts {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = time.Duration(float64(delay) * p.Multiplier)
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
}
