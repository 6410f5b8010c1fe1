// Package retry runs operations with bounded exponential backoff. Only
// errors marked temporary are retried.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// Policy defines how retries are spaced and how many are made.
type Policy struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
	Jitter         bool
}

// DefaultPolicy suits startup dependencies such as the database.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:     5,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		BackoffFactor:  2.0,
		Jitter:         true,
	}
}

// TemporaryError marks an error as worth retrying.
type TemporaryError struct {
	Err        error
	RetryAfter time.Duration
}

func (e *TemporaryError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%v (retry after %v)", e.Err, e.RetryAfter)
	}
	return e.Err.Error()
}

func (e *TemporaryError) Unwrap() error {
	return e.Err
}

// Temporary wraps err so Do retries it.
func Temporary(err error) error {
	return &TemporaryError{Err: err}
}

// TemporaryAfter wraps err with an explicit delay before the next attempt.
func TemporaryAfter(err error, delay time.Duration) error {
	return &TemporaryError{Err: err, RetryAfter: delay}
}

// IsTemporary reports whether err, or an error it wraps, is temporary.
func IsTemporary(err error) bool {
	if err == nil {
		return false
	}
	var temp *TemporaryError
	return errors.As(err, &temp)
}

// Do calls fn until it succeeds, returns a permanent error, the retries
// are used up or ctx is done.
func Do(ctx context.Context, policy Policy, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsTemporary(err) {
			return err
		}
		if attempt == policy.MaxRetries {
			break
		}

		wait := backoff(policy, attempt)
		var temp *TemporaryError
		if errors.As(err, &temp) && temp.RetryAfter > 0 {
			wait = temp.RetryAfter
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-timer.C:
		}
	}

	return fmt.Errorf("max retries exceeded (%d): %w", policy.MaxRetries, lastErr)
}

// backoff is InitialBackoff * BackoffFactor^attempt, capped at MaxBackoff,
// with up to 10% jitter either way.
func backoff(policy Policy, attempt int) time.Duration {
	d := float64(policy.InitialBackoff) * math.Pow(policy.BackoffFactor, float64(attempt))
	if d > float64(policy.MaxBackoff) {
		d = float64(policy.MaxBackoff)
	}
	if policy.Jitter {
		d += d * 0.1 * (2*rand.Float64() - 1)
	}
	return time.Duration(d)
}
