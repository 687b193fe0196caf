// Package retry is the single retry policy shared by provider calls and
// datastore, Redis, and NATS connect paths.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy configures exponential backoff. MaxAttempts counts the first call.
type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
}

// DefaultPolicy returns three attempts starting at 100ms.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     3,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		Multiplier:      2,
	}
}

// Permanent marks err as not retryable. Do returns the unwrapped err.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

// Do runs op until it succeeds, returns a permanent error, the attempts are
// exhausted, or ctx is done. onRetry, when non-nil, observes every failed
// attempt that will be retried.
func Do(ctx context.Context, p Policy, op func(context.Context) error, onRetry func(error, time.Duration)) error {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}

	bo := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		bo.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		bo.MaxInterval = p.MaxInterval
	}
	if p.Multiplier > 1 {
		bo.Multiplier = p.Multiplier
	}
	bo.MaxElapsedTime = 0

	b := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(p.MaxAttempts-1)), ctx)

	operation := func() error {
		return op(ctx)
	}
	if onRetry == nil {
		return backoff.Retry(operation, b)
	}
	return backoff.RetryNotify(operation, b, onRetry)
}
