package store

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryPolicy bounds how a conflicting unit of work is re-run.
type RetryPolicy struct {
	MaxAttempts     uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// OnRetry is called before each re-run; may be nil.
	OnRetry func(attempt int, err error)
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, InitialInterval: 20 * time.Millisecond, MaxInterval: 500 * time.Millisecond}
}

// Retry runs op, re-running it with exponential backoff while it fails with ErrConflict.
// Any other error stops immediately and is returned unchanged.
func Retry(ctx context.Context, p RetryPolicy, op func(ctx context.Context) error) error {
	if p.MaxAttempts == 0 {
		p = DefaultRetryPolicy()
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		err := op(ctx)
		if err == nil {
			return struct{}{}, nil
		}
		if !errors.Is(err, ErrConflict) {
			return struct{}{}, backoff.Permanent(err)
		}
		if p.OnRetry != nil && attempt < int(p.MaxAttempts) {
			p.OnRetry(attempt, err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(p.MaxAttempts), backoff.WithMaxElapsedTime(0))
	return err
}
