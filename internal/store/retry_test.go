package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(max uint) RetryPolicy {
	return RetryPolicy{MaxAttempts: max, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
}

func TestRetryRerunsConflicts(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastPolicy(5), func(context.Context) error {
		calls++
		if calls < 3 {
			return fmt.Errorf("update account: %w", ErrConflict)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := Retry(context.Background(), fastPolicy(5), func(context.Context) error {
		calls++
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestRetryGivesUpAfterMaxAttempts(t *testing.T) {
	calls := 0
	retried := 0
	p := fastPolicy(3)
	p.OnRetry = func(int, error) { retried++ }
	err := Retry(context.Background(), p, func(context.Context) error {
		calls++
		return ErrConflict
	})
	require.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, retried)
}
