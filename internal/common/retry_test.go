package common

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithRetry(t *testing.T) {
	ctx := context.Background()
	opts := RetryOptions{MaxAttempts: 3, InitialDelay: time.Millisecond}

	t.Run("succeeds after transient failures", func(t *testing.T) {
		attempts := 0
		err := WithRetry(ctx, func() error {
			attempts++
			if attempts < 3 {
				return errors.New("database is locked")
			}
			return nil
		}, opts)
		require.NoError(t, err)
		assert.Equal(t, 3, attempts)
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		attempts := 0
		err := WithRetry(ctx, func() error {
			attempts++
			return errors.New("database is locked")
		}, opts)
		assert.ErrorIs(t, err, ErrMaxRetries)
		assert.Equal(t, 3, attempts)
	})

	t.Run("non-retryable error stops immediately", func(t *testing.T) {
		attempts := 0
		err := WithRetry(ctx, func() error {
			attempts++
			return &RetryableError{Err: errors.New("constraint violated"), Retryable: false}
		}, opts)
		require.Error(t, err)
		assert.Equal(t, 1, attempts)
	})

	t.Run("cancelled context stops the wait", func(t *testing.T) {
		cancelCtx, cancel := context.WithCancel(ctx)
		cancel()
		err := WithRetry(cancelCtx, func() error {
			return errors.New("database is locked")
		}, RetryOptions{MaxAttempts: 3, InitialDelay: time.Minute})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(context.Canceled))
	assert.True(t, IsRetryable(&RetryableError{Err: errors.New("busy"), Retryable: true}))
	assert.False(t, IsRetryable(&RetryableError{Err: errors.New("bad input"), Retryable: false}))
	assert.False(t, IsRetryable(errors.New("plain failure")))
}
