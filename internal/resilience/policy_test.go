package resilience

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/pdfqa/internal/core/domain"
)

func fastSettings(attempts int) domain.ResilienceSettings {
	return domain.ResilienceSettings{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	}
}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	p := New("embedding", fastSettings(3))
	calls := 0

	got, err := Do(context.Background(), p, func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", fmt.Errorf("connect: %w", domain.ErrTransient)
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, calls)
}

func TestDo_ExhaustionIsUnrecoverable(t *testing.T) {
	p := New("llm", fastSettings(2))
	calls := 0

	_, err := Do(context.Background(), p, func(context.Context) (int, error) {
		calls++
		return 0, fmt.Errorf("status 503: %w", domain.ErrTransient)
	})

	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.ErrorIs(t, err, domain.ErrUnrecoverable)
	assert.ErrorIs(t, err, domain.ErrTransient)
	assert.False(t, domain.IsRetryable(err))
}

func TestDo_NonTransientIsNotRetried(t *testing.T) {
	p := New("llm", fastSettings(5))
	calls := 0

	_, err := Do(context.Background(), p, func(context.Context) (int, error) {
		calls++
		return 0, fmt.Errorf("status 400: %w", domain.ErrInvalidInput)
	})

	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.NotErrorIs(t, err, domain.ErrUnrecoverable)
	assert.Equal(t, 1, calls)
}

func TestDo_ContextCancelled(t *testing.T) {
	p := New("llm", fastSettings(5))
	ctx, cancel := context.WithCancel(context.Background())

	_, err := Do(ctx, p, func(context.Context) (int, error) {
		cancel()
		return 0, context.Canceled
	})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestDo_BreakerOpens(t *testing.T) {
	p := New("embedding", fastSettings(1), WithTripAfter(2), WithOpenTimeout(time.Hour))
	failing := func(context.Context) (int, error) {
		return 0, domain.ErrTransient
	}

	for range 2 {
		_, err := Do(context.Background(), p, failing)
		require.Error(t, err)
	}

	calls := 0
	_, err := Do(context.Background(), p, func(context.Context) (int, error) {
		calls++
		return 1, nil
	})
	assert.ErrorIs(t, err, domain.ErrUnrecoverable)
	assert.Contains(t, err.Error(), "circuit open")
	assert.Zero(t, calls)
}

func TestDo_InvalidInputDoesNotTripBreaker(t *testing.T) {
	p := New("embedding", fastSettings(1), WithTripAfter(1), WithOpenTimeout(time.Hour))

	for range 3 {
		_, err := Do(context.Background(), p, func(context.Context) (int, error) {
			return 0, domain.ErrInvalidInput
		})
		require.ErrorIs(t, err, domain.ErrInvalidInput)
	}

	got, err := Do(context.Background(), p, func(context.Context) (int, error) {
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, got)
}

func TestRun_NilPolicy(t *testing.T) {
	sentinel := errors.New("boom")
	err := Run(context.Background(), nil, func(context.Context) error { return sentinel })
	assert.ErrorIs(t, err, sentinel)
}
