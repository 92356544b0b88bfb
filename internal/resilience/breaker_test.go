package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakerStaysClosedOnSuccess(t *testing.T) {
	b := NewCircuitBreaker(3, time.Minute)

	for i := 0; i < 10; i++ {
		err := b.Execute(context.Background(), func(ctx context.Context) error { return nil })
		require.NoError(t, err)
	}
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := NewCircuitBreaker(3, time.Minute)
	boom := errors.New("down")

	for i := 0; i < 3; i++ {
		err := b.Execute(context.Background(), func(ctx context.Context) error { return boom })
		assert.ErrorIs(t, err, boom)
	}

	// Fourth call is short-circuited without invoking fn
	called := false
	err := b.Execute(context.Background(), func(ctx context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	b := NewCircuitBreaker(3, time.Minute)
	boom := errors.New("down")

	for i := 0; i < 2; i++ {
		_ = b.Execute(context.Background(), func(ctx context.Context) error { return boom })
	}
	require.NoError(t, b.Execute(context.Background(), func(ctx context.Context) error { return nil }))

	// Two more failures do not trip it; the run was broken
	for i := 0; i < 2; i++ {
		_ = b.Execute(context.Background(), func(ctx context.Context) error { return boom })
	}
	err := b.Execute(context.Background(), func(ctx context.Context) error { return nil })
	assert.NoError(t, err)
}

func TestBreakerHalfOpenProbeCloses(t *testing.T) {
	b := NewCircuitBreaker(1, 10*time.Millisecond)

	_ = b.Execute(context.Background(), func(ctx context.Context) error { return errors.New("down") })
	assert.ErrorIs(t, b.Execute(context.Background(), func(ctx context.Context) error { return nil }), ErrCircuitOpen)

	time.Sleep(15 * time.Millisecond)

	// Cooldown elapsed; one probe is admitted and its success closes the breaker
	require.NoError(t, b.Execute(context.Background(), func(ctx context.Context) error { return nil }))
	require.NoError(t, b.Execute(context.Background(), func(ctx context.Context) error { return nil }))
}

func TestBreakerHalfOpenProbeFailureReopens(t *testing.T) {
	b := NewCircuitBreaker(1, 10*time.Millisecond)
	boom := errors.New("down")

	_ = b.Execute(context.Background(), func(ctx context.Context) error { return boom })
	time.Sleep(15 * time.Millisecond)

	assert.ErrorIs(t, b.Execute(context.Background(), func(ctx context.Context) error { return boom }), boom)

	// Probe failed, breaker is open again for a fresh cooldown
	assert.ErrorIs(t, b.Execute(context.Background(), func(ctx context.Context) error { return nil }), ErrCircuitOpen)
}
