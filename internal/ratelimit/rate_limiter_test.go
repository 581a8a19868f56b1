package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryAcquire_ExhaustsBucket(t *testing.T) {
	rl := NewRateLimiter(2, time.Hour)

	assert.True(t, rl.TryAcquire())
	assert.True(t, rl.TryAcquire())
	assert.False(t, rl.TryAcquire())
}

func TestTryAcquire_Refills(t *testing.T) {
	rl := NewRateLimiter(1, 10*time.Millisecond)

	require.True(t, rl.TryAcquire())
	require.False(t, rl.TryAcquire())

	time.Sleep(30 * time.Millisecond)
	assert.True(t, rl.TryAcquire())
}

func TestWait_ReturnsImmediatelyWithTokens(t *testing.T) {
	rl := NewRateLimiter(1, time.Hour)

	start := time.Now()
	err := rl.Wait(context.Background())

	require.NoError(t, err)
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestWait_BlocksUntilRefill(t *testing.T) {
	rl := NewRateLimiter(1, 50*time.Millisecond)
	require.True(t, rl.TryAcquire())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := rl.Wait(ctx)
	assert.NoError(t, err)
}

func TestWait_HonorsContextCancellation(t *testing.T) {
	rl := NewRateLimiter(1, time.Hour)
	require.True(t, rl.TryAcquire())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := rl.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
