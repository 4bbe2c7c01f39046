package ratelimiter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(limit int, interval time.Duration, clock *time.Time) *RateLimiter {
	rl := NewRateLimiter(limit, interval)
	rl.now = func() time.Time { return *clock }
	rl.lastReset = *clock
	return rl
}

// TestRateLimiter_Reserve は上限超過時に次のウィンドウまでの待ち時間が返ることを検証します。
func TestRateLimiter_Reserve(t *testing.T) {
	t.Parallel()

	clock := time.Date(2024, 1, 3, 10, 0, 0, 0, time.UTC)
	rl := newTestLimiter(2, time.Minute, &clock)

	assert.LessOrEqual(t, rl.reserve(), time.Duration(0))
	assert.LessOrEqual(t, rl.reserve(), time.Duration(0))

	clock = clock.Add(10 * time.Second)
	assert.Equal(t, 50*time.Second, rl.reserve(), "third call waits for the next window")
	assert.Equal(t, 50*time.Second, rl.reserve(), "fourth call shares the reserved window")
	assert.Equal(t, 110*time.Second, rl.reserve(), "fifth call spills into the window after")
}

// TestRateLimiter_ResetAfterInterval はinterval経過後にカウントがリセットされることを検証します。
func TestRateLimiter_ResetAfterInterval(t *testing.T) {
	t.Parallel()

	clock := time.Date(2024, 1, 3, 10, 0, 0, 0, time.UTC)
	rl := newTestLimiter(1, time.Minute, &clock)

	assert.LessOrEqual(t, rl.reserve(), time.Duration(0))
	clock = clock.Add(time.Minute)
	assert.LessOrEqual(t, rl.reserve(), time.Duration(0))
}

// TestRateLimiter_WaitCanceled は待機中のキャンセルでctxのエラーが返ることを検証します。
func TestRateLimiter_WaitCanceled(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(1, time.Hour)
	require.NoError(t, rl.Wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, rl.Wait(ctx), context.Canceled)
}

// TestRateLimiter_Unlimited は上限0またはnilで待機しないことを検証します。
func TestRateLimiter_Unlimited(t *testing.T) {
	t.Parallel()

	var nilLimiter *RateLimiter
	assert.NoError(t, nilLimiter.Wait(context.Background()))

	rl := NewRateLimiter(0, time.Minute)
	for i := 0; i < 10; i++ {
		assert.NoError(t, rl.Wait(context.Background()))
	}
}
