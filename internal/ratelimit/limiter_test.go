package ratelimit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_TryAcquireBurst(t *testing.T) {
	// 2/hour quota means a burst capacity of 2.
	limiter := NewLimiter(map[string]int{"yahoo": 2})

	assert.True(t, limiter.TryAcquire("yahoo"))
	assert.True(t, limiter.TryAcquire("yahoo"))
	assert.False(t, limiter.TryAcquire("yahoo"), "bucket should be drained")
}

func TestLimiter_UnconfiguredSourceUnlimited(t *testing.T) {
	limiter := NewLimiter(nil)

	for i := 0; i < 100; i++ {
		require.True(t, limiter.TryAcquire("anything"))
	}
	assert.NoError(t, limiter.Acquire(context.Background(), "anything"))
}

func TestLimiter_AcquireTimeout(t *testing.T) {
	// 1/hour: after the burst token is spent the next refill is ~an hour out.
	limiter := NewLimiter(map[string]int{"zoya": 1})
	require.NoError(t, limiter.Acquire(context.Background(), "zoya"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := limiter.Acquire(ctx, "zoya")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRateLimited), "deadline expiry should map to ErrRateLimited")
}

func TestLimiter_AcquireCancellation(t *testing.T) {
	limiter := NewLimiter(map[string]int{"zoya": 1})
	require.NoError(t, limiter.Acquire(context.Background(), "zoya"))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := limiter.Acquire(ctx, "zoya")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLimiter_ConcurrentAcquire(t *testing.T) {
	limiter := NewLimiter(map[string]int{"yahoo": 50})

	var granted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if limiter.TryAcquire("yahoo") {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()

	// Exactly the burst capacity should be granted; refill over the test's
	// microseconds is negligible.
	assert.EqualValues(t, 50, granted.Load())
}

func TestLimiter_SetQuotaRemoves(t *testing.T) {
	limiter := NewLimiter(map[string]int{"yahoo": 1})
	require.True(t, limiter.TryAcquire("yahoo"))
	require.False(t, limiter.TryAcquire("yahoo"))

	limiter.SetQuota("yahoo", 0)
	assert.True(t, limiter.TryAcquire("yahoo"), "removed quota means unlimited")
}
