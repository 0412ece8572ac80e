package ratelimiter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name              string
		requestsPerSecond float64
		burst             int
		expectNil         bool
	}{
		{name: "standard rate", requestsPerSecond: 100, burst: 200},
		{name: "zero burst raised to one", requestsPerSecond: 5, burst: 0},
		{name: "unlimited", requestsPerSecond: 0, burst: 10, expectNil: true},
		{name: "negative rate is unlimited", requestsPerSecond: -1, burst: 10, expectNil: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limiter := New(tt.requestsPerSecond, tt.burst)
			if tt.expectNil {
				assert.Nil(t, limiter)
				return
			}
			require.NotNil(t, limiter)
			assert.Equal(t, tt.requestsPerSecond, limiter.Limit())
		})
	}
}

func TestNilLimiterNeverLimits(t *testing.T) {
	var limiter *RateLimiter

	for range 1000 {
		assert.True(t, limiter.Allow())
	}
	assert.NoError(t, limiter.Wait(context.Background()))
	assert.Zero(t, limiter.Limit())
}

func TestAllow(t *testing.T) {
	limiter := New(10, 10)

	for i := range 10 {
		require.True(t, limiter.Allow(), "request %d should be allowed within burst", i)
	}
	assert.False(t, limiter.Allow(), "request should be limited after burst is exhausted")

	time.Sleep(110 * time.Millisecond)
	assert.True(t, limiter.Allow(), "request should be allowed after replenishment")
}

func TestWait(t *testing.T) {
	limiter := New(10, 1)
	ctx := context.Background()

	require.NoError(t, limiter.Wait(ctx))

	start := time.Now()
	require.NoError(t, limiter.Wait(ctx))
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
	assert.Less(t, elapsed, 500*time.Millisecond)
}

func TestWaitContextCancellation(t *testing.T) {
	limiter := New(1, 1)
	require.True(t, limiter.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	// x/time/rate fails fast when the next token is beyond the deadline.
	err := limiter.Wait(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit wait")
}
