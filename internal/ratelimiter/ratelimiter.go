// Package ratelimiter throttles the requests of a single connection.
package ratelimiter

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimiter is a token bucket limiting how fast one connection may issue
// requests.
//
// Connections wait for a token before dispatching each request instead of
// being rejected: a client that sends too fast sees added latency, never an
// error response. This keeps the one-response-per-request contract intact.
//
// A nil *RateLimiter is valid and never limits, so callers can keep an
// optional limiter without nil checks.
//
// Thread safety:
// All methods are safe for concurrent use.
type RateLimiter struct {
	limiter *rate.Limiter
}

// New creates a RateLimiter.
//
// Parameters:
//   - requestsPerSecond: Sustained request rate (tokens added per second)
//   - burst: Bucket capacity; values below 1 are raised to 1
//
// Returns nil (no limiting) when requestsPerSecond is 0.
//
// Example:
//
//	// 50 req/s sustained, bursts of up to 100
//	limiter := ratelimiter.New(50, 100)
func New(requestsPerSecond float64, burst int) *RateLimiter {
	if requestsPerSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}

	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
	}
}

// Allow consumes a token if one is available, without waiting.
func (r *RateLimiter) Allow() bool {
	if r == nil {
		return true
	}
	return r.limiter.Allow()
}

// Wait blocks until a token is available or ctx is done.
//
// Returns:
//   - nil if a token was acquired
//   - an error wrapping the context error if ctx ended first
func (r *RateLimiter) Wait(ctx context.Context) error {
	if r == nil {
		return nil
	}
	if err := r.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return nil
}

// Limit returns the configured sustained rate, 0 when unlimited.
func (r *RateLimiter) Limit() float64 {
	if r == nil {
		return 0
	}
	return float64(r.limiter.Limit())
}
