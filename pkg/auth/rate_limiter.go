package auth

import (
	"sync"
	"time"
)

/*
RateLimiter is a token bucket.  The bucket starts full and refills
continuously, so short bursts up to the configured rate are allowed and
sustained traffic converges on the average.
*/
type RateLimiter struct {
	mu       sync.Mutex
	rate     float64 // tokens per second
	capacity int64
	tokens   float64
	last     time.Time
}

// NewRateLimiter allows rate operations per interval.
func NewRateLimiter(rate int64, interval time.Duration) *RateLimiter {
	if rate <= 0 || interval <= 0 {
		panic("rate and interval must be positive")
	}

	return &RateLimiter{
		rate:     float64(rate) / interval.Seconds(),
		capacity: rate,
		tokens:   float64(rate),
		last:     time.Now(),
	}
}

// Allow reports whether one more operation fits under the limit,
// consuming a token when it does.
func (limiter *RateLimiter) Allow() bool {
	limiter.mu.Lock()
	defer limiter.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(limiter.last).Seconds()
	limiter.last = now

	limiter.tokens = min(
		float64(limiter.capacity),
		limiter.tokens+elapsed*limiter.rate,
	)

	if limiter.tokens < 1.0 {
		return false
	}

	limiter.tokens--
	return true
}

// WaitTime returns how long until the next token becomes available.
func (limiter *RateLimiter) WaitTime() time.Duration {
	limiter.mu.Lock()
	defer limiter.mu.Unlock()

	if limiter.tokens >= 1.0 {
		return 0
	}

	secondsNeeded := (1.0 - limiter.tokens) / limiter.rate
	return time.Duration(secondsNeeded * float64(time.Second))
}

// Reset refills the bucket.
func (limiter *RateLimiter) Reset() {
	limiter.mu.Lock()
	defer limiter.mu.Unlock()

	limiter.tokens = float64(limiter.capacity)
	limiter.last = time.Now()
}
