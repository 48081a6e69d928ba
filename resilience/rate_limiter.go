package resilience

import (
	"sync"
	"time"

	"github.com/juju/clock"
)

// RateLimiterConfig configures a token bucket.
type RateLimiterConfig struct {
	Name string
	// Rate is the number of tokens added per second. Zero means 10.
	Rate float64
	// Burst is the bucket size. Zero means Rate, at least 1.
	Burst int
	// OnLimit runs when Allow turns a call away.
	OnLimit func(name string)
	// Clock drives refill. Defaults to clock.WallClock.
	Clock clock.Clock
}

// DefaultRateLimiterConfig allows 10 calls per second with bursts of 20.
func DefaultRateLimiterConfig(name string) RateLimiterConfig {
	return RateLimiterConfig{Name: name, Rate: 10, Burst: 20}
}

// RateLimiter is a token bucket that starts full.
type RateLimiter struct {
	cfg RateLimiterConfig

	mu     sync.Mutex
	tokens float64
	last   time.Time
}

// NewRateLimiter creates a full bucket.
func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	if cfg.Rate <= 0 {
		cfg.Rate = 10
	}
	if cfg.Burst <= 0 {
		cfg.Burst = max(int(cfg.Rate), 1)
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}
	return &RateLimiter{cfg: cfg, tokens: float64(cfg.Burst), last: cfg.Clock.Now()}
}

// Allow takes a token if one is available.
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.refill()
	if rl.tokens >= 1 {
		rl.tokens--
		return true
	}
	if rl.cfg.OnLimit != nil {
		rl.cfg.OnLimit(rl.cfg.Name)
	}
	return false
}

// Tokens returns the tokens currently available.
func (rl *RateLimiter) Tokens() float64 {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.refill()
	return rl.tokens
}

func (rl *RateLimiter) refill() {
	now := rl.cfg.Clock.Now()
	rl.tokens = min(rl.tokens+now.Sub(rl.last).Seconds()*rl.cfg.Rate, float64(rl.cfg.Burst))
	rl.last = now
}
