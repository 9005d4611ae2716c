package security

import (
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter keeps one token bucket per client key. Buckets refill at
// RequestsPerWindow per WindowDuration and hold at most BurstMax tokens.
type RateLimiter struct {
	clients  map[string]*clientBucket
	mu       sync.Mutex
	limit    int
	refill   rate.Limit
	burst    int
	idleTTL  time.Duration
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	now      func() time.Time
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimitConfig holds rate limiter configuration
type RateLimitConfig struct {
	// RequestsPerWindow is the sustained number of requests per window
	RequestsPerWindow int
	// WindowDuration is the duration of the rate limit window
	WindowDuration time.Duration
	// BurstMax is the bucket size; zero means RequestsPerWindow
	BurstMax int
}

// DefaultRateLimitConfig returns default rate limit configuration
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerWindow: 100,
		WindowDuration:    time.Minute,
		BurstMax:          20,
	}
}

// NewRateLimiter creates a rate limiter and starts the loop that forgets
// idle clients. Call Stop to release it.
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	def := DefaultRateLimitConfig()
	if config.RequestsPerWindow <= 0 {
		config.RequestsPerWindow = def.RequestsPerWindow
	}
	if config.WindowDuration <= 0 {
		config.WindowDuration = def.WindowDuration
	}
	if config.BurstMax <= 0 {
		config.BurstMax = config.RequestsPerWindow
	}

	rl := &RateLimiter{
		clients: make(map[string]*clientBucket),
		limit:   config.RequestsPerWindow,
		refill:  rate.Every(config.WindowDuration / time.Duration(config.RequestsPerWindow)),
		burst:   config.BurstMax,
		idleTTL: 2 * config.WindowDuration,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		now:     time.Now,
	}
	go rl.cleanup(5 * time.Minute)
	return rl
}

func (rl *RateLimiter) bucket(key string, now time.Time) *rate.Limiter {
	b, ok := rl.clients[key]
	if !ok {
		b = &clientBucket{limiter: rate.NewLimiter(rl.refill, rl.burst)}
		rl.clients[key] = b
	}
	b.lastSeen = now
	return b.limiter
}

// Allow takes a token for key (e.g. user ID or IP) if one is available.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	return rl.bucket(key, now).AllowN(now, 1)
}

// RateLimitInfo contains rate limit information for response headers
type RateLimitInfo struct {
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}

// GetInfo returns rate limit info for a key. ResetAt is when the next token
// becomes available.
func (rl *RateLimiter) GetInfo(key string) RateLimitInfo {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	info := RateLimitInfo{Limit: rl.limit, ResetAt: now}

	b, ok := rl.clients[key]
	if !ok {
		info.Remaining = rl.burst
		return info
	}

	tokens := b.limiter.TokensAt(now)
	info.Remaining = int(math.Max(0, math.Floor(tokens)))
	if tokens < 1 {
		wait := time.Duration((1 - tokens) / float64(rl.refill) * float64(time.Second))
		info.ResetAt = now.Add(wait)
	}
	return info
}

// Reset forgets the bucket for a key
func (rl *RateLimiter) Reset(key string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.clients, key)
}

// Stop ends the cleanup loop.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
	<-rl.done
}

func (rl *RateLimiter) cleanup(every time.Duration) {
	defer close(rl.done)

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.forgetIdle()
		case <-rl.stop:
			return
		}
	}
}

func (rl *RateLimiter) forgetIdle() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-rl.idleTTL)
	removed := 0
	for key, b := range rl.clients {
		if b.lastSeen.Before(cutoff) {
			delete(rl.clients, key)
			removed++
		}
	}
	return removed
}
