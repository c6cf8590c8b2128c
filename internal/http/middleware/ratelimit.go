package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"
)

const (
	limiterSweepEvery = 5 * time.Minute
	limiterIdleAfter  = 10 * time.Minute
)

// RateLimiter is a token bucket per caller key.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    float64
	burst   int
	now     func() time.Time
	stop    chan struct{}
	once    sync.Once
}

type bucket struct {
	tokens   float64
	lastSeen time.Time
}

// NewRateLimiter allows rate requests per second per key with the given
// burst. Call Stop to end the idle-bucket sweeper.
func NewRateLimiter(rate float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	rl := &RateLimiter{
		buckets: make(map[string]*bucket),
		rate:    rate,
		burst:   burst,
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	go rl.sweep()
	return rl
}

func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(rl.burst), lastSeen: now}
		rl.buckets[key] = b
	}

	b.tokens += now.Sub(b.lastSeen).Seconds() * rl.rate
	if b.tokens > float64(rl.burst) {
		b.tokens = float64(rl.burst)
	}
	b.lastSeen = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

func (rl *RateLimiter) Stop() {
	rl.once.Do(func() { close(rl.stop) })
}

func (rl *RateLimiter) sweep() {
	ticker := time.NewTicker(limiterSweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.mu.Lock()
			cutoff := rl.now().Add(-limiterIdleAfter)
			for key, b := range rl.buckets {
				if b.lastSeen.Before(cutoff) {
					delete(rl.buckets, key)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// callerKey prefers the authenticated user, then the client address.
func callerKey(r *http.Request) string {
	if id, ok := UserIDFromContext(r.Context()); ok {
		return "user:" + id
	}
	if xri := r.Header.Get("X-Real-Ip"); xri != "" {
		return "ip:" + xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

// RateLimit rejects callers over their budget with 429. Mount it after
// UserJWT so limits apply per user.
func RateLimit(limiter *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter != nil && !limiter.Allow(callerKey(r)) {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"rate limit exceeded"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
