package middleware

import (
	"net/http"
	"sync"
	"time"
)

const (
	reapInterval = 5 * time.Minute
	idleEviction = 10 * time.Minute
)

// TokenBucket is a per-key bucket with fractional refill, so a 30/min
// limit trickles back a token every two seconds instead of all at once.
type TokenBucket struct {
	mu         sync.Mutex
	capacity   float64
	tokens     float64
	perSecond  float64
	lastRefill time.Time
}

func NewTokenBucket(perMinute int) *TokenBucket {
	cap := float64(perMinute)
	return &TokenBucket{
		capacity:   cap,
		tokens:     cap,
		perSecond:  cap / 60.0,
		lastRefill: time.Now(),
	}
}

// Allow spends one token if available.
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refillLocked(time.Now())
	if tb.tokens < 1 {
		return false
	}
	tb.tokens--
	return true
}

func (tb *TokenBucket) refillLocked(now time.Time) {
	elapsed := now.Sub(tb.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	tb.tokens += elapsed * tb.perSecond
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
	tb.lastRefill = now
}

func (tb *TokenBucket) idleFor(now time.Time) time.Duration {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return now.Sub(tb.lastRefill)
}

// RateLimiter hands out one bucket per key (tenant atau IP).
type RateLimiter struct {
	mu        sync.RWMutex
	buckets   map[string]*TokenBucket
	perMinute int
}

func NewRateLimiter(perMinute int) *RateLimiter {
	rl := &RateLimiter{
		buckets:   make(map[string]*TokenBucket),
		perMinute: perMinute,
	}
	go rl.reapIdle()
	return rl
}

func (rl *RateLimiter) Allow(key string) bool {
	return rl.bucketFor(key).Allow()
}

func (rl *RateLimiter) bucketFor(key string) *TokenBucket {
	rl.mu.RLock()
	b := rl.buckets[key]
	rl.mu.RUnlock()
	if b != nil {
		return b
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if b := rl.buckets[key]; b != nil {
		return b
	}
	b = NewTokenBucket(rl.perMinute)
	rl.buckets[key] = b
	return b
}

// reapIdle buang bucket yang lama diam, biar map tidak tumbuh terus
// untuk key IP sekali lewat.
func (rl *RateLimiter) reapIdle() {
	ticker := time.NewTicker(reapInterval)
	defer ticker.Stop()

	for range ticker.C {
		now := time.Now()
		rl.mu.Lock()
		for key, b := range rl.buckets {
			if b.idleFor(now) > idleEviction {
				delete(rl.buckets, key)
			}
		}
		rl.mu.Unlock()
	}
}

// RateLimitMiddleware batasi request per tenant per menit. Key pakai
// tenant hasil auth; request tanpa tenant digabung per IP.
func RateLimitMiddleware(perMinute int) func(http.Handler) http.Handler {
	limiter := NewRateLimiter(perMinute)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if openPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			key := GetTenantFromContext(r.Context())
			if key == "" {
				key = "ip:" + r.RemoteAddr
			}

			if !limiter.Allow(key) {
				w.Header().Set("Retry-After", "60")
				http.Error(w, "rate limit exceeded, please try again later", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
