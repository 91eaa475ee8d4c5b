package httpmiddleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig configures the token bucket rate limiter.
type RateLimitConfig struct {
	// Rate is the sustained number of requests per second per key. Zero
	// disables limiting.
	Rate float64
	// Burst is the bucket size. Defaults to Rate rounded up, at least 1.
	Burst int
	// IdleTTL drops the bucket of a key unused for that long. Defaults to
	// 10 minutes.
	IdleTTL time.Duration
	// KeyFunc extracts the limited key. Defaults to the session id, then the
	// client IP.
	KeyFunc func(*http.Request) string
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter limits requests per key. Buckets of idle keys are dropped by
// Cleanup.
type RateLimiter struct {
	cfg RateLimitConfig

	mu      sync.Mutex
	buckets map[string]*bucket
}

// NewRateLimiter creates a RateLimiter.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	if cfg.Burst <= 0 {
		cfg.Burst = max(1, int(cfg.Rate+0.999))
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 10 * time.Minute
	}
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = defaultKeyFunc
	}
	return &RateLimiter{
		cfg:     cfg,
		buckets: make(map[string]*bucket),
	}
}

// Allow reports whether a request for key may proceed at now.
func (rl *RateLimiter) Allow(key string, now time.Time) bool {
	rl.mu.Lock()
	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rate.Limit(rl.cfg.Rate), rl.cfg.Burst)}
		rl.buckets[key] = b
	}
	b.lastSeen = now
	rl.mu.Unlock()

	return b.limiter.AllowN(now, 1)
}

// Cleanup drops buckets idle since before now minus IdleTTL and returns how
// many were dropped.
func (rl *RateLimiter) Cleanup(now time.Time) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	var n int
	for key, b := range rl.buckets {
		if now.Sub(b.lastSeen) >= rl.cfg.IdleTTL {
			delete(rl.buckets, key)
			n++
		}
	}
	return n
}

// Run calls Cleanup every IdleTTL until ctx is cancelled.
func (rl *RateLimiter) Run(ctx context.Context) error {
	ticker := time.NewTicker(rl.cfg.IdleTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			rl.Cleanup(now)
		}
	}
}

// Middleware rejects requests over the limit with 429 and a Retry-After
// header.
func (rl *RateLimiter) Middleware() Middleware {
	return func(next http.Handler) http.Handler {
		if rl.cfg.Rate <= 0 {
			return next
		}
		retryAfter := strconv.Itoa(max(1, int(1/rl.cfg.Rate)))
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.Allow(rl.cfg.KeyFunc(r), time.Now()) {
				w.Header().Set("Retry-After", retryAfter)
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func defaultKeyFunc(r *http.Request) string {
	if id := SessionIDFromContext(r.Context()); id != "" {
		return "session:" + id
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "ip:" + r.RemoteAddr
	}
	return "ip:" + host
}
