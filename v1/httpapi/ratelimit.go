package httpapi

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// clientHeader carries the caller identity set by the auth proxy.
const clientHeader = "X-Forwarded-Email"

const (
	limiterIdleTTL      = time.Hour
	limiterSweepEvery   = 10 * time.Minute
	rateLimitHeader     = "X-RateLimit-Limit"
	rateRemainingHeader = "X-RateLimit-Remaining"
)

type clientLimiter struct {
	limiter *rate.Limiter
	last    time.Time
}

// RateLimiter holds one token bucket per caller. Callers are keyed by
// X-Forwarded-Email, falling back to the remote address.
type RateLimiter struct {
	limit rate.Limit
	burst int
	now   func() time.Time

	mu        sync.Mutex
	clients   map[string]*clientLimiter
	lastSweep time.Time
}

func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	return &RateLimiter{
		limit:     rate.Limit(perSecond),
		burst:     burst,
		now:       time.Now,
		clients:   make(map[string]*clientLimiter),
		lastSweep: time.Now(),
	}
}

// allow takes a token for key and reports the tokens left.
func (l *RateLimiter) allow(key string) (bool, int) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) > limiterSweepEvery {
		for k, c := range l.clients {
			if now.Sub(c.last) > limiterIdleTTL {
				delete(l.clients, k)
			}
		}
		l.lastSweep = now
	}

	c, ok := l.clients[key]
	if !ok {
		c = &clientLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[key] = c
	}
	c.last = now

	allowed := c.limiter.AllowN(now, 1)
	left := int(math.Max(0, math.Floor(c.limiter.TokensAt(now))))
	return allowed, left
}

// perMinute is the sustained limit as advertised to callers.
func (l *RateLimiter) perMinute() int {
	return int(float64(l.limit) * 60)
}

// retryAfter is the time one token takes to refill, in whole seconds.
func (l *RateLimiter) retryAfter() int {
	if l.limit <= 0 {
		return 1
	}
	return max(1, int(math.Ceil(1/float64(l.limit))))
}

func clientKey(r *http.Request) string {
	if v := r.Header.Get(clientHeader); v != "" {
		return v
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RateLimit rejects callers over their token bucket with 429.
func RateLimit(l *RateLimiter, log Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientKey(r)
			allowed, left := l.allow(key)

			w.Header().Set(rateLimitHeader, strconv.Itoa(l.perMinute()))
			w.Header().Set(rateRemainingHeader, strconv.Itoa(left))
			if !allowed {
				log.WarnWithContext(r.Context(), "Rate limit exceeded", nil, map[string]interface{}{
					"client":     key,
					"path":       r.URL.Path,
					"request_id": RequestIDFromContext(r.Context()),
				})
				w.Header().Set("Retry-After", strconv.Itoa(l.retryAfter()))
				writeError(w, http.StatusTooManyRequests, CodeRateLimited,
					"Too many requests, slow down and retry in a few seconds", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
