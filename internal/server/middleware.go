package server

import (
	"log/slog"
	"net/http"
	"sync"

	"golang.org/x/time/rate"
)

// ipLimiter hands out one token bucket per client IP.
type ipLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*rate.Limiter
	rateLimit rate.Limit
	burstSize int
}

func newIPLimiter(rateLimit rate.Limit, burstSize int) *ipLimiter {
	return &ipLimiter{
		limiters:  make(map[string]*rate.Limiter),
		rateLimit: rateLimit,
		burstSize: burstSize,
	}
}

func (il *ipLimiter) get(ip string) *rate.Limiter {
	il.mu.Lock()
	defer il.mu.Unlock()

	limiter, exists := il.limiters[ip]
	if !exists {
		limiter = rate.NewLimiter(il.rateLimit, il.burstSize)
		il.limiters[ip] = limiter
	}
	return limiter
}

// NewRateLimitMiddleware creates per-IP rate limiting middleware allowing
// perMinute requests per minute with a burst of the same size.
func NewRateLimitMiddleware(perMinute int, logger *slog.Logger) func(http.Handler) http.Handler {
	limiter := newIPLimiter(rate.Limit(float64(perMinute)/60.0), perMinute)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := r.RemoteAddr

			if !limiter.get(ip).Allow() {
				logger.Warn("Rate limit exceeded", "ip", ip, "path", r.URL.Path)
				http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
