package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

// RateLimiter is a coarse in-process token bucket in front of the MFA routes.
// Authenticated callers are keyed by user, everyone else by client IP. The
// per-user sliding window in the service is the real budget.
type RateLimiter struct {
	limiters map[string]*rate.Limiter
	mutex    sync.Mutex
	rate     rate.Limit
	burst    int
	ttl      time.Duration
	lastSeen map[string]time.Time
}

func NewRateLimiter(r rate.Limit, burst int, ttl time.Duration) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		lastSeen: make(map[string]time.Time),
		rate:     r,
		burst:    burst,
		ttl:      ttl,
	}
}

func (l *RateLimiter) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			limiter := l.getLimiter(clientKey(c))
			reservation := limiter.Reserve()
			if !reservation.OK() {
				return c.JSON(http.StatusTooManyRequests, map[string]string{"message": "too many requests"})
			}
			if delay := reservation.Delay(); delay > 0 {
				reservation.Cancel()
				seconds := int64(delay/time.Second) + 1
				c.Response().Header().Set("Retry-After", strconv.FormatInt(seconds, 10))
				return c.JSON(http.StatusTooManyRequests, map[string]any{
					"message":           "too many requests",
					"retryAfterSeconds": seconds,
				})
			}
			return next(c)
		}
	}
}

func clientKey(c echo.Context) string {
	if identity, ok := IdentityFromContext(c); ok {
		return "user:" + identity.ID.String()
	}
	return "ip:" + c.RealIP()
}

func (l *RateLimiter) getLimiter(key string) *rate.Limiter {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if limiter, ok := l.limiters[key]; ok {
		l.lastSeen[key] = time.Now()
		return limiter
	}
	limiter := rate.NewLimiter(l.rate, l.burst)
	l.limiters[key] = limiter
	l.lastSeen[key] = time.Now()
	l.cleanup()
	return limiter
}

func (l *RateLimiter) cleanup() {
	if l.ttl == 0 {
		return
	}
	cutoff := time.Now().Add(-l.ttl)
	for key, last := range l.lastSeen {
		if last.Before(cutoff) {
			delete(l.lastSeen, key)
			delete(l.limiters, key)
		}
	}
}
