package middleware

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gitco/alphatrader/internal/domain"
)

const rateLimitKeyPrefix = "ratelimit:api:"

// RateLimit caps requests per client IP at limit per window, tracked through
// the shared domain.RateLimiter. Limiter failures fail open so a Redis blip
// does not take the admin API down with it.
func RateLimit(limiter domain.RateLimiter, limit int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := rateLimitKeyPrefix + clientIP(r)

			ok, err := limiter.Allow(r.Context(), key, limit, window)
			if err != nil || ok {
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"rate limit exceeded"}`))
		})
	}
}

// clientIP resolves the originating address, preferring proxy headers over
// the socket peer.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// The first entry is the originating client; the rest are proxies.
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
