package middleware

import (
	"context"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/aivideopro/aivideopro/internal/auth"
	"github.com/aivideopro/aivideopro/internal/cache"
)

// RateLimiter takes tokens from Redis buckets. Implemented by cache.Cache.
type RateLimiter interface {
	CheckAPIRateLimit(ctx context.Context, keyID string, ratePerMinute, burst int) (*cache.RateLimitResult, error)
	CheckIPRateLimit(ctx context.Context, ip string, ratePerSecond, burst int) (*cache.RateLimitResult, error)
}

// RateLimitConfig holds configuration for rate limiting middleware.
type RateLimitConfig struct {
	Logger  *slog.Logger
	Limiter RateLimiter

	// APIEnabled limits authenticated routes per key, by the key's tier.
	APIEnabled bool

	// IPEnabled limits sign-in and backend callbacks per client IP.
	IPEnabled bool
	IPRPS     int
	IPBurst   int
}

// RateLimitAPI limits each API key to its tier's budget. It runs after
// Auth. When Redis is unavailable requests are let through.
func RateLimitAPI(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx := auth.AuthFromContext(r.Context())
			if !cfg.APIEnabled || authCtx == nil {
				next.ServeHTTP(w, r)
				return
			}

			quota := authCtx.Quota()
			if quota.Unlimited() {
				next.ServeHTTP(w, r)
				return
			}

			res, err := cfg.Limiter.CheckAPIRateLimit(r.Context(), authCtx.KeyID, quota.PerMinute, quota.Burst)
			if err != nil {
				cfg.Logger.Error("rate limit check failed, allowing request",
					slog.String("error", err.Error()),
					slog.String("key_id", authCtx.KeyID),
				)
				next.ServeHTTP(w, r)
				return
			}

			setRateLimitHeaders(w, quota.PerMinute, res)
			if !res.Allowed {
				cfg.Logger.Warn("rate limit exceeded",
					slog.String("scope", "api_key"),
					slog.String("key_id", authCtx.KeyID),
					slog.String("tier", authCtx.RateLimitTier),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				writeRateLimited(w, res.RetryAfter)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitIP limits routes that run before any API key is known.
func RateLimitIP(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.IPEnabled {
				next.ServeHTTP(w, r)
				return
			}

			ip := clientIP(r)
			res, err := cfg.Limiter.CheckIPRateLimit(r.Context(), ip, cfg.IPRPS, cfg.IPBurst)
			if err != nil {
				cfg.Logger.Error("ip rate limit check failed, allowing request", slog.String("error", err.Error()))
				next.ServeHTTP(w, r)
				return
			}

			if !res.Allowed {
				cfg.Logger.Warn("rate limit exceeded",
					slog.String("scope", "ip"),
					slog.String("endpoint", r.Method+" "+r.URL.Path),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				writeRateLimited(w, res.RetryAfter)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func setRateLimitHeaders(w http.ResponseWriter, limit int, res *cache.RateLimitResult) {
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	h.Set("X-RateLimit-Remaining", strconv.FormatInt(max(res.Remaining, 0), 10))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
}

// writeRateLimited answers 429. Retry-After is whole seconds, at least 1.
func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	secs := max(int(math.Ceil(retryAfter.Seconds())), 1)
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	writeError(w, http.StatusTooManyRequests, "RATE_LIMITED",
		"Rate limit exceeded. Retry after "+strconv.Itoa(secs)+" seconds.")
}

// clientIP is the request's remote host. chi's RealIP runs first and has
// already replaced RemoteAddr with the forwarded client address.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
