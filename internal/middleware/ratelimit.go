package middleware

import (
	"net/http"

	"golang.org/x/time/rate"

	"github.com/planetterp/planetterp/internal/metrics"
	"github.com/planetterp/planetterp/internal/respond"
)

// RateLimiter decides whether a request may proceed.
type RateLimiter interface {
	Allow() bool
}

type limiterAdapter struct {
	limiter *rate.Limiter
}

// NewTokenBucketLimiter returns a process wide token bucket. A non-positive
// rate disables limiting and yields nil.
func NewTokenBucketLimiter(ratePerSecond float64, burst int) RateLimiter {
	if ratePerSecond <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}

	return &limiterAdapter{
		limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst),
	}
}

func (l *limiterAdapter) Allow() bool {
	if l == nil || l.limiter == nil {
		return true
	}
	return l.limiter.Allow()
}

// RateLimit rejects requests with 429 once limiter runs dry. A nil limiter disables it.
func RateLimit(limiter RateLimiter, m *metrics.Metrics) Middleware {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter.Allow() {
				next.ServeHTTP(w, r)
				return
			}
			m.RecordRateLimited()
			w.Header().Set("Retry-After", "1")
			respond.Error(w, http.StatusTooManyRequests, "Too many requests", "rate limit exceeded, please retry shortly")
		})
	}
}
