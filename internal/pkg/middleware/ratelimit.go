package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"pagepress/internal/pkg/errors"
)

// RateLimitConfig defines rate limiting configuration.
type RateLimitConfig struct {
	Every time.Duration
	Burst int
	// Key picks the limiter bucket for a request. Requests with an
	// empty key are not limited.
	Key func(r *http.Request) string
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimit creates a keyed rate limiting middleware. Idle buckets are
// dropped after ten minutes.
func RateLimit(cfg RateLimitConfig) func(http.Handler) http.Handler {
	var (
		mu      sync.Mutex
		clients = make(map[string]*limiterEntry)
		swept   = time.Now()
	)

	get := func(key string) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()

		now := time.Now()
		if now.Sub(swept) > time.Minute {
			for k, e := range clients {
				if now.Sub(e.lastSeen) > 10*time.Minute {
					delete(clients, k)
				}
			}
			swept = now
		}

		e, ok := clients[key]
		if !ok {
			e = &limiterEntry{limiter: rate.NewLimiter(rate.Every(cfg.Every), cfg.Burst)}
			clients[key] = e
		}
		e.lastSeen = now
		return e.limiter
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := cfg.Key(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			res := get(key).Reserve()
			if delay := res.Delay(); delay > 0 {
				res.Cancel()
				retry := int(math.Ceil(delay.Seconds()))
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				limited := errors.RateLimited(retry)
				WriteErrorResponse(w, limited.Code, limited.Message, limited.Fields)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
