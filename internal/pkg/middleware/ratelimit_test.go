package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimit(t *testing.T) {
	limit := RateLimit(RateLimitConfig{
		Every: time.Minute,
		Burst: 2,
		Key:   func(r *http.Request) string { return r.Header.Get("X-Principal") },
	})
	handler := limit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func(principal string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/renders", nil)
		if principal != "" {
			req.Header.Set("X-Principal", principal)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	t.Run("allows burst then rejects", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, do("alice").Code)
		assert.Equal(t, http.StatusOK, do("alice").Code)

		rec := do("alice")
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.NotEmpty(t, rec.Header().Get("Retry-After"))
		assert.Contains(t, rec.Body.String(), "RATE_LIMITED")
		assert.Contains(t, rec.Body.String(), `"retry_after_seconds"`)
	})

	t.Run("buckets are per key", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, do("bob").Code)
	})

	t.Run("empty key is not limited", func(t *testing.T) {
		for i := 0; i < 5; i++ {
			assert.Equal(t, http.StatusOK, do("").Code)
		}
	})
}
