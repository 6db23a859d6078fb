package handlers_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"

	"github.com/oceanco2/intake/api/handlers"
)

func TestIntake_API_RateLimiter(t *testing.T) {
	t.Parallel()

	t.Run("burst per ip", func(t *testing.T) {
		t.Parallel()

		limiter := handlers.NewRateLimiter(rate.Limit(5), 5)
		t.Cleanup(limiter.Close)

		ip := "192.168.1.1"
		for i := range 5 {
			assert.True(t, limiter.Allow(ip), "request %d should be allowed", i+1)
		}
		assert.False(t, limiter.Allow(ip), "request 6 should be denied")
		assert.True(t, limiter.Allow("192.168.1.2"), "different IP should be allowed")
	})

	t.Run("refill", func(t *testing.T) {
		t.Parallel()

		limiter := handlers.NewRateLimiter(rate.Limit(10), 2)
		t.Cleanup(limiter.Close)

		ip := "192.168.1.1"
		assert.True(t, limiter.Allow(ip))
		assert.True(t, limiter.Allow(ip))
		assert.False(t, limiter.Allow(ip))

		// 100ms = 1 token at 10/sec
		time.Sleep(150 * time.Millisecond)
		assert.True(t, limiter.Allow(ip), "should be allowed after refill")
	})

	t.Run("check rate limit message", func(t *testing.T) {
		t.Parallel()

		limiter := handlers.NewRateLimiter(rate.Limit(5), 2)
		t.Cleanup(limiter.Close)

		ip := "192.168.1.100"
		assert.Empty(t, handlers.CheckRateLimit(limiter, ip))
		assert.Empty(t, handlers.CheckRateLimit(limiter, ip))

		errMsg := handlers.CheckRateLimit(limiter, ip)
		assert.Contains(t, errMsg, "rate limit exceeded")
		assert.Contains(t, errMsg, "try again in")
	})

	t.Run("middleware json response", func(t *testing.T) {
		t.Parallel()

		limiter := handlers.NewRateLimiter(rate.Limit(1), 1)
		t.Cleanup(limiter.Close)

		handler := handlers.RateLimitMiddleware(limiter)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.RemoteAddr = "192.168.1.50:12345"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)

		rec = httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		assert.NotEmpty(t, rec.Header().Get("Retry-After"))

		var errResp handlers.RateLimitError
		assert.NoError(t, json.NewDecoder(rec.Body).Decode(&errResp))
		assert.Equal(t, "rate_limit_exceeded", errResp.Error)
		assert.Greater(t, errResp.RetryAfter, 0)
	})
}

func TestIntake_API_GetIPFromRequest(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"remote addr", nil, "10.0.0.1:5555", "10.0.0.1"},
		{"remote addr without port", nil, "10.0.0.1", "10.0.0.1"},
		{"forwarded for first hop", map[string]string{"X-Forwarded-For": " 203.0.113.7 , 10.0.0.2"}, "10.0.0.1:5555", "203.0.113.7"},
		{"real ip", map[string]string{"X-Real-IP": "198.51.100.4"}, "10.0.0.1:5555", "198.51.100.4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, handlers.GetIPFromRequest(req))
		})
	}
}
