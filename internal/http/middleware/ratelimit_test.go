package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterRefills(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	defer rl.Stop()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"), "burst exhausted")
	assert.True(t, rl.Allow("b"), "keys are independent")

	now = now.Add(time.Second)
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
}

func TestRateLimitKeysByUser(t *testing.T) {
	rl := NewRateLimiter(0, 1)
	defer rl.Stop()

	h := RateLimit(rl)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func(user string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		if user != "" {
			req = req.WithContext(WithUserID(req.Context(), user))
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, send("alice"))
	assert.Equal(t, http.StatusTooManyRequests, send("alice"))
	assert.Equal(t, http.StatusOK, send("bob"), "same address, different user")
	assert.Equal(t, http.StatusOK, send(""))
	assert.Equal(t, http.StatusTooManyRequests, send(""))
}

func TestRequestLoggerEchoesRequestID(t *testing.T) {
	h := RequestLogger(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}
