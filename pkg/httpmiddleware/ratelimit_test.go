package httpmiddleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

type limitedRequest struct {
	remoteAddr string
	header     http.Header
	wantStatus int
}

func TestRateLimit_Keys(t *testing.T) {
	session := func(id string) http.Header { return http.Header{"X-Session-Id": {id}} }
	xff := http.Header{"X-Forwarded-For": {"203.0.113.50, 70.41.3.18"}}

	for _, tt := range []struct {
		name     string
		max      int
		keyFunc  func(*http.Request) string
		requests []limitedRequest
	}{
		{
			name: "UnderLimit",
			max:  3,
			requests: []limitedRequest{
				{remoteAddr: "192.168.1.1:1", wantStatus: http.StatusOK},
				{remoteAddr: "192.168.1.1:2", wantStatus: http.StatusOK},
				{remoteAddr: "192.168.1.1:3", wantStatus: http.StatusOK},
			},
		},
		{
			name: "PerClientIP",
			max:  1,
			requests: []limitedRequest{
				{remoteAddr: "10.0.0.1:1234", wantStatus: http.StatusOK},
				{remoteAddr: "10.0.0.2:1234", wantStatus: http.StatusOK},
				{remoteAddr: "10.0.0.1:5678", wantStatus: http.StatusTooManyRequests},
			},
		},
		{
			name: "ForwardedForFirstHop",
			max:  1,
			requests: []limitedRequest{
				{remoteAddr: "192.168.1.1:4444", header: xff, wantStatus: http.StatusOK},
				{remoteAddr: "192.168.1.2:5555", header: xff, wantStatus: http.StatusTooManyRequests},
			},
		},
		{
			name:    "PerSession",
			max:     1,
			keyFunc: KeyBySession("session_id", "X-Session-ID"),
			requests: []limitedRequest{
				{remoteAddr: "10.0.0.1:1", header: session("a"), wantStatus: http.StatusOK},
				{remoteAddr: "10.0.0.1:1", header: session("b"), wantStatus: http.StatusOK},
				{remoteAddr: "10.0.0.9:1", header: session("a"), wantStatus: http.StatusTooManyRequests},
			},
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			handler := RateLimit(RateLimitConfig{Max: tt.max, Window: time.Minute, KeyFunc: tt.keyFunc})(okHandler())
			for i, lr := range tt.requests {
				req := httptest.NewRequest(http.MethodGet, "/api/cart/shop", nil)
				req.RemoteAddr = lr.remoteAddr
				for k, v := range lr.header {
					req.Header[k] = v
				}
				w := httptest.NewRecorder()
				handler.ServeHTTP(w, req)

				assert.Equal(t, lr.wantStatus, w.Code, "request %d", i+1)
				assert.Equal(t, strconv.Itoa(tt.max), w.Header().Get("X-RateLimit-Limit"))
				assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
			}
		})
	}
}

func TestRateLimit_Rejection(t *testing.T) {
	handler := RateLimit(RateLimitConfig{Max: 2, Window: time.Minute})(okHandler())
	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/checkout/shop", nil)
		req.RemoteAddr = "10.0.0.1:9999"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, "1", send().Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "0", send().Header().Get("X-RateLimit-Remaining"))

	w := send()
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "rate_limited", body["error"])
	assert.Equal(t, "rate limit exceeded", body["message"])
}

func TestKeyBySession(t *testing.T) {
	key := KeyBySession("session_id", "X-Session-ID")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	assert.Equal(t, "10.0.0.1", key(req))

	req.Header.Set("X-Session-ID", "hdr")
	assert.Equal(t, "session:hdr", key(req))

	req.AddCookie(&http.Cookie{Name: "session_id", Value: "cookie"})
	assert.Equal(t, "session:cookie", key(req))
}

func TestRateLimit_RouteBudgets(t *testing.T) {
	handler := RateLimit(RateLimitConfig{
		Max:    100,
		Window: time.Minute,
		Routes: []RouteLimit{
			{Method: http.MethodPost, Prefix: "/api/admin/", Suffix: "/login", Max: 1, Window: time.Minute},
		},
	})(okHandler())

	send := func(method, path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, nil)
		req.RemoteAddr = "10.1.1.1:1000"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w
	}

	w := send(http.MethodPost, "/api/admin/shop/login")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Limit"))

	assert.Equal(t, http.StatusTooManyRequests, send(http.MethodPost, "/api/admin/shop/login").Code)
	assert.Equal(t, http.StatusOK, send(http.MethodGet, "/api/admin/shop/orders").Code)
	assert.Equal(t, http.StatusOK, send(http.MethodGet, "/api/admin/shop/login").Code)
}

func TestBudget_SlidingWindow(t *testing.T) {
	b := newBudget(4, time.Minute)
	start := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	for i := range 4 {
		_, _, ok := b.take("k", start.Add(time.Duration(i)*time.Second))
		require.True(t, ok)
	}
	_, resetAt, ok := b.take("k", start.Add(30*time.Second))
	assert.False(t, ok)
	assert.Equal(t, start.Add(time.Minute), resetAt)

	// A quarter into the next window three quarters of the old count still
	// apply: 4*0.75 = 3, so one request fits.
	_, _, ok = b.take("k", start.Add(75*time.Second))
	assert.True(t, ok)
	_, _, ok = b.take("k", start.Add(75*time.Second))
	assert.False(t, ok)

	// Two idle windows reset the counter.
	remaining, _, ok := b.take("k", start.Add(5*time.Minute))
	assert.True(t, ok)
	assert.Equal(t, 3, remaining)

	b.evict(start.Add(10 * time.Minute))
	assert.Empty(t, b.counters)
}
