package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type statusResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func ok(context.Context) error { return nil }

func failing(msg string) CheckFunc {
	return func(context.Context) error { return errors.New(msg) }
}

// runN drives a check as the ticker would.
func runN(c *check, n int) {
	for range n {
		c.run(context.Background())
	}
}

func callEndpoint(t *testing.T, endpoint http.HandlerFunc) (int, statusResponse) {
	t.Helper()
	w := httptest.NewRecorder()
	endpoint(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body statusResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return w.Code, body
}

func TestReadyEndpoint(t *testing.T) {
	for _, tt := range []struct {
		name       string
		ready      bool
		postgres   CheckFunc
		redis      CheckFunc
		redisRuns  int
		wantStatus int
		wantChecks []string
	}{
		{name: "ReadyAndPassing", ready: true, postgres: ok, redis: ok, wantStatus: http.StatusOK},
		{name: "NotMarkedReady", postgres: ok, redis: ok, wantStatus: http.StatusServiceUnavailable, wantChecks: []string{"_readiness"}},
		{
			name: "RedisBelowThreshold", ready: true, postgres: ok,
			redis: failing("dial tcp: refused"), redisRuns: 2,
			wantStatus: http.StatusOK,
		},
		{
			name: "RedisDown", ready: true, postgres: ok,
			redis: failing("dial tcp: refused"), redisRuns: 3,
			wantStatus: http.StatusServiceUnavailable, wantChecks: []string{"redis"},
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			h := New()
			h.AddReadinessCheck("postgres", time.Second, tt.postgres)
			h.AddReadinessCheck("redis", time.Second, tt.redis)
			h.SetReady(tt.ready)
			runN(h.readinessChecks[1], tt.redisRuns)

			code, body := callEndpoint(t, h.ReadyEndpoint)
			assert.Equal(t, tt.wantStatus, code)
			if len(tt.wantChecks) == 0 {
				assert.Equal(t, "ok", body.Status)
				assert.Empty(t, body.Checks)
				return
			}
			assert.Equal(t, "unhealthy", body.Status)
			for _, name := range tt.wantChecks {
				assert.Contains(t, body.Checks, name)
			}
			assert.NotContains(t, body.Checks, "postgres")
		})
	}
}

func TestLiveEndpoint(t *testing.T) {
	h := New()
	code, body := callEndpoint(t, h.LiveEndpoint)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body.Status)

	h.AddLivenessCheck("goroutines", time.Second, failing("goroutine count 20001 exceeds threshold 10000"))
	runN(h.livenessChecks[0], 3)

	code, body = callEndpoint(t, h.LiveEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "goroutine count 20001 exceeds threshold 10000", body.Checks["goroutines"])
}

func TestIsReady(t *testing.T) {
	h := New()
	h.AddReadinessCheck("postgres", time.Second, failing("down"), Thresholds(1, 1))
	assert.False(t, h.IsReady())

	h.SetReady(true)
	assert.True(t, h.IsReady())

	runN(h.readinessChecks[0], 1)
	assert.False(t, h.IsReady())

	h.SetReady(false)
	h.readinessChecks[0].fn = ok
	runN(h.readinessChecks[0], 1)
	assert.False(t, h.IsReady(), "shutdown keeps the flag down")
}

func TestCheckRecovery(t *testing.T) {
	h := New()
	h.AddReadinessCheck("postgres", time.Second, failing("down"), Thresholds(1, 2))
	c := h.readinessChecks[0]

	assert.Nil(t, c.getLastError())
	runN(c, 1)
	assert.False(t, c.isHealthy())
	assert.EqualError(t, c.getLastError(), "down")

	c.fn = ok
	runN(c, 1)
	assert.False(t, c.isHealthy(), "one pass is below the success threshold")
	runN(c, 1)
	assert.True(t, c.isHealthy())
	assert.NoError(t, c.getLastError())
}

func TestStartAndStop(t *testing.T) {
	var (
		mu    sync.Mutex
		calls int
	)
	h := New()
	h.AddLivenessCheck("counter", time.Second, func(context.Context) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return nil
	})
	h.AddReadinessCheck("postgres", time.Second, ok)
	h.SetReady(true)

	h.Start(context.Background(), 5*time.Millisecond)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls >= 2
	}, time.Second, 5*time.Millisecond)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				h.IsReady()
				h.LiveEndpoint(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/livez", nil))
				h.ReadyEndpoint(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/readyz", nil))
			}
		}()
	}
	wg.Wait()

	h.Stop()
	h.Stop()
}

type fakeConn struct{ closed bool }

func (f *fakeConn) IsClosed() bool { return f.closed }

func TestDependencyChecks(t *testing.T) {
	ctx := context.Background()

	assert.NoError(t, GoroutineCountCheck(100000)(ctx))
	assert.ErrorContains(t, GoroutineCountCheck(0)(ctx), "exceeds threshold")

	assert.NoError(t, PingCheck(ok)(ctx))
	assert.EqualError(t, PingCheck(failing("refused"))(ctx), "ping: refused")

	conn := &fakeConn{}
	assert.NoError(t, ConnectionCheck(conn)(ctx))
	conn.closed = true
	assert.Error(t, ConnectionCheck(conn)(ctx))

	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond, MaxRetries: -1})
	defer func() { _ = rdb.Close() }()
	assert.ErrorContains(t, RedisCheck(rdb)(ctx), "redis ping")
}
