package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig configures the sliding window rate limiter.
type RateLimitConfig struct {
	// Max requests per Window for requests no route limit matches.
	Max    int
	Window time.Duration
	// KeyFunc identifies the caller; the client IP when nil.
	KeyFunc func(*http.Request) string
	// Routes tighten the limit for sensitive endpoints. The first match
	// wins and each route counts separately from the default budget.
	Routes []RouteLimit
}

// RouteLimit applies its own budget to requests whose path starts with
// Prefix and, when set, ends with Suffix and uses Method.
type RouteLimit struct {
	Method string
	Prefix string
	Suffix string
	Max    int
	Window time.Duration
}

func (l RouteLimit) matches(r *http.Request) bool {
	if l.Method != "" && r.Method != l.Method {
		return false
	}
	return strings.HasPrefix(r.URL.Path, l.Prefix) && strings.HasSuffix(r.URL.Path, l.Suffix)
}

// counter approximates a sliding window from two consecutive fixed windows:
// the previous window's count is weighted by how much of it the sliding
// window still covers.
type counter struct {
	start      time.Time
	prev, curr float64
}

// budget is one limit with its per-key counters.
type budget struct {
	max    int
	window time.Duration

	mu       sync.Mutex
	counters map[string]*counter
}

func newBudget(limit int, window time.Duration) *budget {
	return &budget{max: limit, window: window, counters: make(map[string]*counter)}
}

// take consumes one request for key if the budget allows it.
func (b *budget) take(key string, now time.Time) (remaining int, resetAt time.Time, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, found := b.counters[key]
	if !found {
		c = &counter{start: now}
		b.counters[key] = c
	} else if elapsed := now.Sub(c.start); elapsed >= b.window {
		if elapsed < 2*b.window {
			c.prev = c.curr
			c.start = c.start.Add(b.window)
		} else {
			c.prev = 0
			c.start = now
		}
		c.curr = 0
	}

	covered := 1 - float64(now.Sub(c.start))/float64(b.window)
	used := c.prev*covered + c.curr
	resetAt = c.start.Add(b.window)
	if used >= float64(b.max) {
		return 0, resetAt, false
	}
	c.curr++
	return max(b.max-int(math.Ceil(used+1)), 0), resetAt, true
}

// evict drops counters that no longer influence any decision.
func (b *budget) evict(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for key, c := range b.counters {
		if now.Sub(c.start) >= 2*b.window {
			delete(b.counters, key)
		}
	}
}

type limiter struct {
	keyFunc  func(*http.Request) string
	fallback *budget
	routes   []RouteLimit
	budgets  []*budget
}

func newLimiter(cfg RateLimitConfig) *limiter {
	l := &limiter{
		keyFunc:  cfg.KeyFunc,
		fallback: newBudget(cfg.Max, cfg.Window),
		routes:   cfg.Routes,
	}
	if l.keyFunc == nil {
		l.keyFunc = clientIP
	}
	for _, rt := range cfg.Routes {
		l.budgets = append(l.budgets, newBudget(rt.Max, rt.Window))
	}
	return l
}

func (l *limiter) budgetFor(r *http.Request) *budget {
	for i, rt := range l.routes {
		if rt.matches(r) {
			return l.budgets[i]
		}
	}
	return l.fallback
}

func (l *limiter) evictLoop(ctx context.Context) {
	interval := l.fallback.window
	for _, b := range l.budgets {
		interval = min(interval, b.window)
	}
	ticker := time.NewTicker(2 * interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			l.fallback.evict(now)
			for _, b := range l.budgets {
				b.evict(now)
			}
		}
	}
}

// RateLimit rejects callers over budget with 429 and a rate_limited failure
// envelope. Every response carries the X-RateLimit-* headers of the budget
// that applied. Counters are never evicted; servers should use
// RateLimitWithCleanup.
func RateLimit(cfg RateLimitConfig) Middleware {
	return newLimiter(cfg).middleware
}

// RateLimitWithCleanup is RateLimit plus a goroutine, stopped by ctx, that
// evicts idle counters.
func RateLimitWithCleanup(ctx context.Context, cfg RateLimitConfig) Middleware {
	l := newLimiter(cfg)
	go l.evictLoop(ctx)
	return l.middleware
}

func (l *limiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b := l.budgetFor(r)
		now := time.Now()
		remaining, resetAt, ok := b.take(l.keyFunc(r), now)

		h := w.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(b.max))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

		if !ok {
			wait := max(resetAt.Sub(now), 0)
			h.Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			WriteError(w, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// KeyBySession returns a KeyFunc that limits per guest session, read from
// the cookie first and then the header. Requests without a session fall back
// to the client IP.
func KeyBySession(cookie, header string) func(*http.Request) string {
	return func(r *http.Request) string {
		if c, err := r.Cookie(cookie); err == nil && c.Value != "" {
			return "session:" + c.Value
		}
		if v := r.Header.Get(header); v != "" {
			return "session:" + v
		}
		return clientIP(r)
	}
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the
// connection address.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
