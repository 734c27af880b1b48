package middleware

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter decides whether key may make another request in the current window.
type Limiter interface {
	Allow(ctx context.Context, key string) (allowed bool, remaining int, reset time.Time, err error)
	Limit() int
}

// MemoryLimiter is a per-process sliding window. It is used when no Redis is
// configured and in tests.
type MemoryLimiter struct {
	requests int
	window   time.Duration
	clients  map[string]*clientWindow
	mu       sync.Mutex
	now      func() time.Time
}

type clientWindow struct {
	timestamps []time.Time
}

func NewMemoryLimiter(requests int, window time.Duration) *MemoryLimiter {
	requests, window = limiterDefaults(requests, window)
	return &MemoryLimiter{
		requests: requests,
		window:   window,
		clients:  make(map[string]*clientWindow),
		now:      time.Now,
	}
}

func limiterDefaults(requests int, window time.Duration) (int, time.Duration) {
	if requests <= 0 {
		requests = 100
	}
	if window <= 0 {
		window = time.Minute
	}
	return requests, window
}

func (l *MemoryLimiter) Limit() int { return l.requests }

func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, int, time.Time, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	windowStart := now.Add(-l.window)

	client, ok := l.clients[key]
	if !ok {
		client = &clientWindow{timestamps: make([]time.Time, 0, l.requests)}
		l.clients[key] = client
	}

	i := 0
	for i < len(client.timestamps) && !client.timestamps[i].After(windowStart) {
		i++
	}
	client.timestamps = client.timestamps[i:]

	if len(client.timestamps) >= l.requests {
		return false, 0, client.timestamps[0].Add(l.window), nil
	}

	client.timestamps = append(client.timestamps, now)
	l.prune(windowStart)
	return true, l.requests - len(client.timestamps), now.Add(l.window), nil
}

// prune drops idle clients; called with l.mu held.
func (l *MemoryLimiter) prune(windowStart time.Time) {
	if len(l.clients) < 1024 {
		return
	}
	for key, c := range l.clients {
		if len(c.timestamps) == 0 || !c.timestamps[len(c.timestamps)-1].After(windowStart) {
			delete(l.clients, key)
		}
	}
}

// RedisLimiter is a fixed window shared by every API instance.
type RedisLimiter struct {
	client   *redis.Client
	requests int
	window   time.Duration
	prefix   string
}

func NewRedisLimiter(client *redis.Client, requests int, window time.Duration) *RedisLimiter {
	requests, window = limiterDefaults(requests, window)
	return &RedisLimiter{client: client, requests: requests, window: window, prefix: "roombook:ratelimit:"}
}

func (l *RedisLimiter) Limit() int { return l.requests }

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, int, time.Time, error) {
	now := time.Now()
	bucket := now.Truncate(l.window)
	reset := bucket.Add(l.window)
	redisKey := l.prefix + key + ":" + strconv.FormatInt(bucket.Unix(), 10)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.ExpireAt(ctx, redisKey, reset.Add(time.Second))
	if _, err := pipe.Exec(ctx); err != nil {
		return true, l.requests, reset, err
	}

	count := int(incr.Val())
	remaining := l.requests - count
	if remaining < 0 {
		remaining = 0
	}
	return count <= l.requests, remaining, reset, nil
}

// RateLimit keys by authenticated user when Auth has run, otherwise by client
// IP. A limiter error lets the request through.
func RateLimit(limiter Limiter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := "ip:" + clientIP(r)
			if p := GetPrincipal(r.Context()); p.Authenticated() {
				key = "user:" + p.UserID.String()
			}

			allowed, remaining, reset, err := limiter.Allow(r.Context(), key)
			if err != nil {
				logger.Warn("rate limiter unavailable", "error", err)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limiter.Limit()))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))

			if !allowed {
				w.Header().Set("Retry-After", strconv.FormatInt(int64(time.Until(reset).Seconds())+1, 10))
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the
// socket address.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
