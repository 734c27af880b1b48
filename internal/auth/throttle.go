package auth

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisThrottle admits one request per key per window.
type RedisThrottle struct {
	client *redis.Client
	window time.Duration
	prefix string
}

func NewRedisThrottle(client *redis.Client, window time.Duration) *RedisThrottle {
	return &RedisThrottle{client: client, window: window, prefix: "roombook:throttle:"}
}

func (t *RedisThrottle) Allow(ctx context.Context, key string) (bool, error) {
	return t.client.SetNX(ctx, t.prefix+key, 1, t.window).Result()
}
