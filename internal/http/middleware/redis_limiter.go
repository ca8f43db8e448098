package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisWindowLimiter is a fixed-window limiter shared across replicas.
// INCR and EXPIRE run in one pipeline so the window key always carries
// a TTL even if the process dies between the two.
type RedisWindowLimiter struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisWindowLimiter(client redis.UniversalClient, prefix string) *RedisWindowLimiter {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &RedisWindowLimiter{client: client, prefix: prefix}
}

func (l *RedisWindowLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (Decision, error) {
	now := time.Now()
	bucket := now.UnixNano() / int64(window)
	redisKey := fmt.Sprintf("%s:%s:%d", l.prefix, key, bucket)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, window+time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{}, err
	}

	count := int(incr.Val())
	resetAt := time.Unix(0, (bucket+1)*int64(window))
	if count > limit {
		return Decision{
			Allowed:    false,
			Remaining:  0,
			RetryAfter: resetAt.Sub(now),
			ResetAt:    resetAt,
		}, nil
	}
	return Decision{
		Allowed:   true,
		Remaining: limit - count,
		ResetAt:   resetAt,
	}, nil
}
