package middleware

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisLimiterForTest(t *testing.T) (*miniredis.Miniredis, *RedisWindowLimiter) {
	t.Helper()

	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		server.Close()
	})
	return server, NewRedisWindowLimiter(client, "test")
}

func TestRedisWindowLimiterEnforcesLimit(t *testing.T) {
	_, limiter := newRedisLimiterForTest(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d, err := limiter.Allow(ctx, "1.2.3.4", 3, time.Hour)
		if err != nil {
			t.Fatalf("allow %d: %v", i, err)
		}
		if !d.Allowed {
			t.Fatalf("request %d should be allowed", i)
		}
	}
	d, err := limiter.Allow(ctx, "1.2.3.4", 3, time.Hour)
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if d.Allowed {
		t.Fatal("fourth request should be denied")
	}
	if d.RetryAfter <= 0 || d.ResetAt.Before(time.Now()) {
		t.Fatalf("denied decision must point at the window end, got %+v", d)
	}

	d, err = limiter.Allow(ctx, "5.6.7.8", 3, time.Hour)
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if !d.Allowed {
		t.Fatal("other client should not share the window")
	}
}

func TestRedisWindowLimiterKeysCarryTTL(t *testing.T) {
	server, limiter := newRedisLimiterForTest(t)

	if _, err := limiter.Allow(context.Background(), "1.2.3.4", 5, time.Minute); err != nil {
		t.Fatalf("allow: %v", err)
	}
	keys := server.Keys()
	if len(keys) != 1 {
		t.Fatalf("expected one window key, got %v", keys)
	}
	if server.TTL(keys[0]) <= 0 {
		t.Fatal("window key must expire on its own")
	}
}

func TestRedisWindowLimiterSurfacesBackendErrors(t *testing.T) {
	server, limiter := newRedisLimiterForTest(t)
	server.Close()

	if _, err := limiter.Allow(context.Background(), "1.2.3.4", 5, time.Minute); err == nil {
		t.Fatal("expected an error once the backend is gone")
	}
}
