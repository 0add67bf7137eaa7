package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestMemoryLimiterRejectsOverLimit(t *testing.T) {
	lim := NewMemory(10)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		ok, err := lim.Allow(ctx, "1.2.3.4")
		if err != nil || !ok {
			t.Fatalf("request %d: ok=%v err=%v", i+1, ok, err)
		}
	}
	ok, err := lim.Allow(ctx, "1.2.3.4")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("11th request within the window must be rejected")
	}

	// A different identity has its own budget.
	if ok, _ := lim.Allow(ctx, "5.6.7.8"); !ok {
		t.Error("separate identity should be allowed")
	}
}

func TestMemoryLimiterWindowSlides(t *testing.T) {
	lim := NewMemory(2)
	current := time.Unix(1000, 0)
	lim.now = func() time.Time { return current }
	ctx := context.Background()

	lim.Allow(ctx, "a")
	lim.Allow(ctx, "a")
	if ok, _ := lim.Allow(ctx, "a"); ok {
		t.Fatal("third request must be rejected")
	}

	// Advance past the window; the budget refills.
	current = current.Add(Window + time.Second)
	if ok, _ := lim.Allow(ctx, "a"); !ok {
		t.Error("request after window must be allowed")
	}
}

func TestMemoryLimiterDisabled(t *testing.T) {
	lim := NewMemory(0)
	for i := 0; i < 100; i++ {
		if ok, _ := lim.Allow(context.Background(), "x"); !ok {
			t.Fatal("limit 0 disables limiting")
		}
	}
}

func TestMemoryLimiterSweep(t *testing.T) {
	lim := NewMemory(5)
	current := time.Unix(1000, 0)
	lim.now = func() time.Time { return current }

	lim.Allow(context.Background(), "stale")
	current = current.Add(2 * Window)
	lim.Allow(context.Background(), "fresh")

	lim.Sweep()

	lim.mu.Lock()
	defer lim.mu.Unlock()
	if _, ok := lim.seen["stale"]; ok {
		t.Error("stale identity should be swept")
	}
	if _, ok := lim.seen["fresh"]; !ok {
		t.Error("fresh identity should survive the sweep")
	}
}

func TestRedisLimiter(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { client.Close() })

	lim := NewRedis(client, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := lim.Allow(ctx, "team-a")
		if err != nil || !ok {
			t.Fatalf("request %d: ok=%v err=%v", i+1, ok, err)
		}
	}
	if ok, _ := lim.Allow(ctx, "team-a"); ok {
		t.Error("4th request must be rejected")
	}
	if ok, _ := lim.Allow(ctx, "team-b"); !ok {
		t.Error("separate identity should be allowed")
	}
}

func TestRedisLimiterWindowSlides(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { client.Close() })

	lim := NewRedis(client, 1)
	current := time.Unix(2000, 0)
	lim.now = func() time.Time { return current }
	ctx := context.Background()

	if ok, _ := lim.Allow(ctx, "a"); !ok {
		t.Fatal("first request must pass")
	}
	if ok, _ := lim.Allow(ctx, "a"); ok {
		t.Fatal("second request inside window must be rejected")
	}

	current = current.Add(Window + time.Second)
	if ok, err := lim.Allow(ctx, "a"); err != nil || !ok {
		t.Errorf("request after window: ok=%v err=%v", ok, err)
	}
}
