package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter implements the sliding window on a Redis sorted set per
// identity, so every instance of the service draws from the same budget.
type RedisLimiter struct {
	client *redis.Client
	limit  int
	now    func() time.Time
}

// NewRedis creates a RedisLimiter allowing limit requests per window.
func NewRedis(client *redis.Client, limit int) *RedisLimiter {
	return &RedisLimiter{client: client, limit: limit, now: time.Now}
}

func limiterKey(identity string) string { return "lintagent:ratelimit:" + identity }

func (r *RedisLimiter) Allow(ctx context.Context, identity string) (bool, error) {
	if r.limit <= 0 {
		return true, nil
	}
	key := limiterKey(identity)
	now := r.now()
	cutoff := now.Add(-Window)

	// Trim, count, record and refresh the key TTL in one round trip.
	pipe := r.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(cutoff.UnixNano(), 10))
	countCmd := pipe.ZCard(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("rate limit check for %s: %w", identity, err)
	}

	if int(countCmd.Val()) >= r.limit {
		return false, nil
	}

	record := r.client.TxPipeline()
	record.ZAdd(ctx, key, redis.Z{
		Score:  float64(now.UnixNano()),
		Member: strconv.FormatInt(now.UnixNano(), 10),
	})
	record.Expire(ctx, key, 2*Window)
	if _, err := record.Exec(ctx); err != nil {
		return false, fmt.Errorf("rate limit record for %s: %w", identity, err)
	}
	return true, nil
}
