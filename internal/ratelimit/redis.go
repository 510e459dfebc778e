package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "rl:spray:"

// RedisLimiter keeps the sliding window in a Redis sorted set so the limit
// holds across instances. Scores and members are nanosecond timestamps.
type RedisLimiter struct {
	cache  *redis.Client
	max    int
	window time.Duration
	now    func() time.Time
}

// NewRedisLimiter builds a Redis-backed sliding-window limiter.
func NewRedisLimiter(cache *redis.Client, max int, window time.Duration) *RedisLimiter {
	if max <= 0 {
		max = 5
	}
	if window <= 0 {
		window = time.Second
	}
	return &RedisLimiter{cache: cache, max: max, window: window, now: time.Now}
}

// Allow trims entries older than the window, counts the remainder and admits
// if the actor is under the limit. Fails open on cache errors: the limiter is
// advisory and a Redis outage must not block transfers.
func (l *RedisLimiter) Allow(ctx context.Context, actorID string) (bool, error) {
	key := redisKeyPrefix + actorID
	now := l.now()
	cutoff := strconv.FormatInt(now.Add(-l.window).UnixNano(), 10)

	if err := l.cache.ZRemRangeByScore(ctx, key, "0", cutoff).Err(); err != nil {
		return true, fmt.Errorf("trim rate window: %w", err)
	}

	count, err := l.cache.ZCard(ctx, key).Result()
	if err != nil {
		return true, fmt.Errorf("count rate window: %w", err)
	}
	if count >= int64(l.max) {
		return false, nil
	}

	member := strconv.FormatInt(now.UnixNano(), 10)
	pipe := l.cache.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixNano()), Member: member})
	pipe.Expire(ctx, key, 2*l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return true, fmt.Errorf("record admission: %w", err)
	}

	return true, nil
}
