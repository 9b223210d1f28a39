package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisTracker shares failure counts across instances. Counting uses the
// INCR-then-EXPIRE pattern of the rate-limit middleware; blocks are a
// separate key with the block TTL. Errors fail open: a dead cache must not
// take authentication down with it.
type RedisTracker struct {
	client    *redis.Client
	window    time.Duration
	blockFor  time.Duration
	threshold int
	log       *zap.Logger
}

func NewRedisTracker(client *redis.Client, window, blockFor time.Duration, threshold int, log *zap.Logger) *RedisTracker {
	return &RedisTracker{
		client:    client,
		window:    window,
		blockFor:  blockFor,
		threshold: threshold,
		log:       log,
	}
}

func (t *RedisTracker) failKey(ip string) string  { return fmt.Sprintf("authfail:%s", ip) }
func (t *RedisTracker) blockKey(ip string) string { return fmt.Sprintf("authblock:%s", ip) }

func (t *RedisTracker) Record(ctx context.Context, ip string) (int, error) {
	count, err := t.client.Incr(ctx, t.failKey(ip)).Result()
	if err != nil {
		t.log.Warn("ip tracker record failed", zap.Error(err))
		return 0, err
	}
	if count == 1 {
		t.client.Expire(ctx, t.failKey(ip), t.window)
	}
	if count >= int64(t.threshold) {
		t.client.Set(ctx, t.blockKey(ip), "1", t.blockFor)
	}
	return int(count), nil
}

func (t *RedisTracker) IsBlocked(ctx context.Context, ip string) (bool, error) {
	n, err := t.client.Exists(ctx, t.blockKey(ip)).Result()
	if err != nil {
		t.log.Warn("ip tracker block check failed", zap.Error(err))
		return false, err
	}
	return n > 0, nil
}

func (t *RedisTracker) Clear(ctx context.Context, ip string) error {
	return t.client.Del(ctx, t.failKey(ip), t.blockKey(ip)).Err()
}

// Sweep is a no-op: redis key TTLs expire entries on their own.
func (t *RedisTracker) Sweep(context.Context) {}
