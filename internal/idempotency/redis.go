package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "event:processed:"

// RedisLedger stores processed event IDs in Redis so deduplication survives
// restarts and is shared across instances. Claims expire after ttl; a ttl of
// zero keeps them forever.
type RedisLedger struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisLedger(client *redis.Client, ttl time.Duration) *RedisLedger {
	return &RedisLedger{client: client, ttl: ttl}
}

func (r *RedisLedger) Processed(ctx context.Context, id string) (bool, error) {
	n, err := r.client.Exists(ctx, buildKey(id)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

func (r *RedisLedger) Claim(ctx context.Context, id string) (bool, error) {
	ok, err := r.client.SetNX(ctx, buildKey(id), "1", r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}

func (r *RedisLedger) Forget(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, buildKey(id)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func buildKey(id string) string {
	return keyPrefix + id
}
