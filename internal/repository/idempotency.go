package repository

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const idempotencyPrefix = "edgewatch:idem:"

// RedisIdempotencyStore shares submitted-opportunity keys across shards.
// SET NX is the atomic claim: exactly one caller per key per TTL wins.
type RedisIdempotencyStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisIdempotencyStore(client *redis.Client, ttl time.Duration) *RedisIdempotencyStore {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisIdempotencyStore{client: client, ttl: ttl}
}

func (s *RedisIdempotencyStore) Acquire(ctx context.Context, key string) (bool, error) {
	return s.client.SetNX(ctx, idempotencyPrefix+key, 1, s.ttl).Result()
}
