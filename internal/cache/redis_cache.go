package cache

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
)

type RedisIdempotencyStore struct {
	client *redis.Client
}

func NewRedisIdempotencyStore(addr string, password string, db int) *RedisIdempotencyStore {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisIdempotencyStore{client: client}
}

func (c *RedisIdempotencyStore) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisIdempotencyStore) Close() error {
	return c.client.Close()
}

func (c *RedisIdempotencyStore) Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return c.client.SetNX(ctx, keyPrefix+key, pendingMarker, ttl).Result()
}

func (c *RedisIdempotencyStore) Lookup(ctx context.Context, key string) (Entry, bool, error) {
	val, err := c.client.Get(ctx, keyPrefix+key).Result()
	if err == redis.Nil {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	return decodeEntry(val), true, nil
}

func (c *RedisIdempotencyStore) Complete(ctx context.Context, key string, saleID string, ttl time.Duration) error {
	return c.client.Set(ctx, keyPrefix+key, salePrefix+saleID, ttl).Err()
}

func (c *RedisIdempotencyStore) Release(ctx context.Context, key string) error {
	return c.client.Del(ctx, keyPrefix+key).Err()
}
