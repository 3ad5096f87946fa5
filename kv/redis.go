package kv

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "mqdeck:session:"

// RedisBackend stores session keys in Redis under a fixed namespace.
type RedisBackend struct {
	client *redis.Client
}

// NewRedisBackend builds a backend for the given Redis address. The
// connection is not verified here; the Store's construction probe decides
// whether persistence is usable.
func NewRedisBackend(addr, password string, db int) *RedisBackend {
	return &RedisBackend{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
	}
}

func (b *RedisBackend) Set(ctx context.Context, key, value string) error {
	return b.client.Set(ctx, keyPrefix+key, value, 0).Err()
}

func (b *RedisBackend) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := b.client.Get(ctx, keyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (b *RedisBackend) Del(ctx context.Context, key string) error {
	return b.client.Del(ctx, keyPrefix+key).Err()
}

// Clear removes every key in the namespace using SCAN, mirroring how the
// rest of the codebase avoids KEYS on shared Redis instances.
func (b *RedisBackend) Clear(ctx context.Context) error {
	iter := b.client.Scan(ctx, 0, keyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := b.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}
