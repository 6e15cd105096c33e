package store

import (
	"context"
	"errors"
	"strings"

	"github.com/redis/go-redis/v9"
)

var _ Store = &Redis{}

// Redis is a go-redis backed store for deployments running more than one
// proxy instance. Reads and writes are plain GET/SET, so concurrent instances
// can race on read-modify-write values; the guard accepts that for its
// window.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis constructs a Redis store. An empty prefix stores keys as-is.
func NewRedis(client *redis.Client, prefix string) *Redis {
	return &Redis{
		client: client,
		prefix: strings.TrimSpace(prefix),
	}
}

func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.client.Get(ctx, r.buildKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (r *Redis) Set(ctx context.Context, key, value string) error {
	return r.client.Set(ctx, r.buildKey(key), value, 0).Err()
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.buildKey(key)).Err()
}

func (r *Redis) buildKey(key string) string {
	if r.prefix == "" {
		return key
	}
	return r.prefix + ":" + key
}
