package storage

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisTimeout bounds each Redis round trip.
const DefaultRedisTimeout = 5 * time.Second

// Redis is a Storage backed by a Redis server, for deployments where several
// processes share one remembered session.
type Redis struct {
	c       redis.UniversalClient
	prefix  string
	timeout time.Duration
}

// NewRedis returns a Redis store that namespaces every key with prefix.
func NewRedis(c redis.UniversalClient, prefix string) *Redis {
	return &Redis{c: c, prefix: prefix, timeout: DefaultRedisTimeout}
}

func (r *Redis) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), r.timeout)
}

func (r *Redis) Get(key string) (string, error) {
	ctx, cancel := r.ctx()
	defer cancel()
	v, err := r.c.Get(ctx, r.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	return v, err
}

func (r *Redis) Set(key, value string) error {
	ctx, cancel := r.ctx()
	defer cancel()
	return r.c.Set(ctx, r.prefix+key, value, 0).Err()
}

func (r *Redis) Remove(key string) error {
	ctx, cancel := r.ctx()
	defer cancel()
	return r.c.Del(ctx, r.prefix+key).Err()
}

var _ Storage = (*Redis)(nil)
