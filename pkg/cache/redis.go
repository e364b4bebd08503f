package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces cache keys in a shared Redis database.
const DefaultKeyPrefix = "osmtally:"

// Redis is a cache backed by a Redis server, shared between processes.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedis wraps an existing client. An empty prefix uses DefaultKeyPrefix.
func NewRedis(client *redis.Client, prefix string, ttl time.Duration, logger *slog.Logger) *Redis {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Redis{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		logger: logger.With("component", "redis_cache"),
	}
}

// OpenRedis creates a client for addr. It returns nil when addr is empty.
func OpenRedis(addr, pass string, db int) *redis.Client {
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{Addr: addr, Password: pass, DB: db})
}

// Get reads a key; connection errors are logged and reported as misses.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	v, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.Warn("redis get failed", "key", key, "error", err)
		}
		return nil, false
	}
	return v, true
}

// Set writes a key with the configured TTL.
func (r *Redis) Set(ctx context.Context, key string, value []byte) {
	if err := r.client.Set(ctx, r.prefix+key, value, r.ttl).Err(); err != nil {
		r.logger.Warn("redis set failed", "key", key, "error", err)
	}
}
