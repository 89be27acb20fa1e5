package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gomodule/redigo/redis"
)

const defaultRedisPrefix = "playerid"

// RedisStoreConfig holds configuration for RedisStore.
type RedisStoreConfig struct {
	// URL is the Redis URL (e.g., "redis://localhost:6379/0").
	URL string `json:"url" env:"URL"`

	// Prefix namespaces all keys as "<prefix>:<key>". Default: "playerid".
	Prefix string `json:"prefix,omitempty" env:"PREFIX"`
}

// RedisStore keeps keys in Redis.
type RedisStore struct {
	pool   *redis.Pool
	prefix string
}

// NewRedisStore creates a RedisStore backed by a connection pool.
// Connections are dialed lazily.
func NewRedisStore(cfg RedisStoreConfig) (*RedisStore, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("redis store: url is required")
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = defaultRedisPrefix
	}

	pool := &redis.Pool{
		MaxIdle:     4,
		IdleTimeout: 5 * time.Minute,
		DialContext: func(ctx context.Context) (redis.Conn, error) {
			return redis.DialURLContext(ctx, cfg.URL)
		},
	}
	return &RedisStore{pool: pool, prefix: prefix}, nil
}

// Close closes the connection pool.
func (s *RedisStore) Close() error {
	return s.pool.Close()
}

func (s *RedisStore) prefixedKey(key string) string {
	return fmt.Sprintf("%s:%s", s.prefix, key)
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return "", fmt.Errorf("redis connection: %w", err)
	}
	defer conn.Close()

	v, err := redis.String(redis.DoContext(conn, ctx, "GET", s.prefixedKey(key)))
	if err != nil {
		if errors.Is(err, redis.ErrNil) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("get %s: %w", key, err)
	}
	return v, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return fmt.Errorf("redis connection: %w", err)
	}
	defer conn.Close()

	res, err := redis.String(redis.DoContext(conn, ctx, "SET", s.prefixedKey(key), value))
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	if res != "OK" {
		return fmt.Errorf("set %s: unexpected reply %q", key, res)
	}
	return nil
}

func (s *RedisStore) Remove(ctx context.Context, key string) error {
	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return fmt.Errorf("redis connection: %w", err)
	}
	defer conn.Close()

	if _, err := redis.DoContext(conn, ctx, "DEL", s.prefixedKey(key)); err != nil {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}
