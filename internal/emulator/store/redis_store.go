package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore persists the flash record in Redis under a single key,
// selected on cmd/pmu-emulator by --flash-redis-addr, demonstrating the
// "persistence medium is an external collaborator" seam spec.md §6.3
// describes without coupling the config codec to any storage engine.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore returns a Store backed by key on the Redis server at addr.
// The client connects lazily, on the first command.
func NewRedisStore(addr, key string) *RedisStore {
	if key == "" {
		key = "pmu30:flash_config"
	}
	return &RedisStore{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		key:    key,
	}
}

func (s *RedisStore) Load(ctx context.Context) ([]byte, error) {
	raw, err := s.client.Get(ctx, s.key).Bytes()
	if err == redis.Nil {
		return nil, metricsWrap(ErrNotFound)
	}
	if err != nil {
		return nil, metricsWrap(fmt.Errorf("store: redis get: %w", err))
	}
	cfg, err := decode(raw)
	if err != nil {
		return nil, metricsWrap(err)
	}
	return cfg, nil
}

func (s *RedisStore) Save(ctx context.Context, configBytes []byte) error {
	if err := s.client.Set(ctx, s.key, encode(configBytes), 0).Err(); err != nil {
		return metricsWrap(fmt.Errorf("store: redis set: %w", err))
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return metricsWrap(fmt.Errorf("store: redis del: %w", err))
	}
	return nil
}

// Close releases the underlying Redis connection pool.
func (s *RedisStore) Close() error { return s.client.Close() }
