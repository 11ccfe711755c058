package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"www.github.com/Wanderer0074348/AdaptiveLM/src/config"
)

const remoteKeyPrefix = "adaptivelm:cache:"

// RedisStore implements the KeyValueStore capability over Redis, used as
// the distributed exact-match tier shared across replicas.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(cfg *config.RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// Get returns the stored bytes, or (nil, nil) on miss.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.client.Get(ctx, remoteKeyPrefix+key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.client.Set(ctx, remoteKeyPrefix+key, value, ttl).Err()
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, remoteKeyPrefix+key).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// GetClient returns the underlying Redis client for direct access
func (s *RedisStore) GetClient() *redis.Client {
	return s.client
}
