package redis

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"

	"boincwatch/pkg/config"
)

// RedisClient Redis client wrapper. Redis is optional for this
// collector; it only backs the distributed job locks shared by
// replicas. When no address is configured the collector runs in
// single-instance mode without locks.
type RedisClient struct {
	client *redis.Client
}

// NewRedisClient creates Redis client. Returns (nil, nil) when Redis
// is not configured.
func NewRedisClient(cfg *config.Config) (*RedisClient, error) {
	if cfg.Redis.Addr == "" {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// Test connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisClient{client: client}, nil
}

// GetClient retrieves the underlying Redis client
func (r *RedisClient) GetClient() *redis.Client {
	return r.client
}

// Close closes the Redis connection
func (r *RedisClient) Close() error {
	return r.client.Close()
}
