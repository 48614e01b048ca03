package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fleethire/internal/config"

	"github.com/redis/go-redis/v9"
)

const cooldownKeyFormat = "assignment_cooldown:%d"

// RedisCooldownStore keeps the last assignment time per booking so that every API replica sees the same cooldown.
type RedisCooldownStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient builds a Redis client from the config.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	options := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}

	return redis.NewClient(options)
}

// NewRedisCooldownStore stores markers with the given ttl; it must outlive the configured cooldown.
func NewRedisCooldownStore(client *redis.Client, ttl time.Duration) *RedisCooldownStore {
	return &RedisCooldownStore{
		client: client,
		ttl:    ttl,
	}
}

func (r *RedisCooldownStore) GetLastAssignment(ctx context.Context, bookingID int64) (time.Time, bool, error) {
	if r.client == nil {
		return time.Time{}, false, fmt.Errorf("redis client is nil")
	}
	val, err := r.client.Get(ctx, fmt.Sprintf(cooldownKeyFormat, bookingID)).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to get cooldown from redis: %w", err)
	}

	at, err := time.Parse(time.RFC3339Nano, val)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to parse cooldown marker %q: %w", val, err)
	}
	return at, true, nil
}

func (r *RedisCooldownStore) SetLastAssignment(ctx context.Context, bookingID int64, at time.Time) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	key := fmt.Sprintf(cooldownKeyFormat, bookingID)
	if err := r.client.Set(ctx, key, at.UTC().Format(time.RFC3339Nano), r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set cooldown in redis: %w", err)
	}
	return nil
}

// Ping checks the Redis connection.
func Ping(ctx context.Context, client *redis.Client) error {
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
