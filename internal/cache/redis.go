// Package cache provides a Redis read-through cache for rendered entity
// payloads. Moderation actions invalidate entries through the hook
// interface; cache misses are served from Postgres and written back.
package cache

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"mango/internal/moderation"
)

const defaultTTL = 10 * time.Minute

// Redis is the cache backend.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedis connects to Redis and verifies the connection.
func NewRedis(redisURL string) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisWithClient(client), nil
}

// NewRedisWithClient wraps an existing Redis client.
func NewRedisWithClient(client *redis.Client) *Redis {
	return &Redis{
		client: client,
		prefix: "entity:",
		ttl:    defaultTTL,
	}
}

func (c *Redis) key(kind string, id int64) string {
	return fmt.Sprintf("%s%s:%d", c.prefix, kind, id)
}

// GetEntity returns the cached payload for one entity, if present.
func (c *Redis) GetEntity(ctx context.Context, kind string, id int64) ([]byte, bool, error) {
	payload, err := c.client.Get(ctx, c.key(kind, id)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get %s %d: %w", kind, id, err)
	}
	return payload, true, nil
}

// SetEntity stores the payload for one entity with the cache TTL.
func (c *Redis) SetEntity(ctx context.Context, kind string, id int64, payload []byte) error {
	if err := c.client.Set(ctx, c.key(kind, id), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set %s %d: %w", kind, id, err)
	}
	return nil
}

// Invalidate drops the cached payload for one entity.
func (c *Redis) Invalidate(ctx context.Context, kind string, id int64) error {
	if err := c.client.Del(ctx, c.key(kind, id)).Err(); err != nil {
		return fmt.Errorf("cache invalidate %s %d: %w", kind, id, err)
	}
	return nil
}

// EntityChanged implements the moderation hook: any live change drops
// the cached entry. Errors are logged, never surfaced; the cache must
// not fail a moderation action.
func (c *Redis) EntityChanged(ctx context.Context, ev moderation.Event) {
	if err := c.Invalidate(ctx, ev.Kind, ev.ID); err != nil {
		log.Printf("cache: invalidate %s %d: %v", ev.Kind, ev.ID, err)
	}
}

// Close closes the Redis connection.
func (c *Redis) Close() error {
	return c.client.Close()
}

// Ping checks if Redis is reachable.
func (c *Redis) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
