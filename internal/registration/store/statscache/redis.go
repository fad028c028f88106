package statscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"feria/internal/registration/models"
)

const defaultKey = "feria:stats:summary"

// RedisCache stores the last computed registration summary with a TTL, next to
// a generation counter that every Invalidate increments.
type RedisCache struct {
	client        *redis.Client
	key           string
	generationKey string
	ttl           time.Duration
}

// RedisCacheOption configures a RedisCache instance.
type RedisCacheOption func(*RedisCache)

// WithKey overrides the cache key. The generation counter lives next to it.
func WithKey(key string) RedisCacheOption {
	return func(c *RedisCache) {
		if key != "" {
			c.key = key
		}
	}
}

// NewRedis constructs a Redis-backed summary cache.
func NewRedis(client *redis.Client, ttl time.Duration, opts ...RedisCacheOption) *RedisCache {
	c := &RedisCache{
		client: client,
		key:    defaultKey,
		ttl:    ttl,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	c.generationKey = c.key + ":generation"
	return c
}

// Get returns the cached summary; ok is false on a miss.
func (c *RedisCache) Get(ctx context.Context) (*models.Summary, bool, error) {
	raw, err := c.client.Get(ctx, c.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read stats cache: %w", err)
	}
	var summary models.Summary
	if err := json.Unmarshal(raw, &summary); err != nil {
		return nil, false, fmt.Errorf("decode stats cache: %w", err)
	}
	return &summary, true, nil
}

// Generation returns the invalidation counter; zero before the first Invalidate.
func (c *RedisCache) Generation(ctx context.Context) (int64, error) {
	gen, err := readGeneration(ctx, c.client, c.generationKey)
	if err != nil {
		return 0, fmt.Errorf("read stats cache generation: %w", err)
	}
	return gen, nil
}

// Set stores summary with the configured TTL unless the generation moved past
// generation. The check and the write run under WATCH, so an Invalidate that
// lands in between aborts the write.
func (c *RedisCache) Set(ctx context.Context, summary *models.Summary, generation int64) error {
	raw, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("encode stats cache: %w", err)
	}
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := readGeneration(ctx, tx, c.generationKey)
		if err != nil {
			return err
		}
		if current != generation {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, c.key, raw, c.ttl)
			return nil
		})
		return err
	}, c.generationKey)
	if errors.Is(err, redis.TxFailedErr) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("write stats cache: %w", err)
	}
	return nil
}

// Invalidate bumps the generation and drops the cached summary.
func (c *RedisCache) Invalidate(ctx context.Context) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, c.generationKey)
		pipe.Del(ctx, c.key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("invalidate stats cache: %w", err)
	}
	return nil
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func readGeneration(ctx context.Context, client getter, key string) (int64, error) {
	gen, err := client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}
