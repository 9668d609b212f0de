package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oggyb/matchmaker/internal/config"
)

const (
	likeCountTTL      = time.Hour
	listGenerationKey = "participants:list:gen"
)

type RedisCache struct {
	Client *redis.Client
}

// NewRedisCache initializes Redis client from config.
// Only Addr is mandatory, Password/DB are optional.
func NewRedisCache(cfg *config.Config) *RedisCache {
	opts := &redis.Options{
		Addr: cfg.Redis.Addr,
	}
	if cfg.Redis.Password != "" {
		opts.Password = cfg.Redis.Password
	}
	if cfg.Redis.DB != 0 {
		opts.DB = cfg.Redis.DB
	}
	return &RedisCache{Client: redis.NewClient(opts)}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.Client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.Client.Close()
}

func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return c.Client.Set(ctx, key, value, ttl).Err()
}

// Get returns the raw value; a miss is ("", redis.Nil).
func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	return c.Client.Get(ctx, key).Result()
}

func (c *RedisCache) Del(ctx context.Context, key string) error {
	return c.Client.Del(ctx, key).Err()
}

// GetJSON decodes the value at key into dst. found is false on a cache miss.
func (c *RedisCache) GetJSON(ctx context.Context, key string, dst any) (found bool, err error) {
	raw, err := c.Get(ctx, key)
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		// corrupt entry: drop it and report a miss
		_ = c.Del(ctx, key)
		return false, nil
	}
	return true, nil
}

// SetJSON stores value as JSON with the given TTL.
func (c *RedisCache) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode cache value: %w", err)
	}
	return c.Set(ctx, key, raw, ttl)
}

// KeyForLikeCount generates Redis key for the number of likes a participant received
func (c *RedisCache) KeyForLikeCount(userID uint64) string {
	return fmt.Sprintf("likes:count:%d", userID)
}

func (c *RedisCache) UpdateLikeCount(ctx context.Context, userID uint64, count int64) error {
	// Always refresh TTL when updating
	return c.Set(ctx, c.KeyForLikeCount(userID), count, likeCountTTL)
}

// GetLikeCount returns the cached count; found is false on a miss.
func (c *RedisCache) GetLikeCount(ctx context.Context, userID uint64) (count int64, found bool, err error) {
	key := c.KeyForLikeCount(userID)
	val, err := c.Get(ctx, key)
	if errors.Is(err, redis.Nil) {
		return 0, false, nil // cache miss
	} else if err != nil {
		return 0, false, err
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false, nil
	}
	// refresh TTL on access since this participant is active
	_ = c.Client.Expire(ctx, key, likeCountTTL).Err()
	return n, true, nil
}

// InvalidateLikeCount drops the cached count after a new like was recorded.
func (c *RedisCache) InvalidateLikeCount(ctx context.Context, userID uint64) error {
	return c.Del(ctx, c.KeyForLikeCount(userID))
}

// ListGeneration returns the current participant-listing generation.
// Cached listings are keyed by generation, so bumping it orphans every entry.
func (c *RedisCache) ListGeneration(ctx context.Context) (int64, error) {
	val, err := c.Client.Get(ctx, listGenerationKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return val, err
}

// BumpListGeneration invalidates all cached participant listings.
func (c *RedisCache) BumpListGeneration(ctx context.Context) error {
	return c.Client.Incr(ctx, listGenerationKey).Err()
}

// KeyForParticipantList builds a listing key from a generation and a filter
// fingerprint. The fingerprint must only contain plain scalar filter values.
func (c *RedisCache) KeyForParticipantList(generation int64, fingerprint string) string {
	sum := sha1.Sum([]byte(fingerprint))
	return fmt.Sprintf("participants:list:%d:%s", generation, hex.EncodeToString(sum[:]))
}
