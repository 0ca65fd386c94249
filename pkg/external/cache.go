package external

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/pgxbridge/internal/domain"
)

// RedisResultCache stores processed document results in redis, keyed by the
// pipeline's content-hash keys. Implements domain.ResultCache. A nil client
// behaves as a disabled cache.
type RedisResultCache struct {
	redis      *redis.Client
	defaultTTL time.Duration
	logger     *logrus.Logger
}

// NewRedisResultCache creates a result cache from configuration and verifies
// the connection.
func NewRedisResultCache(cfg domain.RedisConfig, logger *logrus.Logger) (*RedisResultCache, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	ttl := cfg.DefaultTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}

	return &RedisResultCache{
		redis:      client,
		defaultTTL: ttl,
		logger:     logger,
	}, nil
}

type cachedResult struct {
	Result    *domain.DocumentResult `json:"result"`
	CachedAt  time.Time              `json:"cached_at"`
	ExpiresAt time.Time              `json:"expires_at"`
}

// Get returns the cached result for a key. Read failures and corrupted
// entries count as misses; a broken cache must never break processing.
func (c *RedisResultCache) Get(ctx context.Context, key string) (*domain.DocumentResult, bool) {
	if c == nil {
		return nil, false
	}

	val, err := c.redis.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		c.logger.WithError(err).Warn("Result cache read failed")
		return nil, false
	}

	var cached cachedResult
	if err := json.Unmarshal([]byte(val), &cached); err != nil {
		c.redis.Del(ctx, key)
		return nil, false
	}
	if time.Now().After(cached.ExpiresAt) {
		c.redis.Del(ctx, key)
		return nil, false
	}

	return cached.Result, true
}

// Set caches a result under the key for the configured TTL.
func (c *RedisResultCache) Set(ctx context.Context, key string, result *domain.DocumentResult) error {
	if c == nil {
		return nil
	}

	cached := cachedResult{
		Result:    result,
		CachedAt:  time.Now(),
		ExpiresAt: time.Now().Add(c.defaultTTL),
	}
	payload, err := json.Marshal(cached)
	if err != nil {
		return fmt.Errorf("failed to marshal cached result: %w", err)
	}

	return c.redis.Set(ctx, key, payload, c.defaultTTL).Err()
}

// Ping checks the redis connection, for readiness probes.
func (c *RedisResultCache) Ping(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.redis.Ping(ctx).Err()
}

// Close closes the redis connection.
func (c *RedisResultCache) Close() error {
	if c == nil {
		return nil
	}
	return c.redis.Close()
}
