package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"clicktrack/pkg/redis"
)

// CacheService provides the cache-aside pattern over Redis. A nil client
// turns every lookup into a straight load.
type CacheService struct {
	redis  *redis.Client
	logger *zap.Logger
}

// NewCacheService creates a new cache service
func NewCacheService(redisClient *redis.Client, logger *zap.Logger) *CacheService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{
		redis:  redisClient,
		logger: logger,
	}
}

// GetWithFallback decodes the cached value at key into dest, or calls load
// and caches its result in the background. Cache failures fall through to
// load.
func (c *CacheService) GetWithFallback(ctx context.Context, key string, ttl time.Duration, dest interface{}, load func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	if c.redis != nil {
		found, err := c.redis.GetJSON(ctx, key, dest)
		if err == nil && found {
			c.logger.Debug("Cache hit", zap.String("key", key))
			return dest, nil
		}
		if err != nil {
			c.logger.Warn("Cache error, falling back to database",
				zap.String("key", key),
				zap.Error(err))
		}
	}

	value, err := load(ctx)
	if err != nil {
		return nil, err
	}

	if c.redis != nil {
		go c.cacheAsync(key, value, ttl)
	}
	return value, nil
}

// Invalidate drops keys, logging failures
func (c *CacheService) Invalidate(ctx context.Context, keys ...string) {
	if c.redis == nil {
		return
	}
	if err := c.redis.Delete(ctx, keys...); err != nil {
		c.logger.Error("Failed to invalidate cache keys",
			zap.Strings("keys", keys),
			zap.Error(err))
	}
}

// HealthCheck performs a health check on the cache system
func (c *CacheService) HealthCheck(ctx context.Context) error {
	if c.redis == nil {
		return nil
	}

	start := time.Now()
	err := c.redis.Health(ctx)
	duration := time.Since(start)

	if err != nil {
		c.logger.Error("Cache health check failed",
			zap.Duration("duration", duration),
			zap.Error(err))
		return err
	}

	c.logger.Debug("Cache health check passed", zap.Duration("duration", duration))
	return nil
}

func (c *CacheService) cacheAsync(key string, value interface{}, ttl time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.redis.SetJSON(ctx, key, value, ttl); err != nil {
		c.logger.Error("Failed to cache value",
			zap.String("key", key),
			zap.Error(err))
	}
}
