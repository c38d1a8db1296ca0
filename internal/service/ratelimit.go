package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"clicktrack/internal/domain"
	"clicktrack/pkg/redis"
)

// CounterStore holds rate limit buckets with a TTL. Load returns nil for a
// missing or expired bucket.
type CounterStore interface {
	Load(ctx context.Context, key string) (*domain.RateLimitBucket, error)
	Save(ctx context.Context, key string, bucket domain.RateLimitBucket, ttl time.Duration) error
}

// BucketKey derives the limiter key for a (route, token) pair
func BucketKey(route, token string) string {
	sum := sha256.Sum256([]byte(route + "|" + token))
	return hex.EncodeToString(sum[:])
}

// RateLimiter is a fixed-window counter. Load and Save are separate calls,
// so concurrent requests on one key can briefly over-admit. A window boundary
// can admit up to twice the limit back to back.
type RateLimiter struct {
	store CounterStore
	now   func() time.Time
}

// NewRateLimiter creates a limiter over store
func NewRateLimiter(store CounterStore) *RateLimiter {
	return &RateLimiter{store: store, now: time.Now}
}

// Check counts one request against key
func (l *RateLimiter) Check(ctx context.Context, key string, limit, windowSeconds int) (*domain.RateLimitInfo, error) {
	if limit < 1 {
		limit = 1
	}
	if windowSeconds < 1 {
		windowSeconds = 60
	}

	now := l.now().Unix()
	bucket, err := l.store.Load(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to load rate limit bucket: %w", err)
	}
	if bucket == nil || bucket.ResetAt <= now {
		bucket = &domain.RateLimitBucket{Count: 0, ResetAt: now + int64(windowSeconds)}
	}

	reset := int(max(0, bucket.ResetAt-now))

	if bucket.Count >= limit {
		return &domain.RateLimitInfo{
			Allowed:           false,
			Limit:             limit,
			Remaining:         0,
			ResetSeconds:      reset,
			RetryAfterSeconds: reset,
		}, nil
	}

	bucket.Count++
	ttl := time.Duration(max(1, reset)) * time.Second
	if err := l.store.Save(ctx, key, *bucket, ttl); err != nil {
		return nil, fmt.Errorf("failed to save rate limit bucket: %w", err)
	}

	return &domain.RateLimitInfo{
		Allowed:      true,
		Limit:        limit,
		Remaining:    max(0, limit-bucket.Count),
		ResetSeconds: reset,
	}, nil
}

// redisCounterStore keeps buckets as JSON values in Redis
type redisCounterStore struct {
	client *redis.Client
}

// NewRedisCounterStore shares buckets across instances through Redis
func NewRedisCounterStore(client *redis.Client) CounterStore {
	return &redisCounterStore{client: client}
}

func (s *redisCounterStore) Load(ctx context.Context, key string) (*domain.RateLimitBucket, error) {
	var bucket domain.RateLimitBucket
	found, err := s.client.GetJSON(ctx, s.client.KeyBuilder.KeyRateLimit(key), &bucket)
	if err != nil || !found {
		return nil, err
	}
	return &bucket, nil
}

func (s *redisCounterStore) Save(ctx context.Context, key string, bucket domain.RateLimitBucket, ttl time.Duration) error {
	return s.client.SetJSON(ctx, s.client.KeyBuilder.KeyRateLimit(key), bucket, ttl)
}

// memoryCounterStore is a per-process store for single instance deployments
// and the admin routes
type memoryCounterStore struct {
	mu      sync.Mutex
	buckets map[string]memoryBucket
	now     func() time.Time
}

type memoryBucket struct {
	bucket    domain.RateLimitBucket
	expiresAt time.Time
}

// NewMemoryCounterStore creates an in-process counter store
func NewMemoryCounterStore() CounterStore {
	return &memoryCounterStore{buckets: make(map[string]memoryBucket), now: time.Now}
}

func (s *memoryCounterStore) Load(_ context.Context, key string) (*domain.RateLimitBucket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.buckets[key]
	if !ok {
		return nil, nil
	}
	if !s.now().Before(entry.expiresAt) {
		delete(s.buckets, key)
		return nil, nil
	}
	bucket := entry.bucket
	return &bucket, nil
}

func (s *memoryCounterStore) Save(_ context.Context, key string, bucket domain.RateLimitBucket, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	// Drop expired entries so idle keys do not accumulate.
	for k, entry := range s.buckets {
		if !now.Before(entry.expiresAt) {
			delete(s.buckets, k)
		}
	}
	s.buckets[key] = memoryBucket{bucket: bucket, expiresAt: now.Add(ttl)}
	return nil
}
