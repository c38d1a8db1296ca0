package service

import (
	"context"
	"time"

	"clicktrack/internal/domain"
	"clicktrack/internal/repository"
	apperrors "clicktrack/pkg/errors"
	"clicktrack/pkg/logger"
	"clicktrack/pkg/redis"
)

// StatsService serves the admin counts, cached for a minute
type StatsService struct {
	repo   repository.ClickRepository
	cache  *CacheService
	key    string
	now    func() time.Time
	logger *logger.Logger
}

// NewStatsService creates a stats service. rdb may be nil.
func NewStatsService(repo repository.ClickRepository, rdb *redis.Client, log *logger.Logger) *StatsService {
	key := redis.NewKeyBuilder("").KeyStats()
	if rdb != nil {
		key = rdb.KeyBuilder.KeyStats()
	}
	return &StatsService{
		repo:   repo,
		cache:  NewCacheService(rdb, log.Logger),
		key:    key,
		now:    time.Now,
		logger: log,
	}
}

// Totals returns the total, last 7 day and last 30 day counts
func (s *StatsService) Totals(ctx context.Context) (*domain.ClickTotals, error) {
	value, err := s.cache.GetWithFallback(ctx, s.key, redis.TTLStats, &domain.ClickTotals{},
		func(ctx context.Context) (interface{}, error) {
			return s.repo.Totals(ctx, s.now().UTC())
		})
	if err != nil {
		s.logger.WithError(err).Error("Failed to count clicks")
		return nil, apperrors.NewInternalError("Failed to count clicks", err)
	}
	return value.(*domain.ClickTotals), nil
}

// HealthCheck reports cache connectivity
func (s *StatsService) HealthCheck(ctx context.Context) error {
	return s.cache.HealthCheck(ctx)
}
