package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"clicktrack/internal/domain"
	"clicktrack/internal/repository"
	apperrors "clicktrack/pkg/errors"
	"clicktrack/pkg/logger"
	"clicktrack/pkg/redis"
	"clicktrack/pkg/utils"
)

// SettingsService merges stored settings over configuration defaults and
// caches the result in Redis when a client is given
type SettingsService struct {
	repo     repository.SettingsRepository
	cache    *redis.Client
	defaults domain.Settings
	logger   *logger.Logger
}

// NewSettingsService creates a settings service. cache may be nil.
func NewSettingsService(repo repository.SettingsRepository, cache *redis.Client, defaults domain.Settings, log *logger.Logger) *SettingsService {
	return &SettingsService{
		repo:     repo,
		cache:    cache,
		defaults: defaults,
		logger:   log,
	}
}

// Current returns the effective settings
func (s *SettingsService) Current(ctx context.Context) (*domain.Settings, error) {
	if s.cache != nil {
		var cached domain.Settings
		found, err := s.cache.GetJSON(ctx, s.cache.KeyBuilder.KeySettings(), &cached)
		if err != nil {
			s.logger.WithError(err).Warn("Settings cache read failed, loading from database")
		} else if found {
			return &cached, nil
		}
	}

	values, err := s.repo.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	settings := s.merge(values)

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, s.cache.KeyBuilder.KeySettings(), settings, redis.TTLSettings); err != nil {
			s.logger.WithError(err).Warn("Failed to cache settings")
		}
	}
	return settings, nil
}

// SetDestination stores the destination phone as digits only
func (s *SettingsService) SetDestination(ctx context.Context, phone string) (string, error) {
	normalized, err := utils.NormalizePhoneNumber(phone)
	if err != nil {
		return "", apperrors.NewValidationError(apperrors.CodeInvalidPhone, "Phone number must have 10 to 15 digits")
	}

	if err := s.write(ctx, map[string]string{domain.SettingDestinationPhone: normalized}); err != nil {
		return "", err
	}

	s.logger.WithField("destination", utils.MaskPhoneNumber(normalized)).Info("Destination phone updated")
	return normalized, nil
}

// SaveToken stores a rotated token as the new token
func (s *SettingsService) SaveToken(ctx context.Context, token string, rotatedAt time.Time) error {
	return s.write(ctx, map[string]string{
		domain.SettingTokenNew:       token,
		domain.SettingTokenRotatedAt: rotatedAt.UTC().Format(time.RFC3339),
	})
}

// RetainLegacy copies the current new token into the legacy slot so it keeps
// working once cleared or replaced
func (s *SettingsService) RetainLegacy(ctx context.Context) (string, error) {
	settings, err := s.Current(ctx)
	if err != nil {
		return "", err
	}
	if settings.TokenNew == "" {
		return "", apperrors.NewValidationError(apperrors.CodeNoToken, "There is no token to retain")
	}

	if err := s.write(ctx, map[string]string{domain.SettingTokenLegacy: settings.TokenNew}); err != nil {
		return "", err
	}
	return settings.TokenNew, nil
}

func (s *SettingsService) write(ctx context.Context, values map[string]string) error {
	if err := s.repo.Set(ctx, values); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	s.invalidate(ctx)
	return nil
}

func (s *SettingsService) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, s.cache.KeyBuilder.KeySettings()); err != nil {
		s.logger.WithError(err).Warn("Failed to invalidate settings cache")
	}
}

// merge overlays stored values on the defaults. Unparseable numbers keep
// the default.
func (s *SettingsService) merge(values map[string]string) *domain.Settings {
	settings := s.defaults
	settings.DestinationPhone = utils.DigitsOnly(settings.DestinationPhone)

	if v := strings.TrimSpace(values[domain.SettingDestinationPhone]); v != "" {
		settings.DestinationPhone = utils.DigitsOnly(v)
	}
	if v := strings.TrimSpace(values[domain.SettingTokenNew]); v != "" {
		settings.TokenNew = v
	}
	if v := strings.TrimSpace(values[domain.SettingTokenLegacy]); v != "" {
		settings.TokenLegacy = v
	}
	if v := values[domain.SettingTokenRotatedAt]; v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			settings.TokenRotatedAt = &t
		}
	}
	if n, err := strconv.Atoi(values[domain.SettingRatePerWindow]); err == nil && n > 0 {
		settings.RatePerWindow = n
	}
	if n, err := strconv.Atoi(values[domain.SettingRateWindowSeconds]); err == nil && n > 0 {
		settings.RateWindowSeconds = n
	}
	return &settings
}
