package middleware

import (
	"context"
	"net/http"
	"strconv"

	"clicktrack/internal/domain"
	"clicktrack/internal/service"
	"clicktrack/pkg/errors"
	"clicktrack/pkg/logger"
)

// Rate limit response headers
const (
	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRateLimitReset     = "X-RateLimit-Reset"
)

// SettingsSource supplies the configured window
type SettingsSource interface {
	Current(ctx context.Context) (*domain.Settings, error)
}

// RateLimit counts requests per (route, token) in fixed windows and writes
// the X-RateLimit headers. If the counter store or settings are unavailable
// the request is let through.
func RateLimit(limiter service.Limiter, settings SettingsSource, route string, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			cfg, err := settings.Current(ctx)
			if err != nil {
				log.WithError(err).WithField("route", route).Warn("Rate limit settings unavailable, allowing request")
				next.ServeHTTP(w, r)
				return
			}

			key := service.BucketKey(route, requestToken(r))
			info, err := limiter.Check(ctx, key, cfg.RatePerWindow, cfg.RateWindowSeconds)
			if err != nil {
				log.WithError(err).WithField("route", route).Warn("Rate limiter unavailable, allowing request")
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set(HeaderRateLimitLimit, strconv.Itoa(info.Limit))
			w.Header().Set(HeaderRateLimitRemaining, strconv.Itoa(info.Remaining))
			w.Header().Set(HeaderRateLimitReset, strconv.Itoa(info.ResetSeconds))

			if !info.Allowed {
				log.WithFields(map[string]interface{}{
					"route":       route,
					"retry_after": info.RetryAfterSeconds,
				}).Info("Rate limit exceeded")
				errors.WriteJSON(w, errors.NewRateLimitError(info.RetryAfterSeconds), GetRequestID(ctx))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
