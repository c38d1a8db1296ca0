package service

import (
	"context"

	"clicktrack/internal/domain"
)

// ClickQuerier serves the read API
type ClickQuerier interface {
	// List validates params and returns one page of events
	List(ctx context.Context, p QueryParams) (*domain.EventPage, error)

	// Limits returns the configured page size and lookback bounds
	Limits() QueryLimits
}

// ClickIngester serves the write API
type ClickIngester interface {
	// Record runs one inbound click through the ingestion pipeline
	Record(ctx context.Context, req *domain.IngestRequest) (*domain.IngestResult, error)
}

// Limiter counts requests against fixed windows
type Limiter interface {
	Check(ctx context.Context, key string, limit, windowSeconds int) (*domain.RateLimitInfo, error)
}

// BackgroundWorker is started with the server and stopped on shutdown
type BackgroundWorker interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Services aggregates the application services
type Services struct {
	Settings *SettingsService
	Query    ClickQuerier
	Ingest   ClickIngester
	Limiter  Limiter
	Stats    StatsReader

	// Hub is nil when forwarding is not configured
	Hub BackgroundWorker
}

// StatsReader returns the simple admin counts
type StatsReader interface {
	Totals(ctx context.Context) (*domain.ClickTotals, error)
}
