package repository

import (
	"context"
	"time"

	"clicktrack/internal/domain"
)

// ClickRepository reads and appends click events
type ClickRepository interface {
	// List returns one page ordered by (clicked_at, id) ascending
	List(ctx context.Context, q domain.EventQuery) ([]*domain.ClickEvent, error)

	// Insert appends an event and returns its id
	Insert(ctx context.Context, click *domain.NewClick) (int64, error)

	// Totals counts all events and those in the last 7 and 30 days
	Totals(ctx context.Context, now time.Time) (*domain.ClickTotals, error)

	// Recent returns events at or after since, newest first
	Recent(ctx context.Context, since time.Time, limit int) ([]*domain.ClickEvent, error)
}

// SettingsRepository persists deployment settings as key/value pairs
type SettingsRepository interface {
	// GetAll returns every stored setting
	GetAll(ctx context.Context) (map[string]string, error)

	// Set upserts the given settings atomically
	Set(ctx context.Context, values map[string]string) error
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	Clicks   ClickRepository
	Settings SettingsRepository
}
