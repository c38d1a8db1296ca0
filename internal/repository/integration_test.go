//go:build integration

package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"clicktrack/internal/domain"
	"clicktrack/pkg/database"
	"clicktrack/pkg/logger"
	"clicktrack/pkg/migrations"
)

func setupPostgres(t *testing.T) *database.PostgresDB {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("clicktrack"),
		tcpostgres.WithUsername("clicktrack"),
		tcpostgres.WithPassword("clicktrack"),
		tc.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	m, err := migrations.New(dsn, logger.NewNop())
	require.NoError(t, err)
	require.NoError(t, m.Up())
	version, dirty, err := m.Version()
	require.NoError(t, err)
	require.False(t, dirty)
	require.Equal(t, migrations.VersionCurrent, version)
	require.NoError(t, m.Close())

	db, err := database.NewPostgresDB(ctx, dsn, "")
	require.NoError(t, err)
	t.Cleanup(db.Close)
	return db
}

func TestIntegration_InsertAndPaginate(t *testing.T) {
	db := setupPostgres(t)
	ctx := context.Background()
	repo := NewClickRepository(db.SQL(), db.ReadSQL(), CurrentSchema)

	base := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 7; i++ {
		// pairs of events share a timestamp to exercise the id tiebreak
		_, err := repo.Insert(ctx, &domain.NewClick{
			ClickedAt:  base.Add(time.Duration(i/2) * time.Second),
			URL:        fmt.Sprintf("https://wa.me/5511999999999?text=%d", i),
			PageURL:    "https://shop.example.com/",
			ElementTag: "A",
		})
		require.NoError(t, err)
	}

	seen := make(map[int64]bool)
	var after *domain.EventPosition
	for page := 0; page < 10; page++ {
		q := domain.EventQuery{Limit: 3, Fields: []string{domain.FieldURL}}
		if after == nil {
			q.Since = base.Add(-time.Hour)
			q.Until = base.Add(time.Hour)
		} else {
			q.After = after
		}

		events, err := repo.List(ctx, q)
		require.NoError(t, err)
		for _, e := range events {
			assert.False(t, seen[e.ID], "event %d returned twice", e.ID)
			seen[e.ID] = true
		}
		if len(events) < q.Limit {
			break
		}
		last := events[len(events)-1]
		after = &domain.EventPosition{ClickedAt: last.ClickedAt, ID: last.ID}
	}
	assert.Len(t, seen, 7)

	totals, err := repo.Totals(ctx, base)
	require.NoError(t, err)
	assert.Equal(t, int64(7), totals.Total)
}

func TestIntegration_Settings(t *testing.T) {
	db := setupPostgres(t)
	ctx := context.Background()
	repo := NewSettingsRepository(db.SQL())

	require.NoError(t, repo.Set(ctx, map[string]string{domain.SettingDestinationPhone: "5511999999999"}))
	require.NoError(t, repo.Set(ctx, map[string]string{domain.SettingDestinationPhone: "5511888888888"}))

	values, err := repo.GetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, "5511888888888", values[domain.SettingDestinationPhone])
}

func TestIntegration_ClickedAtStoredInWholeSeconds(t *testing.T) {
	db := setupPostgres(t)
	ctx := context.Background()

	_, err := db.SQL().ExecContext(ctx,
		`INSERT INTO click_events (clicked_at, url) VALUES ('2025-05-01T12:00:00.400Z', 'https://wa.me/1')`)
	require.NoError(t, err)

	var fractional bool
	require.NoError(t, db.SQL().QueryRowContext(ctx,
		`SELECT clicked_at <> date_trunc('second', clicked_at) FROM click_events`).Scan(&fractional))
	assert.False(t, fractional)
}
