//go:build integration

package distlock

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"clicktrack/pkg/database"
)

// openInstances returns two independent pools on one database, standing in
// for two service instances
func openInstances(t *testing.T) (*sql.DB, *sql.DB) {
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

	first, err := database.NewPostgresDB(ctx, dsn, "")
	require.NoError(t, err)
	t.Cleanup(first.Close)

	second, err := database.NewPostgresDB(ctx, dsn, "")
	require.NoError(t, err)
	t.Cleanup(second.Close)

	return first.SQL(), second.SQL()
}

func TestIntegration_AdvisoryLockAcrossInstances(t *testing.T) {
	dbA, dbB := openInstances(t)
	ctx := context.Background()

	lockA := NewAdvisoryLock(dbA, "clicktrack:hub")
	lockB := NewAdvisoryLock(dbB, "clicktrack:hub")

	// keep several idle connections in A's pool so a stray session would show
	for i := 0; i < 3; i++ {
		require.NoError(t, dbA.PingContext(ctx))
	}

	for round := 0; round < 5; round++ {
		ok, err := lockA.Acquire(ctx)
		require.NoError(t, err)
		require.True(t, ok, "round %d", round)

		ok, err = lockB.Acquire(ctx)
		require.NoError(t, err)
		assert.False(t, ok, "round %d: held lock was granted twice", round)

		require.NoError(t, lockA.Release(ctx))

		ok, err = lockB.Acquire(ctx)
		require.NoError(t, err)
		require.True(t, ok, "round %d: released lock stayed held", round)
		require.NoError(t, lockB.Release(ctx))
	}
}
