// Package migrations applies the embedded schema migrations and reports the
// schema version the server should run against.
package migrations

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"clicktrack/pkg/logger"
)

//go:embed sql/*.sql
var migrationsFS embed.FS

// Schema versions with a dedicated storage adapter
const (
	VersionLegacy  uint = 1 // wa_clicks with created_at
	VersionCurrent uint = 2 // click_events with clicked_at and geo columns
)

// Migrator manages database migrations
type Migrator struct {
	migrate *migrate.Migrate
	log     *logger.Logger
}

// Source returns the embedded migration source
func Source() (source.Driver, error) {
	src, err := iofs.New(migrationsFS, "sql")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	return src, nil
}

// New creates a migrator for a postgres:// URL
func New(databaseURL string, log *logger.Logger) (*Migrator, error) {
	src, err := Source()
	if err != nil {
		return nil, err
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}

	return &Migrator{migrate: m, log: log}, nil
}

// Up applies all pending migrations, forcing past a dirty version first
func (m *Migrator) Up() error {
	version, dirty, err := m.migrate.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	if dirty {
		m.log.WithField("version", version).Warn("Schema is dirty, forcing version before migrating")
		if err := m.migrate.Force(int(version)); err != nil {
			return fmt.Errorf("failed to clear dirty state: %w", err)
		}
	}

	if err := m.migrate.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			m.log.Info("Schema already up to date")
			return nil
		}
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	newVersion, _, _ := m.migrate.Version()
	m.log.WithField("version", newVersion).Info("Migrations applied")
	return nil
}

// Down rolls back one migration
func (m *Migrator) Down() error {
	if err := m.migrate.Steps(-1); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			m.log.Info("Nothing to roll back")
			return nil
		}
		return fmt.Errorf("failed to roll back: %w", err)
	}

	version, _, _ := m.migrate.Version()
	m.log.WithField("version", version).Info("Rolled back one migration")
	return nil
}

// Version returns the applied schema version, 0 when nothing is applied
func (m *Migrator) Version() (uint, bool, error) {
	version, dirty, err := m.migrate.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

// Close releases the source and database handles
func (m *Migrator) Close() error {
	sourceErr, dbErr := m.migrate.Close()
	return errors.Join(sourceErr, dbErr)
}
