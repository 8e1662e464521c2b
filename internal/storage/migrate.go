package storage

import (
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// Migration helpers for the rewards schema (checkpoint, tips, reward actions,
// loyalty counters, memberships, collectible tokens, registry). The listener
// applies pending migrations on boot; cmd/migrate drives the same helpers for
// up, down, and version.

func openMigrator(databaseURL, migrationsPath string) (*migrate.Migrate, error) {
	m, err := migrate.New(fmt.Sprintf("file://%s", migrationsPath), databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open migrator: %w", err)
	}
	return m, nil
}

func closeMigrator(m *migrate.Migrate) {
	_, _ = m.Close() // nolint:errcheck // cleanup in defer
}

// RunMigrations applies every pending migration.
func RunMigrations(databaseURL, migrationsPath string) error {
	m, err := openMigrator(databaseURL, migrationsPath)
	if err != nil {
		return err
	}
	defer closeMigrator(m)

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// RollbackMigrations undoes the most recently applied migration.
func RollbackMigrations(databaseURL, migrationsPath string) error {
	m, err := openMigrator(databaseURL, migrationsPath)
	if err != nil {
		return err
	}
	defer closeMigrator(m)

	if err := m.Steps(-1); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to roll back migration: %w", err)
	}
	return nil
}

// MigrationVersion reports the current schema version and whether a migration
// was left half-applied.
func MigrationVersion(databaseURL, migrationsPath string) (uint, bool, error) {
	m, err := openMigrator(databaseURL, migrationsPath)
	if err != nil {
		return 0, false, err
	}
	defer closeMigrator(m)

	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return 0, false, fmt.Errorf("failed to read migration version: %w", err)
	}
	return version, dirty, nil
}
