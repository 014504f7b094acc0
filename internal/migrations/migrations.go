package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed *.sql
var Files embed.FS

// migrationsTable keeps the migration bookkeeping apart from any other tool
// sharing the database.
const migrationsTable = "mouselog_schema_migrations"

// slogLogger forwards golang-migrate progress lines to slog.
type slogLogger struct{}

func (slogLogger) Printf(format string, v ...interface{}) {
	slog.Debug("[Migrations] " + strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (slogLogger) Verbose() bool { return false }

func newMigrator(db *sql.DB) (*migrate.Migrate, error) {
	src, err := iofs.New(Files, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to create migration source: %w", err)
	}
	drv, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: migrationsTable})
	if err != nil {
		return nil, fmt.Errorf("failed to create database driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", drv)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = slogLogger{}
	return m, nil
}

// Apply brings the bucket_records schema up to date. With autoMigrate off it
// only reports the current version, and NewRecordSink's schema check decides
// whether startup can continue.
func Apply(db *sql.DB, autoMigrate bool) error {
	m, err := newMigrator(db)
	if err != nil {
		return err
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to get current migration version: %w", err)
	}

	if dirty {
		// Migrations only use IF [NOT] EXISTS DDL and can be re-run.
		slog.Warn("[Migrations] Dirty schema version, forcing clean", "version", version)
		if err := m.Force(int(version)); err != nil {
			return fmt.Errorf("failed to recover dirty migration state at version %d: %w", version, err)
		}
	}

	if !autoMigrate {
		slog.Info("[Migrations] Auto-migration disabled", "current_version", version, "dirty", dirty)
		return nil
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			slog.Info("[Migrations] Schema is up to date", "version", version)
			return nil
		}
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	newVersion, _, err := m.Version()
	if err != nil {
		return fmt.Errorf("failed to get updated migration version: %w", err)
	}
	slog.Info("[Migrations] Applied", "from_version", version, "to_version", newVersion)
	return nil
}
