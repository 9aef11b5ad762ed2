package db

import (
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"mailtriage/pkg/config"
)

// Migrate applies all pending migrations from dir (default
// "file://migrations") against cfg. Safe to call on every process
// start: golang-migrate no-ops when the schema is already current.
func Migrate(cfg config.DBConfig, dir string) error {
	if dir == "" {
		dir = "file://migrations"
	}

	m, err := migrate.New(dir, DSN(cfg))
	if err != nil {
		return fmt.Errorf("open migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}
