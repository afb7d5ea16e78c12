package database

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"

	"github.com/insightops/webhook-engine/internal/config"
)

const migrationSource = "file://db/migrations"

// RunMigrations applies any pending schema migrations for the webhook and
// delivery tables. An already up-to-date schema is not an error.
func RunMigrations(cfg *config.DatabaseConfig, logger *zap.Logger) error {
	m, err := migrate.New(migrationSource, cfg.MigrationURL())
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	err = m.Up()
	switch {
	case err == nil:
		if logger != nil {
			logger.Info("Database migrations applied")
		}
	case errors.Is(err, migrate.ErrNoChange):
		if logger != nil {
			logger.Info("Database schema already up to date")
		}
	default:
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}
