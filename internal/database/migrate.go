package database

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/sidasi/sidasi-backend/internal/config"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate applies the embedded MySQL migrations on a dedicated connection
// (multi-statement files need multiStatements=true, which the request pool
// does not enable).
func Migrate(cfg config.DBConfig, logger *slog.Logger) error {
	if cfg.Driver == "sqlite" {
		return nil
	}
	migrationDB, err := sql.Open("mysql", MySQLDSN(cfg, true))
	if err != nil {
		return err
	}
	defer migrationDB.Close()

	driver, err := migratemysql.WithInstance(migrationDB, &migratemysql.Config{})
	if err != nil {
		return fmt.Errorf("migrate driver: %w", err)
	}
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("migrate source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "mysql", driver)
	if err != nil {
		return fmt.Errorf("migrate instance: %w", err)
	}

	err = m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		logger.Info("No new migrations to apply.")
		return nil
	}
	if err != nil {
		return err
	}
	logger.Info("Database migrations applied successfully.")
	return nil
}
