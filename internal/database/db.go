package database

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/sidasi/sidasi-backend/internal/config"
)

//go:embed schema_sqlite.sql
var sqliteSchema string

// Open connects to the configured driver, applies the pool limits and
// verifies the connection. The returned pool is the only shared database
// resource; callers receive it explicitly.
func Open(cfg config.DBConfig) (*sqlx.DB, error) {
	var (
		db  *sqlx.DB
		err error
	)
	switch cfg.Driver {
	case "mysql", "":
		db, err = sqlx.Open("mysql", MySQLDSN(cfg, false))
	case "sqlite":
		db, err = sqlx.Open("sqlite", SQLiteDSN(cfg.DSN))
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	// Pool settings. SQLite has a single writer, and an in-memory database
	// lives only as long as its connection, so that pool holds one.
	maxOpen, maxIdle, lifetime := cfg.MaxOpenConns, cfg.MaxIdleConns, cfg.ConnMaxLifetime
	if cfg.Driver == "sqlite" {
		maxOpen, maxIdle, lifetime = 1, 1, 0
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(lifetime)

	// Ping with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	if cfg.Driver == "sqlite" {
		if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply sqlite schema: %w", err)
		}
	}
	return db, nil
}

// MySQLDSN builds a go-sql-driver DSN. DB_DSN wins when set.
func MySQLDSN(cfg config.DBConfig, multiStatements bool) string {
	if cfg.DSN != "" {
		return cfg.DSN
	}
	auth := cfg.User
	if cfg.Pass != "" {
		auth = fmt.Sprintf("%s:%s", cfg.User, cfg.Pass)
	}
	// parseTime=true -> DATE/DATETIME -> time.Time | loc=UTC keeps times consistent
	dsn := fmt.Sprintf("%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC",
		auth, cfg.Host, cfg.Port, cfg.Name)
	if multiStatements {
		dsn += "&multiStatements=true"
	}
	return dsn
}

// SQLiteDSN turns a file path (optionally carrying its own query, such as
// "name?mode=memory") into a modernc DSN with foreign keys enforced and a
// busy timeout. An empty path selects an in-memory database.
func SQLiteDSN(path string) string {
	if path == "" {
		path = ":memory:"
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return "file:" + path + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_time_format=sqlite"
}
