// Package testdb opens throwaway sqlite databases carrying the application
// schema, for repository and service tests.
package testdb

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/sidasi/sidasi-backend/internal/config"
	"github.com/sidasi/sidasi-backend/internal/database"
)

// Open returns a fresh in-memory database that is closed when t finishes.
func Open(t testing.TB) *sqlx.DB {
	t.Helper()
	db, err := database.Open(config.DBConfig{
		Driver: "sqlite",
		DSN:    uuid.NewString() + "?mode=memory&cache=shared",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// SeedUser inserts a user and returns its id.
func SeedUser(t testing.TB, db *sqlx.DB, name, role string) uint64 {
	t.Helper()
	res, err := db.ExecContext(context.Background(),
		"INSERT INTO users (name, email, password_hash, role) VALUES (?,?,?,?)",
		name, name+"-"+uuid.NewString()[:8]+"@example.com", "x", role)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return uint64(id)
}

// SeedProduct inserts a product and returns its id.
func SeedProduct(t testing.TB, db *sqlx.DB, name string) uint64 {
	t.Helper()
	res, err := db.ExecContext(context.Background(),
		"INSERT INTO products (name, category, price, stock, unit, status) VALUES (?,?,?,?,?,?)",
		name, "tools", "15000.00", 10, "pcs", "available")
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return uint64(id)
}
