package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product mirrors the `products` table.
type Product struct {
	ID        uint64          `db:"id" json:"id"`
	Name      string          `db:"name" json:"name"`
	Category  string          `db:"category" json:"category"`
	Price     decimal.Decimal `db:"price" json:"price"`
	Stock     int             `db:"stock" json:"stock"`
	Unit      string          `db:"unit" json:"unit"`
	Status    string          `db:"status" json:"status"`
	Photo     *string         `db:"photo" json:"photo"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

// Profile is a `profiles` row joined with the owning user's contact data.
type Profile struct {
	ID      uint64  `db:"id" json:"id"`
	UserID  uint64  `db:"user_id" json:"user_id"`
	Photo   *string `db:"photo" json:"photo"`
	Name    string  `db:"name" json:"name"`
	Address string  `db:"address" json:"address"`
	Phone   string  `db:"phone" json:"phone"`
	Email   string  `db:"email" json:"email"`
}
