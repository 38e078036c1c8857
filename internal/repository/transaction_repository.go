package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/sidasi/sidasi-backend/internal/model"
)

// TransactionRepo is a read-only view of bookings from the payment
// validation side. Writes go through the booking workflow.
type TransactionRepo struct {
	db *sqlx.DB
}

func NewTransactionRepo(db *sqlx.DB) *TransactionRepo { return &TransactionRepo{db: db} }

const transactionQuery = `SELECT b.id, b.user_id, u.name AS user_name, b.booking_date,
       b.payment_status, b.payment_proof, b.validation_status
FROM bookings b
JOIN users u ON u.id = b.user_id`

// List returns transactions newest first, optionally filtered by
// validation status.
func (r *TransactionRepo) List(ctx context.Context, status string) ([]model.Transaction, error) {
	out := []model.Transaction{}
	q := transactionQuery
	var args []interface{}
	if status != "" {
		q += ` WHERE b.validation_status = ?`
		args = append(args, status)
	}
	err := r.db.SelectContext(ctx, &out, q+` ORDER BY b.id DESC`, args...)
	return out, err
}

func (r *TransactionRepo) GetByID(ctx context.Context, id uint64) (*model.Transaction, error) {
	var t model.Transaction
	err := r.db.GetContext(ctx, &t, transactionQuery+` WHERE b.id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}
