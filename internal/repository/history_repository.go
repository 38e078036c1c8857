package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/sidasi/sidasi-backend/internal/apperror"
	"github.com/sidasi/sidasi-backend/internal/model"
)

// HistoryRepo appends and reads booking history. Entries are never updated
// or deleted here.
type HistoryRepo struct {
	db *sqlx.DB
}

func NewHistoryRepo(db *sqlx.DB) *HistoryRepo { return &HistoryRepo{db: db} }

// RecordTx appends one history row inside the caller's transaction and
// returns its id. A zero userID is rejected before anything is written.
func (r *HistoryRepo) RecordTx(ctx context.Context, tx *sqlx.Tx, bookingID, userID uint64) (uint64, error) {
	if userID == 0 {
		return 0, apperror.Validation("history.record", apperror.FieldError{Field: "user_id", Problem: "is required"})
	}
	res, err := tx.ExecContext(ctx, `INSERT INTO history (booking_id, user_id) VALUES (?, ?)`, bookingID, userID)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

const historyViewQuery = `SELECT h.id, h.booking_id, h.user_id, h.created_at,
       u.name AS user_name, b.booking_date, b.payment_status, b.validation_status
FROM history h
JOIN users u ON u.id = h.user_id
JOIN bookings b ON b.id = h.booking_id`

// List returns all history rows, newest first.
func (r *HistoryRepo) List(ctx context.Context) ([]model.HistoryView, error) {
	out := []model.HistoryView{}
	err := r.db.SelectContext(ctx, &out, historyViewQuery+` ORDER BY h.id DESC`)
	return out, err
}

// GetByID returns a single history row.
func (r *HistoryRepo) GetByID(ctx context.Context, id uint64) (*model.HistoryView, error) {
	var v model.HistoryView
	err := r.db.GetContext(ctx, &v, historyViewQuery+` WHERE h.id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrHistoryNotFound
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// ListByBooking returns the history of one booking in the order it was
// written.
func (r *HistoryRepo) ListByBooking(ctx context.Context, bookingID uint64) ([]model.HistoryView, error) {
	out := []model.HistoryView{}
	err := r.db.SelectContext(ctx, &out, historyViewQuery+` WHERE h.booking_id = ? ORDER BY h.id`, bookingID)
	return out, err
}
