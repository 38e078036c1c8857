package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sidasi/sidasi-backend/internal/model"
)

// BookingRepo provides access to bookings and their line items. Methods
// ending in Tx run inside a caller-owned transaction; the caller commits or
// rolls back.
type BookingRepo struct {
	db *sqlx.DB
}

// NewBookingRepo returns a new BookingRepo bound to the given pool.
func NewBookingRepo(db *sqlx.DB) *BookingRepo { return &BookingRepo{db: db} }

// BookingState is the part of a booking row the update workflow needs
// before it changes anything.
type BookingState struct {
	UserID           uint64 `db:"user_id"`
	ValidationStatus string `db:"validation_status"`
}

// BookingFields lists the columns an update may touch. Nil fields are left
// unchanged.
type BookingFields struct {
	UserID           *uint64
	BookingDate      *time.Time
	PaymentStatus    *string
	PaymentProof     *string
	ValidationStatus *string
}

// Empty reports whether no column is set.
func (f BookingFields) Empty() bool {
	return f.UserID == nil && f.BookingDate == nil && f.PaymentStatus == nil &&
		f.PaymentProof == nil && f.ValidationStatus == nil
}

// CreateTx inserts the booking row and sets b.ID. An empty
// ValidationStatus is stored as Pending.
func (r *BookingRepo) CreateTx(ctx context.Context, tx *sqlx.Tx, b *model.Booking) error {
	if b.ValidationStatus == "" {
		b.ValidationStatus = model.ValidationPending
	}
	const q = `INSERT INTO bookings (user_id, booking_date, payment_status, payment_proof, validation_status)
	           VALUES (?, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, q, b.UserID, b.BookingDate, b.PaymentStatus, b.PaymentProof, b.ValidationStatus)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	b.ID = uint64(id)
	return nil
}

// CreateItemsBulkTx inserts all items for bookingID in a single statement.
// Passing an empty slice has no effect.
func (r *BookingRepo) CreateItemsBulkTx(ctx context.Context, tx *sqlx.Tx, bookingID uint64, items []model.BookingItem) error {
	if len(items) == 0 {
		return nil
	}
	var sb strings.Builder
	sb.WriteString(`INSERT INTO booking_products (booking_id, product_id, quantity) VALUES `)
	args := make([]interface{}, 0, len(items)*3)
	for i, it := range items {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("(?, ?, ?)")
		args = append(args, bookingID, it.ProductID, it.Quantity)
	}
	_, err := tx.ExecContext(ctx, sb.String(), args...)
	return err
}

// StateTx loads owner and validation status of a booking. It returns
// ErrBookingNotFound when the row does not exist.
func (r *BookingRepo) StateTx(ctx context.Context, tx *sqlx.Tx, id uint64) (BookingState, error) {
	var st BookingState
	err := tx.GetContext(ctx, &st, `SELECT user_id, validation_status FROM bookings WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return st, ErrBookingNotFound
	}
	return st, err
}

// CompleteTx moves a booking to Done. It reports false when the row was
// already Done, so of two concurrent completions only one sees the
// transition.
func (r *BookingRepo) CompleteTx(ctx context.Context, tx *sqlx.Tx, id uint64) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE bookings SET validation_status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND validation_status <> ?`,
		model.ValidationDone, id, model.ValidationDone)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// UpdateFieldsTx writes the supplied columns and returns the number of
// affected rows. An empty field set is a no-op.
func (r *BookingRepo) UpdateFieldsTx(ctx context.Context, tx *sqlx.Tx, id uint64, f BookingFields) (int64, error) {
	if f.Empty() {
		return 0, nil
	}
	sets := make([]string, 0, 6)
	args := make([]interface{}, 0, 6)
	if f.UserID != nil {
		sets = append(sets, "user_id = ?")
		args = append(args, *f.UserID)
	}
	if f.BookingDate != nil {
		sets = append(sets, "booking_date = ?")
		args = append(args, *f.BookingDate)
	}
	if f.PaymentStatus != nil {
		sets = append(sets, "payment_status = ?")
		args = append(args, *f.PaymentStatus)
	}
	if f.PaymentProof != nil {
		sets = append(sets, "payment_proof = ?")
		args = append(args, *f.PaymentProof)
	}
	if f.ValidationStatus != nil {
		sets = append(sets, "validation_status = ?")
		args = append(args, *f.ValidationStatus)
	}
	sets = append(sets, "updated_at = CURRENT_TIMESTAMP")
	args = append(args, id)

	res, err := tx.ExecContext(ctx, "UPDATE bookings SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteItemsTx removes every line item of a booking.
func (r *BookingRepo) DeleteItemsTx(ctx context.Context, tx *sqlx.Tx, bookingID uint64) (int64, error) {
	res, err := tx.ExecContext(ctx, `DELETE FROM booking_products WHERE booking_id = ?`, bookingID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteTx removes the booking row. History rows go with it through the
// foreign key cascade.
func (r *BookingRepo) DeleteTx(ctx context.Context, tx *sqlx.Tx, id uint64) (int64, error) {
	res, err := tx.ExecContext(ctx, `DELETE FROM bookings WHERE id = ?`, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const bookingColumns = `id, user_id, booking_date, payment_status, payment_proof, validation_status, created_at, updated_at`

// GetByID returns a booking with its line items.
func (r *BookingRepo) GetByID(ctx context.Context, id uint64) (*model.Booking, error) {
	var b model.Booking
	err := r.db.GetContext(ctx, &b, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, err
	}
	items, err := r.ItemsByBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	b.Items = items
	return &b, nil
}

// ItemsByBooking lists the line items of one booking in insertion order.
func (r *BookingRepo) ItemsByBooking(ctx context.Context, bookingID uint64) ([]model.BookingItem, error) {
	items := []model.BookingItem{}
	err := r.db.SelectContext(ctx, &items,
		`SELECT id, booking_id, product_id, quantity FROM booking_products WHERE booking_id = ? ORDER BY id`, bookingID)
	return items, err
}

// List returns bookings newest first. A non-zero userID restricts the list
// to that user's bookings.
func (r *BookingRepo) List(ctx context.Context, userID uint64) ([]model.Booking, error) {
	out := []model.Booking{}
	q := `SELECT ` + bookingColumns + ` FROM bookings`
	var args []interface{}
	if userID != 0 {
		q += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	q += ` ORDER BY id DESC`
	err := r.db.SelectContext(ctx, &out, q, args...)
	return out, err
}
