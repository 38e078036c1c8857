package model

import "time"

// Booking lifecycle flags stored in bookings.validation_status.
const (
	ValidationPending = "Pending"
	ValidationDone    = "Done"
)

// Booking mirrors the `bookings` table. Items is filled only by reads
// that load line items.
type Booking struct {
	ID               uint64        `db:"id" json:"id"`
	UserID           uint64        `db:"user_id" json:"user_id"`
	BookingDate      time.Time     `db:"booking_date" json:"booking_date"`
	PaymentStatus    string        `db:"payment_status" json:"payment_status"`
	PaymentProof     *string       `db:"payment_proof" json:"payment_proof"`
	ValidationStatus string        `db:"validation_status" json:"validation_status"`
	CreatedAt        time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time     `db:"updated_at" json:"updated_at"`
	Items            []BookingItem `db:"-" json:"items,omitempty"`
}

// BookingItem is one (product, quantity) line of a booking, stored in
// `booking_products`.
type BookingItem struct {
	ID        uint64 `db:"id" json:"id,omitempty"`
	BookingID uint64 `db:"booking_id" json:"booking_id,omitempty"`
	ProductID uint64 `db:"product_id" json:"product_id"`
	Quantity  int    `db:"quantity" json:"quantity"`
}

// HistoryEntry is an append-only audit row in `history`.
type HistoryEntry struct {
	ID        uint64    `db:"id" json:"id"`
	BookingID uint64    `db:"booking_id" json:"booking_id"`
	UserID    uint64    `db:"user_id" json:"user_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// HistoryView is a history row joined with its booking and user.
type HistoryView struct {
	HistoryEntry
	UserName         string    `db:"user_name" json:"user_name"`
	BookingDate      time.Time `db:"booking_date" json:"booking_date"`
	PaymentStatus    string    `db:"payment_status" json:"payment_status"`
	ValidationStatus string    `db:"validation_status" json:"validation_status"`
}

// Transaction is the payment-validation view of a booking. Its ID is the
// booking id; validation state lives on the booking row itself.
type Transaction struct {
	ID               uint64    `db:"id" json:"id"`
	UserID           uint64    `db:"user_id" json:"user_id"`
	UserName         string    `db:"user_name" json:"user_name"`
	BookingDate      time.Time `db:"booking_date" json:"booking_date"`
	PaymentStatus    string    `db:"payment_status" json:"payment_status"`
	PaymentProof     *string   `db:"payment_proof" json:"payment_proof"`
	ValidationStatus string    `db:"validation_status" json:"validation_status"`
}
