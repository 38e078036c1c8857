// Package queue defines message payloads exchanged over the message broker.
package queue

// QueueName is the durable queue carrying booking lifecycle events.
const QueueName = "booking.events"

// Event types.
const (
	EventBookingCreated   = "booking.created"
	EventBookingCompleted = "booking.completed"
)

// BookingEvent is published after a booking transaction commits. It
// carries enough for consumers to log or notify without querying the
// primary database.
type BookingEvent struct {
	Type             string `json:"type"`
	BookingID        uint64 `json:"booking_id"`
	UserID           uint64 `json:"user_id"`
	BookingDate      string `json:"booking_date"`
	PaymentStatus    string `json:"payment_status"`
	ValidationStatus string `json:"validation_status"`
	ItemCount        int    `json:"item_count"`
	OccurredAt       string `json:"occurred_at"`
}
